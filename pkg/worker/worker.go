// Package worker implements the child-side harness of §4.E: the
// process started by the supervisor's re-exec ("__worker <id>")
// records its own pid against the task row, runs the task's command
// line, captures its combined output, and writes back the exit
// status. It never talks to the resource plugin; admission already
// happened in the parent before this process existed.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/cdluminate/tasque/pkg/log"
	"github.com/cdluminate/tasque/pkg/store"
	"github.com/cdluminate/tasque/pkg/task"
	"github.com/mattn/go-shellwords"
	"github.com/rs/zerolog"
)

// Harness runs exactly one task to completion inside the current
// process, which is expected to be a freshly re-exec'd child with no
// other responsibility.
type Harness struct {
	store *store.Store
}

// New constructs a Harness bound to the shared Store.
func New(st *store.Store) *Harness {
	return &Harness{store: st}
}

// Run executes task id: it records (pid, stime), spawns the task's
// command line, streams its combined output to a compressed capture
// file, and records (retval, etime) on completion. A task whose
// command line cannot even be parsed or spawned is confined rather
// than propagated: its retval is set to -1, per §4.E's crash
// confinement rule, so one bad command cannot take down the
// supervisor.
func (h *Harness) Run(id int) error {
	t, ok, err := h.store.GetTask(id)
	if err != nil {
		return fmt.Errorf("worker: loading task %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("worker: task %d does not exist", id)
	}

	logger := log.WithTaskID(id).With().Int("pid", os.Getpid()).Logger()

	stime := epochSeconds(time.Now())
	if err := h.store.SetRunning(id, os.Getpid(), stime); err != nil {
		return fmt.Errorf("worker: recording start of task %d: %w", id, err)
	}

	retval, signalled := h.runCommand(logger, t)
	if signalled {
		// §4.E step 4 / §4.F kill(id): the row is left Running on
		// purpose. The next reconcile pass is what produces the
		// Accident transition, not this process.
		logger.Info().Msg("received SIGTERM, exiting without recording completion")
		return nil
	}

	etime := epochSeconds(time.Now())
	if err := h.store.SetDone(id, retval, etime); err != nil {
		return fmt.Errorf("worker: recording completion of task %d: %w", id, err)
	}
	return nil
}

func epochSeconds(t time.Time) float64 { return float64(t.UnixNano()) / 1e9 }

// runCommand tokenizes and spawns t.Cmd in t.CWD, forwards SIGTERM to
// the child, and returns the process's exit code (or -1 if it never
// started, or was killed by a signal). The second return value is
// true if this worker process itself received SIGTERM while the
// command was running; the caller must not treat retval as valid in
// that case.
func (h *Harness) runCommand(logger zerolog.Logger, t task.Task) (int, bool) {
	args, err := shellwords.Parse(t.Cmd)
	if err != nil || len(args) == 0 {
		logger.Error().Err(err).Str("cmd", t.Cmd).Msg("failed to parse command line")
		return -1, false
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = t.CWD
	cmd.Stdin = nil

	var capture bytes.Buffer
	cmd.Stdout = &capture
	cmd.Stderr = &capture

	if err := cmd.Start(); err != nil {
		logger.Error().Err(err).Str("cmd", t.Cmd).Msg("failed to start worker command")
		return -1, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	signalled := make(chan struct{})
	go forwardTermination(ctx, cmd.Process, signalled)

	waitErr := cmd.Wait()
	cancel()

	select {
	case <-signalled:
		return 0, true
	default:
	}

	if capture.Len() > 0 {
		if writeErr := writeCapture(h.store.Path(), t.ID, capture.Bytes()); writeErr != nil {
			logger.Warn().Err(writeErr).Msg("failed to persist captured output")
		}
	}

	return exitCodeOf(waitErr), false
}

// forwardTermination relays a SIGTERM received by this worker process
// to its child, so killing a worker via the supervisor also kills the
// command it is running. signalled is closed before the child is
// signalled, so a caller observing it closed after cmd.Wait returns
// knows termination, not natural exit, caused the child to die. It
// returns quietly once ctx is cancelled (normal command completion).
func forwardTermination(ctx context.Context, proc *os.Process, signalled chan struct{}) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM)
	defer signal.Stop(sigs)
	select {
	case <-sigs:
		close(signalled)
		_ = proc.Signal(syscall.SIGTERM)
	case <-ctx.Done():
	}
}

// exitCodeOf extracts a process exit status from the error cmd.Wait
// returns, defaulting to -1 for a command that never produced one
// (e.g. killed by a signal).
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return -1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return -1
	}
	return status.ExitStatus()
}
