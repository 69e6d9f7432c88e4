// Package supervisor implements the dispatcher of §4.D: startup
// (pidfile check, reconcile), the cooperative single-threaded main
// loop (select-highest-priority admission, at most one task admitted
// per tick, worker-pool reap), and SIGTERM handling that removes the
// pidfile without signalling live workers.
//
// The shape is the teacher's scheduler+reconciler pair collapsed into
// one ticker-driven loop: a single cycle method (a mutex guards only
// the worker registry), "log error but continue" on any per-cycle
// failure, and a reconcile
// pass run at startup and again at the top of every tick as a hygiene
// measure, so a worker killed by something other than its own SIGTERM
// handler is still caught without waiting for a supervisor restart.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cdluminate/tasque/pkg/log"
	"github.com/cdluminate/tasque/pkg/metrics"
	"github.com/cdluminate/tasque/pkg/resource"
	"github.com/cdluminate/tasque/pkg/store"
	"github.com/cdluminate/tasque/pkg/task"
	"github.com/rs/zerolog"
)

// DefaultTick is the main-loop polling interval (§4.D: "polling
// interval = 1s by default").
const DefaultTick = 1 * time.Second

// Supervisor dispatches Waiting tasks to worker processes under
// priority+FIFO ordering and resource admission control.
type Supervisor struct {
	store    *store.Store
	plugin   resource.Plugin
	pidPath  string
	workerBin string // path to the binary invoked as "__worker <id>"
	tick     time.Duration
	logger   zerolog.Logger

	mu          sync.Mutex
	workers     map[int]*workerHandle // pid -> handle
	placeholder int
}

type workerHandle struct {
	taskID  int
	release func() error
	exited  chan struct{}
}

// New constructs a Supervisor. workerBin is the executable re-exec'd
// to run a task's worker harness (normally os.Executable()).
func New(st *store.Store, plugin resource.Plugin, pidPath, workerBin string) *Supervisor {
	return &Supervisor{
		store:     st,
		plugin:    plugin,
		pidPath:   pidPath,
		workerBin: workerBin,
		tick:      DefaultTick,
		logger:    log.WithComponent("supervisor"),
		workers:   make(map[int]*workerHandle),
	}
}

// SetTick overrides the polling interval; used by tests that want a
// faster loop than the 1s default.
func (s *Supervisor) SetTick(d time.Duration) { s.tick = d }

// Run performs startup and then blocks running the main loop until
// ctx is cancelled (the idiomatic rendering of "on SIGTERM, log,
// remove the pidfile, and exit" — the caller cancels ctx from a
// signal handler). Live workers are never signalled on return, per
// §4.D's deliberate simplicity choice and §9's open question.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := CheckNotRunning(s.pidPath); err != nil {
		return err
	}
	if err := WritePIDFile(s.pidPath, os.Getpid()); err != nil {
		return fmt.Errorf("supervisor: writing pidfile: %w", err)
	}
	defer func() {
		if err := RemovePIDFile(s.pidPath); err != nil {
			s.logger.Error().Err(err).Msg("failed to remove pidfile")
		}
	}()

	if err := s.Reconcile(); err != nil {
		s.logger.Error().Err(err).Msg("startup reconcile failed")
	}

	s.logger.Info().Str("resource", s.plugin.Name()).Msg("supervisor started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("supervisor stopping")
			return nil
		case <-ticker.C:
			timer := metrics.NewTimer()
			if err := s.runTick(); err != nil {
				s.logger.Error().Err(err).Msg("tick failed")
			}
			timer.ObserveDuration(metrics.TickDuration)
		}
	}
}

// runTick is one iteration of the main loop: steps 1-6 of §4.D. The
// reconcile pass runs first on every tick (not just at startup), so a
// task whose worker was killed directly — bypassing the worker's own
// SIGTERM handler entirely — still reaches Accident within one tick,
// per §8 scenario 6.
func (s *Supervisor) runTick() error {
	if err := s.Reconcile(); err != nil {
		s.logger.Error().Err(err).Msg("tick reconcile failed")
	}

	waiting, err := s.waitingTasks()
	if err != nil {
		return fmt.Errorf("listing waiting tasks: %w", err)
	}
	metrics.TasksWaiting.Set(float64(len(waiting)))

	if len(waiting) == 0 {
		s.reap()
		return nil
	}

	hpri := waiting[0].Pri
	for _, t := range waiting {
		if t.Pri > hpri {
			hpri = t.Pri
		}
	}

	var class []task.Task
	for _, t := range waiting {
		if t.Pri == hpri {
			class = append(class, t)
		}
	}
	sort.Slice(class, func(i, j int) bool { return class[i].ID < class[j].ID })

	for _, t := range class {
		if !s.plugin.CanAlloc(t.RSC) {
			continue
		}
		admitted, err := s.admit(t)
		if err != nil {
			s.logger.Warn().Int("task_id", t.ID).Err(err).Msg("admission attempt failed, trying next candidate")
			continue
		}
		if admitted {
			break // at most one new task admitted per tick
		}
	}

	s.reap()
	return nil
}

// waitingTasks returns every task currently Waiting, in no particular
// order (runTick does the priority/id ordering).
func (s *Supervisor) waitingTasks() ([]task.Task, error) {
	all, err := s.store.ListTasks()
	if err != nil {
		return nil, err
	}
	var out []task.Task
	for _, t := range all {
		if task.Stat(t) == task.Waiting {
			out = append(out, t)
		}
	}
	return out, nil
}

// admit reserves capacity, forks the worker process, and rebinds the
// reservation onto its real pid, per §4.D step 4.
func (s *Supervisor) admit(t task.Task) (bool, error) {
	s.mu.Lock()
	s.placeholder--
	placeholder := s.placeholder
	s.mu.Unlock()

	acquire, release := s.plugin.Request(placeholder, t.RSC)
	env, err := acquire()
	if err != nil {
		return false, fmt.Errorf("acquire: %w", err)
	}

	cmd := exec.Command(s.workerBin, "__worker", strconv.Itoa(t.ID))
	cmd.Env = os.Environ()
	if len(env) > 0 {
		cmd.Env = append(cmd.Env, env...)
	}

	if err := cmd.Start(); err != nil {
		_ = release()
		return false, fmt.Errorf("starting worker: %w", err)
	}

	pid := cmd.Process.Pid
	s.plugin.Rebind(placeholder, pid)

	handle := &workerHandle{taskID: t.ID, release: release, exited: make(chan struct{})}
	s.mu.Lock()
	s.workers[pid] = handle
	s.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(handle.exited)
	}()

	metrics.AdmissionsTotal.Inc()
	log.WithTaskID(t.ID).Info().Int("pid", pid).Msg("admitted task")
	return true, nil
}

// reap is the worker-pool cleanup step: for each registered child
// whose process has exited, release its resource reservation and
// drop it from the registry. Non-blocking: a child still running is
// simply left in place until a later tick observes its exit.
func (s *Supervisor) reap() {
	s.mu.Lock()
	var finished []*workerHandle
	for pid, h := range s.workers {
		select {
		case <-h.exited:
			finished = append(finished, h)
			delete(s.workers, pid)
		default:
		}
	}
	running := len(s.workers)
	s.mu.Unlock()

	metrics.TasksRunning.Set(float64(running))

	for _, h := range finished {
		if err := h.release(); err != nil {
			s.logger.Warn().Int("task_id", h.taskID).Err(err).Msg("resource release failed")
		}
		log.WithTaskID(h.taskID).Info().Msg("worker exited")
	}
}
