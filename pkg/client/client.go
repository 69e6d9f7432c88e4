// Package client implements the operations of §4.F against a shared
// Store: enqueue, dequeue, clear, kill, annotation, edit, and the
// daemon lifecycle (start/stop/isdaemonalive). It is the one package
// both the CLI and the test suite drive directly — there is no RPC
// boundary, since tasque is single-node and the Store file is itself
// the shared medium.
package client

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/cdluminate/tasque/pkg/errs"
	"github.com/cdluminate/tasque/pkg/store"
	"github.com/cdluminate/tasque/pkg/supervisor"
	"github.com/cdluminate/tasque/pkg/task"
)

// Client is a thin façade over a Store plus the pidfile-based daemon
// lifecycle described in §4.D/§4.F.
type Client struct {
	store   *store.Store
	pidPath string
}

// New wraps an already-open Store. pidPath is the supervisor pidfile
// path (see pkg/store.PIDPath).
func New(st *store.Store, pidPath string) *Client {
	return &Client{store: st, pidPath: pidPath}
}

// Enqueue assigns the next id and inserts a Waiting row. Fails if cmd
// is empty, per §4.F.
func (c *Client) Enqueue(cwd, cmd string, pri int, rsc float64) (task.Task, error) {
	if cmd == "" {
		return task.Task{}, errs.Usage("enqueue: cmd must not be empty")
	}
	t, err := c.store.InsertTask(cwd, cmd, pri, rsc)
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

// DumpTasks returns every task row, for the "ls" subcommand. Not one
// of §4.F's named operations, but a thin pass-through the CLI needs
// to show queue state; it carries no semantics of its own beyond
// Store.ListTasks.
func (c *Client) DumpTasks() ([]task.Task, error) {
	return c.store.ListTasks()
}

// Dequeue deletes task id unless it is Running, per §4.F.
func (c *Client) Dequeue(id int) (deleted bool, err error) {
	return c.store.DeleteTaskIfNotRunning(id)
}

// Clear deletes every Done row and its notes.
func (c *Client) Clear() (removed int, err error) {
	return c.store.ClearDone()
}

// Kill sends SIGTERM to a Running task's pid. It does not mutate the
// row: the worker's own signal handler is what eventually produces
// the Accident transition once the reconcile pass observes the pid is
// gone.
func (c *Client) Kill(id int) error {
	t, ok, err := c.store.GetTask(id)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Usage("kill: task %d does not exist", id)
	}
	if task.Stat(t) != task.Running {
		return errs.Usage("kill: task %d is not running", id)
	}
	pid := *t.PID
	if !supervisor.ProcessAlive(pid) {
		return errs.Usage("kill: task %d's pid %d is not alive", id, pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return errs.Worker("sending SIGTERM", err)
	}
	return nil
}

// Annotate records a free-text note against task id.
func (c *Client) Annotate(id int, text string) (task.Note, error) {
	return c.store.InsertNote(id, text)
}

// DelAnnotation removes a note by its noteid.
func (c *Client) DelAnnotation(noteID int) error {
	return c.store.DeleteNote(noteID)
}

// DumpAnnotations returns every stored note.
func (c *Client) DumpAnnotations() ([]task.Note, error) {
	return c.store.ListNotes()
}

// Edit updates priority and/or resource weight of a Waiting row.
func (c *Client) Edit(id int, pri *int, rsc *float64) (ok bool, err error) {
	return c.store.EditTask(id, pri, rsc)
}

// IsDaemonAlive reads the pidfile and probes the named process,
// removing a stale pidfile as a side effect, per §4.F.
func (c *Client) IsDaemonAlive() (alive bool, pid int, err error) {
	pid, ok, err := supervisor.ReadPIDFile(c.pidPath)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, nil
	}
	if supervisor.ProcessAlive(pid) {
		return true, pid, nil
	}
	if err := supervisor.RemovePIDFile(c.pidPath); err != nil {
		return false, 0, err
	}
	return false, 0, nil
}

// Stop sends SIGTERM to the supervisor named by the pidfile.
func (c *Client) Stop() error {
	alive, pid, err := c.IsDaemonAlive()
	if err != nil {
		return err
	}
	if !alive {
		return errs.Usage("stop: supervisor is not running")
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

// Start launches the supervisor as a detached daemon, per RF1: Go
// cannot safely fork() once goroutines exist, so instead of the
// original's double-fork this re-execs the current binary with its
// hidden "__supervisor" entry point, detaches it into its own session
// via Setsid, and redirects its stdio to the log file beside the
// store.
func (c *Client) Start() error {
	alive, _, err := c.IsDaemonAlive()
	if err != nil {
		return err
	}
	if alive {
		return errs.Usage("start: supervisor is already running")
	}

	self, err := os.Executable()
	if err != nil {
		return errs.Usage("start: cannot locate own executable: %v", err)
	}

	logPath := store.LogPath(c.store.Path())
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("client: opening supervisor log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(self, "__supervisor")
	cmd.Env = os.Environ()
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("client: launching supervisor: %w", err)
	}
	// The re-exec'd process writes its own pidfile once it has
	// performed Setsid and opened the store; this process does not
	// wait for it and does not own the child's lifetime beyond launch.
	return cmd.Process.Release()
}
