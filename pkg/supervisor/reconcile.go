package supervisor

import (
	"fmt"

	"github.com/cdluminate/tasque/pkg/log"
	"github.com/cdluminate/tasque/pkg/metrics"
	"github.com/cdluminate/tasque/pkg/task"
)

// Reconcile scans every task row left Running and makes it agree with
// reality, per §4.C and §4.D's "once per tick, also once per client
// connection" hygiene pass: a pid this instance already tracks (either
// one it forked itself or one adopted by an earlier Reconcile call) is
// left alone; an untracked but still-alive pid (left Running by a
// prior supervisor instance) is adopted into the worker registry; a
// dead pid — whether abandoned by a prior instance or killed directly
// by something other than this worker's own SIGTERM handler, per
// §4.F's kill(id) semantics — is flipped to Accident and its resource
// reservation released.
//
// Safe to call every tick: a task already Accident or Done is skipped
// by the Stat check, and a pid already in s.workers is left untouched
// rather than re-reserved or re-released.
//
// Reserve cannot recover which GPU/VMem card index a surviving task
// held before restart, since the Store only records the pid. Those
// plugins book the pid under reservedSentinelIndex instead of a real
// index; see Plugin.Reserve.
func (s *Supervisor) Reconcile() error {
	tasks, err := s.store.ListTasks()
	if err != nil {
		return fmt.Errorf("reconcile: listing tasks: %w", err)
	}

	for _, t := range tasks {
		if task.Stat(t) != task.Running {
			continue
		}
		pid := *t.PID

		s.mu.Lock()
		handle, tracked := s.workers[pid]
		s.mu.Unlock()

		if ProcessAlive(pid) {
			if tracked {
				continue // admitted by this instance, or already adopted
			}
			s.plugin.Reserve(pid, t.RSC)
			handle := &workerHandle{
				taskID:  t.ID,
				release: s.makeReleaseFor(pid),
				exited:  make(chan struct{}),
			}
			s.mu.Lock()
			s.workers[pid] = handle
			s.mu.Unlock()
			log.WithTaskID(t.ID).Info().Int("pid", pid).Msg("reconciled surviving task")
			continue
		}

		if tracked {
			s.mu.Lock()
			delete(s.workers, pid)
			s.mu.Unlock()
			if err := handle.release(); err != nil {
				s.logger.Warn().Int("task_id", t.ID).Err(err).Msg("resource release failed")
			}
		}

		if err := s.store.SetAccident(t.ID); err != nil {
			return fmt.Errorf("reconcile: marking task %d accident: %w", t.ID, err)
		}
		metrics.AccidentsTotal.Inc()
		log.WithTaskID(t.ID).Warn().Int("pid", pid).Msg("worker vanished without reporting, marked accident")
	}
	return nil
}

// makeReleaseFor builds a release thunk for a reconciled pid, since
// the original acquire/release closures from before restart were
// lost along with the prior process. Request's release closure only
// ever deletes the book entry keyed by pid, so it is safe to obtain a
// fresh one here rather than the one paired with the original
// Reserve call.
func (s *Supervisor) makeReleaseFor(pid int) func() error {
	_, release := s.plugin.Request(pid, 0)
	return release
}
