package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/cdluminate/tasque/pkg/resource"
	"github.com/cdluminate/tasque/pkg/store"
	"github.com/cdluminate/tasque/pkg/task"
	"github.com/stretchr/testify/require"
)

// sleepingWorkerScript writes a shell script that ignores its
// arguments (the "__worker <id>" the supervisor always appends) and
// sleeps, standing in for the real worker harness so tests can
// observe a worker process while it is still alive. The script never
// touches the store, so the task row stays Waiting until a test calls
// markAdmittedRunning.
func sleepingWorkerScript(t *testing.T, dir string, sleep time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, "fake-worker.sh")
	content := fmt.Sprintf("#!/bin/sh\nsleep %f\n", sleep.Seconds())
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
	return path
}

// markAdmittedRunning writes the start transition (pid, stime) that the
// real worker harness records for itself, for every worker currently in
// the supervisor's registry.
func markAdmittedRunning(t *testing.T, sv *Supervisor, st *store.Store) {
	t.Helper()
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for pid, h := range sv.workers {
		require.NoError(t, st.SetRunning(h.taskID, pid, 1.0))
	}
}

func newTestSupervisor(t *testing.T, plugin resource.Plugin, workerBin string) (*Supervisor, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "tasq.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sv := New(st, plugin, filepath.Join(dir, "tasque.pid"), workerBin)
	sv.SetTick(20 * time.Millisecond)
	return sv, st
}

func TestRunTickIdlesOnEmptyQueue(t *testing.T) {
	sv, _ := newTestSupervisor(t, resource.NewVoid(), "/bin/true")
	require.NoError(t, sv.runTick())
}

func TestRunTickAdmitsWaitingTaskAndReapsOnExit(t *testing.T) {
	sv, st := newTestSupervisor(t, resource.NewVoid(), "/bin/true")

	tk, err := st.InsertTask("/tmp", "irrelevant, the fake worker ignores this", 0, 0)
	require.NoError(t, err)

	require.NoError(t, sv.runTick())

	sv.mu.Lock()
	admitted := len(sv.workers) == 1
	sv.mu.Unlock()
	require.True(t, admitted, "expected exactly one worker admitted")

	require.Eventually(t, func() bool {
		require.NoError(t, sv.runTick())
		sv.mu.Lock()
		defer sv.mu.Unlock()
		return len(sv.workers) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, sv.plugin.CanAlloc(1), "void plugin should be free again after reap")
	_ = tk
}

func TestVoidPluginRefusesSecondConcurrentAdmission(t *testing.T) {
	dir := t.TempDir()
	workerBin := sleepingWorkerScript(t, dir, 1*time.Second)
	sv, st := newTestSupervisor(t, resource.NewVoid(), workerBin)

	_, err := st.InsertTask("/tmp", "first", 0, 0)
	require.NoError(t, err)
	_, err = st.InsertTask("/tmp", "second", 0, 0)
	require.NoError(t, err)

	require.NoError(t, sv.runTick())
	sv.mu.Lock()
	runningAfterFirstTick := len(sv.workers)
	sv.mu.Unlock()
	require.Equal(t, 1, runningAfterFirstTick)

	require.NoError(t, sv.runTick())
	sv.mu.Lock()
	runningAfterSecondTick := len(sv.workers)
	sv.mu.Unlock()
	require.Equal(t, 1, runningAfterSecondTick, "void plugin admits only one task at a time")
}

func TestHigherPriorityClassAdmittedFirst(t *testing.T) {
	dir := t.TempDir()
	workerBin := sleepingWorkerScript(t, dir, 1*time.Second)
	sv, st := newTestSupervisor(t, resource.NewVoid(), workerBin)

	low, err := st.InsertTask("/tmp", "low", 0, 0)
	require.NoError(t, err)
	high, err := st.InsertTask("/tmp", "high", 5, 0)
	require.NoError(t, err)

	require.NoError(t, sv.runTick())

	sv.mu.Lock()
	var admittedTaskIDs []int
	for _, h := range sv.workers {
		admittedTaskIDs = append(admittedTaskIDs, h.taskID)
	}
	sv.mu.Unlock()

	require.Equal(t, []int{high.ID}, admittedTaskIDs)
	_ = low
}

func TestVirtualPluginAllowsParallelAdmission(t *testing.T) {
	dir := t.TempDir()
	workerBin := sleepingWorkerScript(t, dir, 1*time.Second)
	sv, st := newTestSupervisor(t, resource.NewVirtual(), workerBin)

	first, err := st.InsertTask("/tmp", "first", 0, 0.4)
	require.NoError(t, err)
	second, err := st.InsertTask("/tmp", "second", 0, 0.4)
	require.NoError(t, err)

	require.NoError(t, sv.runTick())
	markAdmittedRunning(t, sv, st)
	require.NoError(t, sv.runTick())

	sv.mu.Lock()
	running := len(sv.workers)
	var admittedTaskIDs []int
	for _, h := range sv.workers {
		admittedTaskIDs = append(admittedTaskIDs, h.taskID)
	}
	sv.mu.Unlock()
	require.Equal(t, 2, running, "virtual plugin admits both 0.4-weight tasks concurrently")
	require.ElementsMatch(t, []int{first.ID, second.ID}, admittedTaskIDs)
}

func TestReconcileMarksDeadRunningTaskAsAccident(t *testing.T) {
	sv, st := newTestSupervisor(t, resource.NewVoid(), "/bin/true")

	tk, err := st.InsertTask("/tmp", "irrelevant", 0, 0)
	require.NoError(t, err)
	// a pid that is certainly not alive
	require.NoError(t, st.SetRunning(tk.ID, 999999, 1.0))

	require.NoError(t, sv.Reconcile())

	got, ok, err := st.GetTask(tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, task.Accident, task.Stat(got))
}

func TestReconcileRebuildsBookForSurvivingTask(t *testing.T) {
	sv, st := newTestSupervisor(t, resource.NewVoid(), "/bin/true")

	tk, err := st.InsertTask("/tmp", "irrelevant", 0, 0)
	require.NoError(t, err)
	require.NoError(t, st.SetRunning(tk.ID, os.Getpid(), 1.0))

	require.NoError(t, sv.Reconcile())

	require.False(t, sv.plugin.CanAlloc(1), "void plugin should consider itself occupied by the reconciled task")
}

// TestExternallyKilledWorkerBecomesAccidentWithinATick drives §8
// scenario 6: a worker pid killed directly with SIGKILL, bypassing
// the worker's own SIGTERM handler entirely, must still flip its
// task row to Accident within one further tick, without restarting
// the supervisor. This is the per-tick reconcile pass added to
// runTick, not the one-shot startup reconcile.
func TestExternallyKilledWorkerBecomesAccidentWithinATick(t *testing.T) {
	dir := t.TempDir()
	workerBin := sleepingWorkerScript(t, dir, 30*time.Second)
	sv, st := newTestSupervisor(t, resource.NewVoid(), workerBin)

	tk, err := st.InsertTask("/tmp", "irrelevant", 0, 0)
	require.NoError(t, err)

	require.NoError(t, sv.runTick())

	sv.mu.Lock()
	var pid int
	for p := range sv.workers {
		pid = p
	}
	sv.mu.Unlock()
	require.NotZero(t, pid, "expected the task to have been admitted")
	markAdmittedRunning(t, sv, st)

	require.NoError(t, syscall.Kill(pid, syscall.SIGKILL))

	// The worker process becomes a zombie until this test process's
	// own background cmd.Wait goroutine reaps it; ProcessAlive reports
	// a zombie as alive, so the Accident transition only lands once
	// that reap has happened. Retrying runTick tolerates the race.
	require.Eventually(t, func() bool {
		require.NoError(t, sv.runTick())
		got, ok, err := st.GetTask(tk.ID)
		return err == nil && ok && task.Stat(got) == task.Accident
	}, 2*time.Second, 10*time.Millisecond, "task never reached Accident after external kill")

	require.True(t, sv.plugin.CanAlloc(1), "void plugin book should be released after the accident")
}

func TestRunRefusesToStartWhenAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "tasq.db"), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pidPath := filepath.Join(dir, "tasque.pid")
	require.NoError(t, WritePIDFile(pidPath, os.Getpid()))

	sv := New(st, resource.NewVoid(), pidPath, "/bin/true")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sv.Run(ctx)
	require.Error(t, err)
}
