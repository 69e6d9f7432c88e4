package worker

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/cdluminate/tasque/pkg/store"
	"github.com/cdluminate/tasque/pkg/task"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tasq.db")
	st, err := store.Open(dbPath, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRunSuccessWritesRetvalAndTimestamps(t *testing.T) {
	st := newTestStore(t)
	tk, err := st.InsertTask("/tmp", "/bin/echo hello", 0, 0)
	require.NoError(t, err)

	h := New(st)
	require.NoError(t, h.Run(tk.ID))

	got, ok, err := st.GetTask(tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, task.Done, task.Stat(got))
	require.NotNil(t, got.Retval)
	require.Equal(t, 0, *got.Retval)
	require.NotNil(t, got.STime)
	require.NotNil(t, got.ETime)
}

func TestRunFailureCapturesNonZeroExit(t *testing.T) {
	st := newTestStore(t)
	tk, err := st.InsertTask("/tmp", "/bin/sh -c 'exit 7'", 0, 0)
	require.NoError(t, err)

	h := New(st)
	require.NoError(t, h.Run(tk.ID))

	got, ok, err := st.GetTask(tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.Retval)
	require.Equal(t, 7, *got.Retval)
}

func TestRunUnparsableCommandIsConfinedNotPropagated(t *testing.T) {
	st := newTestStore(t)
	tk, err := st.InsertTask("/tmp", "unterminated 'quote", 0, 0)
	require.NoError(t, err)

	h := New(st)
	require.NoError(t, h.Run(tk.ID))

	got, ok, err := st.GetTask(tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, got.Retval)
	require.Equal(t, -1, *got.Retval)
}

// TestRunSkipsCompletionWhenWorkerIsSignalled exercises §4.E step 4 /
// §4.F: a SIGTERM delivered to the worker process itself must forward
// to the child and leave the task row Running, never Done. Only a
// later reconcile pass may produce the Accident transition.
func TestRunSkipsCompletionWhenWorkerIsSignalled(t *testing.T) {
	st := newTestStore(t)
	tk, err := st.InsertTask("/tmp", "/bin/sleep 30", 0, 0)
	require.NoError(t, err)

	h := New(st)
	done := make(chan error, 1)
	go func() { done <- h.Run(tk.ID) }()

	require.Eventually(t, func() bool {
		got, ok, err := st.GetTask(tk.ID)
		return err == nil && ok && task.Stat(got) == task.Running
	}, 2*time.Second, 10*time.Millisecond, "task never reached Running")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}

	got, ok, err := st.GetTask(tk.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, task.Running, task.Stat(got))
	require.Nil(t, got.Retval)
	require.Nil(t, got.ETime)
}

func TestRunWritesCompressedCaptureOnlyWhenOutputNonEmpty(t *testing.T) {
	st := newTestStore(t)
	loud, err := st.InsertTask("/tmp", "/bin/echo noisy", 0, 0)
	require.NoError(t, err)
	quiet, err := st.InsertTask("/tmp", "/bin/true", 0, 0)
	require.NoError(t, err)

	h := New(st)
	require.NoError(t, h.Run(loud.ID))
	require.NoError(t, h.Run(quiet.ID))

	entries, err := os.ReadDir(filepath.Dir(st.Path()))
	require.NoError(t, err)
	var captures int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".zst" {
			captures++
		}
	}
	require.Equal(t, 1, captures)
}
