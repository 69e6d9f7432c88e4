package supervisor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ProcessAlive probes pid with the null signal, per §4.D step 1 /
// §4.F isdaemonalive. A process owned by another user still answers
// EPERM, which means it exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// ReadPIDFile reads the single decimal pid written by WritePIDFile. ok
// is false if the file does not exist.
func ReadPIDFile(path string) (pid int, ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false, fmt.Errorf("pidfile: malformed contents: %w", err)
	}
	return pid, true, nil
}

// WritePIDFile writes the current process's pid, a single ASCII
// decimal followed by a newline, per §6.
func WritePIDFile(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// RemovePIDFile removes the pidfile, ignoring a not-exist error.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckNotRunning refuses to start if the pidfile names a live
// process, per §4.D step 1. A pidfile naming a dead process is stale
// and is removed.
func CheckNotRunning(path string) error {
	pid, ok, err := ReadPIDFile(path)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if ProcessAlive(pid) {
		return fmt.Errorf("supervisor already running with pid %d", pid)
	}
	return RemovePIDFile(path)
}
