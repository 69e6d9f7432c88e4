package store

import (
	"os"
	"path/filepath"
)

const (
	dbFileName  = "tasq.db"
	logFileName = "tasq.log"
	pidFileName = "tasque.pid"
)

// DefaultDBPath resolves the store file location per §6: $TASQUE_DB if
// set, otherwise ~/.tasque/tasq.db.
func DefaultDBPath() (string, error) {
	if p := os.Getenv("TASQUE_DB"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tasque", dbFileName), nil
}

// LogPath and PIDPath return the two sibling files next to a store
// file path.
func LogPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), logFileName)
}

func PIDPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), pidFileName)
}

// EnsureDir creates the parent directory of path if it does not
// already exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
