package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// captureFileName mirrors §4.E's capture naming: tq_id-<ID>_<YYYYMMDD.HHMMSS>.stdout.zst,
// stored next to the store file so a single tasque home directory
// holds both the queue and its captured output.
func captureFileName(id int, at time.Time) string {
	return fmt.Sprintf("tq_id-%d_%s.stdout.zst", id, at.Format("20060102.150405"))
}

// writeCapture zstd-compresses a worker's combined stdout/stderr into
// a file beside dbPath. Called only when the capture is non-empty,
// per §4.E ("no file is created for a silent task").
func writeCapture(dbPath string, id int, data []byte) error {
	dir := filepath.Dir(dbPath)
	path := filepath.Join(dir, captureFileName(id, time.Now()))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("worker: opening capture file: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("worker: creating zstd encoder: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("worker: writing capture: %w", err)
	}
	return enc.Close()
}
