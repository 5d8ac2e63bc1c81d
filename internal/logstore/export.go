package logstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// exportSubject is the subject line hosts attach when sharing an export.
const exportSubject = "Yatori Logs"

// ErrNothingToExport indicates the requested partition is missing or empty.
var ErrNothingToExport = errors.New("logstore: no logs to export")

// ExportHandle is a shareable snapshot of one partition.
type ExportHandle struct {
	// Path is the snapshot file, stable while the live partition keeps growing.
	Path string `json:"path"`

	// Name is the snapshot file name.
	Name string `json:"name"`

	// Subject is a human-readable title for sharing.
	Subject string `json:"subject"`

	// ContentType is the detected MIME type of the snapshot.
	ContentType string `json:"content_type"`

	Size int64 `json:"size"`
}

// Export snapshots a day's partition into the export directory.
// A zero day means today. Returns ErrNothingToExport if the partition is
// absent or empty.
func (s *Store) Export(d time.Time) (*ExportHandle, error) {
	d = s.resolveDay(d)
	name := s.partitionName(d)

	mu := s.lock(name)
	mu.Lock()
	size, err := s.snapshot(name)
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(s.exportDir, name)
	handle := &ExportHandle{
		Path:        dest,
		Name:        name,
		Subject:     exportSubject + " - " + d.In(time.Local).Format(dateLayout),
		ContentType: "text/plain",
		Size:        size,
	}

	if mtype, err := mimetype.DetectFile(dest); err == nil {
		handle.ContentType = mtype.String()
	}

	s.logger.Info("log partition exported",
		"partition", name,
		"path", dest,
		"bytes", size,
	)

	return handle, nil
}

// snapshot copies a partition into the export directory. Callers hold the partition lock.
func (s *Store) snapshot(name string) (int64, error) {
	src, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNothingToExport
		}
		return 0, fmt.Errorf("opening partition %s: %w", name, err)
	}
	defer src.Close() //nolint:errcheck // Read-only

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("checking partition %s: %w", name, err)
	}
	if info.Size() == 0 {
		return 0, ErrNothingToExport
	}

	if err := os.MkdirAll(s.exportDir, dirPermissions); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.exportDir, "."+name+"-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating export file: %w", err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return 0, fmt.Errorf("copying partition %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, filepath.Join(s.exportDir, name)); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return 0, fmt.Errorf("installing export %s: %w", name, err)
	}

	return written, nil
}
