package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"
)

// File modes for the extracted executable.
const (
	// dirPermissions is the permission mode for the extraction directory.
	dirPermissions = 0750

	// execPermissions makes the executable runnable by everyone, as the bundle
	// is not secret and the runner may drop privileges.
	execPermissions = 0755
)

// Config describes the managed executable's location and naming.
type Config struct {
	// Dir is the writable directory the executable is extracted into.
	Dir string

	// BaseName is both the generic resource name and the extracted file name.
	// Architecture-specific resources are named "<BaseName>-<arch>".
	BaseName string

	// ABIs are the platform identifiers, most preferred first.
	// If empty, HostABIs() is used.
	ABIs []string
}

// Executable is a snapshot of the managed executable on disk.
type Executable struct {
	Path         string      `json:"path"`
	Architecture Arch        `json:"architecture"`
	Size         int64       `json:"size"`
	Mode         os.FileMode `json:"mode"`
	ContentType  string      `json:"content_type,omitempty"`

	// Available is true when the file exists and carries an execute bit.
	Available bool `json:"available"`

	// Verified is true when Available and the file is non-empty.
	Verified bool `json:"verified"`
}

// Logger defines the logging interface for the artifact store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store resolves, extracts and verifies the managed executable.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Concurrent EnsureReady calls share a single extraction.
type Store struct {
	cfg       Config
	resources Resources
	logger    Logger

	group       singleflight.Group
	extractions atomic.Int64
}

// NewStore creates an artifact store reading from the given bundle.
func NewStore(cfg Config, resources Resources) *Store {
	if len(cfg.ABIs) == 0 {
		cfg.ABIs = HostABIs()
	}
	return &Store{
		cfg:       cfg,
		resources: resources,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Path returns where the executable lives once extracted.
func (s *Store) Path() string {
	return filepath.Join(s.cfg.Dir, s.cfg.BaseName)
}

// Architecture returns the architecture tag for the configured identifiers.
func (s *Store) Architecture() Arch {
	return DetectArchitecture(s.cfg.ABIs)
}

// Extractions returns how many extractions this store has performed.
func (s *Store) Extractions() int64 {
	return s.extractions.Load()
}

// Resolve reports the current state of the executable without side effects.
// The boolean is false when nothing exists at the target path.
func (s *Store) Resolve() (Executable, bool) {
	exe := Executable{
		Path:         s.Path(),
		Architecture: s.Architecture(),
	}

	info, err := os.Stat(exe.Path)
	if err != nil || !info.Mode().IsRegular() {
		return exe, false
	}

	exe.Size = info.Size()
	exe.Mode = info.Mode().Perm()
	exe.Available = isExecutable(info)
	exe.Verified = exe.Available && exe.Size > 0

	if mtype, err := mimetype.DetectFile(exe.Path); err == nil {
		exe.ContentType = mtype.String()
	}

	return exe, true
}

// IsAvailable reports whether the executable exists and is executable.
func (s *Store) IsAvailable() bool {
	info, err := os.Stat(s.Path())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && isExecutable(info)
}

// Verify reports whether the executable is available and non-empty.
// This is a cheap sanity check, not an integrity check.
func (s *Store) Verify() bool {
	info, err := os.Stat(s.Path())
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && isExecutable(info) && info.Size() > 0
}

// EnsureReady returns the executable path, extracting it first if it is not available.
// An available executable is returned without touching storage.
func (s *Store) EnsureReady(ctx context.Context) (string, error) {
	if s.IsAvailable() {
		return s.Path(), nil
	}

	// The shared extraction outlives any single caller; each caller still
	// stops waiting when its own ctx ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan("extract", func() (any, error) {
		// A concurrent caller may have finished extraction while we queued.
		if s.IsAvailable() {
			return s.Path(), nil
		}
		return s.Extract(flightCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil //nolint:forcetypeassert // Only strings are returned above
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Extract copies the best matching bundled resource to the target path and
// marks it executable. An existing target is always replaced.
//
// Resource selection:
//  1. "<BaseName>-<arch>" for the detected architecture
//  2. "<BaseName>" as a generic fallback
//
// The copy is written to a temporary file in the target directory and renamed
// into place, so readers never observe a partially written executable.
func (s *Store) Extract(ctx context.Context) (string, error) {
	arch := s.Architecture()

	name, err := s.selectResource(arch)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := s.Path()
	s.logger.Info("extracting executable",
		"resource", name,
		"architecture", arch,
		"target", target,
	)

	if err := os.MkdirAll(s.cfg.Dir, dirPermissions); err != nil {
		return "", extractionError("creating directory", err)
	}

	src, err := s.resources.Open(name)
	if err != nil {
		return "", extractionError("opening resource", err)
	}
	defer src.Close() //nolint:errcheck // Read-only stream

	tmp, err := os.CreateTemp(s.cfg.Dir, "."+s.cfg.BaseName+"-*.tmp")
	if err != nil {
		return "", extractionError("creating temporary file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		}
	}()

	written, err := io.Copy(tmp, src)
	if err != nil {
		_ = tmp.Close() //nolint:errcheck // Already failing
		return "", extractionError("copying resource", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // Already failing
		return "", extractionError("syncing executable", err)
	}
	if err := tmp.Close(); err != nil {
		return "", extractionError("closing executable", err)
	}

	if err := os.Chmod(tmpPath, execPermissions); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return "", extractionError("installing executable", err)
	}
	committed = true

	if !s.IsAvailable() {
		return "", fmt.Errorf("%w: %s is not executable after extraction", ErrPermissionDenied, target)
	}

	s.extractions.Add(1)
	s.logger.Info("executable extracted",
		"target", target,
		"bytes", written,
	)

	return target, nil
}

// Delete removes the executable. It returns nil whenever the file is absent
// afterwards, including when it never existed.
func (s *Store) Delete() error {
	err := os.Remove(s.Path())
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("deleting executable: %w", err)
}

// selectResource picks the architecture-specific resource, falling back to the generic one.
func (s *Store) selectResource(arch Arch) (string, error) {
	names, err := s.resources.List()
	if err != nil {
		return "", extractionError("listing resources", err)
	}

	preferred := s.cfg.BaseName + "-" + string(arch)
	switch {
	case slices.Contains(names, preferred):
		return preferred, nil
	case slices.Contains(names, s.cfg.BaseName):
		s.logger.Debug("no architecture-specific executable, using generic",
			"wanted", preferred,
		)
		return s.cfg.BaseName, nil
	default:
		return "", fmt.Errorf("%w: looked for %q and %q", ErrArtifactNotFound, preferred, s.cfg.BaseName)
	}
}

func isExecutable(info os.FileInfo) bool {
	return info.Mode().Perm()&0o111 != 0
}
