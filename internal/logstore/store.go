package logstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Layouts for partition names and entry timestamps (host-local time).
const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05"

	partitionExt = ".log"

	dirPermissions  = 0750
	filePermissions = 0640

	day = 24 * time.Hour
)

// newlineReplacer flattens embedded line breaks so one entry is one line.
var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Config contains log store settings.
type Config struct {
	// Dir holds one partition file per calendar date.
	Dir string

	// ExportDir receives partition snapshots produced by Export.
	// Default: "<Dir>/exports"
	ExportDir string

	// Prefix is the partition file name prefix ("<Prefix>_<date>.log").
	// Default: "yatori"
	Prefix string
}

// Partition describes one date-bounded log file.
type Partition struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Date    time.Time `json:"date"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Logger defines the logging interface for operational diagnostics.
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

// Store is an append-only, date-partitioned text log.
//
// Each partition is a file named "<prefix>_<YYYY-MM-DD>.log" containing
// "[<timestamp>] <message>\n" records in append order.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Mutating operations on the same partition are serialised by a
//     per-partition mutex; different partitions proceed independently.
type Store struct {
	dir       string
	exportDir string
	prefix    string
	logger    Logger
	now       func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates a log store, creating its directory if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("logstore: directory is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "yatori"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = filepath.Join(cfg.Dir, "exports")
	}

	if err := os.MkdirAll(cfg.Dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	return &Store{
		dir:       cfg.Dir,
		exportDir: cfg.ExportDir,
		prefix:    cfg.Prefix,
		logger:    noopLogger{},
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// SetLogger sets the logger that receives swallowed write failures.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the wall clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Dir returns the partition directory.
func (s *Store) Dir() string {
	return s.dir
}

// PartitionPath returns the file backing the given day's partition.
// A zero day means today.
func (s *Store) PartitionPath(d time.Time) string {
	return filepath.Join(s.dir, s.partitionName(s.resolveDay(d)))
}

// Append writes one record to today's partition.
//
// Append never fails from the caller's point of view: I/O errors are
// reported to the operational logger and dropped, so logging can never
// take down the execution it observes.
func (s *Store) Append(message string) {
	now := s.now()
	name := s.partitionName(now)
	entry := formatEntry(now, message)

	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	if err := s.appendEntry(name, entry); err != nil {
		s.logger.Warn("log append failed",
			"partition", name,
			"error", err,
		)
	}
}

func (s *Store) appendEntry(name, entry string) error {
	if err := os.MkdirAll(s.dir, dirPermissions); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermissions)
	if err != nil {
		return err
	}

	// A single write on an O_APPEND descriptor keeps the record contiguous.
	if _, err := f.WriteString(entry); err != nil {
		_ = f.Close() //nolint:errcheck // Already failing
		return err
	}
	return f.Close()
}

// Read returns the full contents of a day's partition, or "" if it does not exist.
// A zero day means today.
func (s *Store) Read(d time.Time) (string, error) {
	name := s.partitionName(s.resolveDay(d))

	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading partition %s: %w", name, err)
	}
	return string(data), nil
}

// ListPartitions returns every partition, most recently modified first.
func (s *Store) ListPartitions() ([]Partition, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing partitions: %w", err)
	}

	partitions := make([]Partition, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		date, ok := s.parsePartitionName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		partitions = append(partitions, Partition{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Date:    date,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.SliceStable(partitions, func(i, j int) bool {
		if partitions[i].ModTime.Equal(partitions[j].ModTime) {
			return partitions[i].Name > partitions[j].Name
		}
		return partitions[i].ModTime.After(partitions[j].ModTime)
	})

	return partitions, nil
}

// Clear truncates a day's partition to empty. Missing partitions are left alone.
// A zero day means today.
func (s *Store) Clear(d time.Time) error {
	name := s.partitionName(s.resolveDay(d))

	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	err := os.Truncate(filepath.Join(s.dir, name), 0)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing partition %s: %w", name, err)
	}
	return nil
}

// ClearAll removes every partition.
func (s *Store) ClearAll() error {
	partitions, err := s.ListPartitions()
	if err != nil {
		return err
	}

	var errs []error
	for _, p := range partitions {
		if err := s.remove(p.Name, time.Time{}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Prune deletes every partition last modified before now - retentionDays*24h
// and returns how many were removed. Partitions modified at or after the
// cutoff are kept, so today's partition survives unless the clock is skewed.
func (s *Store) Prune(retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("logstore: retention days must not be negative, got %d", retentionDays)
	}

	cutoff := s.now().Add(-time.Duration(retentionDays) * day)

	partitions, err := s.ListPartitions()
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, p := range partitions {
		if !p.ModTime.Before(cutoff) {
			continue
		}
		if err := s.remove(p.Name, cutoff); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("pruned log partitions",
			"removed", removed,
			"retention_days", retentionDays,
		)
	}
	return removed, errors.Join(errs...)
}

// remove deletes a partition under its lock. A non-zero cutoff re-checks the
// modification time so a partition appended to since listing is kept.
func (s *Store) remove(name string, cutoff time.Time) error {
	mu := s.lock(name)
	mu.Lock()
	defer mu.Unlock()

	path := filepath.Join(s.dir, name)
	if !cutoff.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("checking partition %s: %w", name, err)
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing partition %s: %w", name, err)
	}
	return nil
}

// TotalSize returns the sum of all partition sizes in bytes.
func (s *Store) TotalSize() (int64, error) {
	partitions, err := s.ListPartitions()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, p := range partitions {
		total += p.Size
	}
	return total, nil
}

// lock returns the mutex guarding the named partition.
func (s *Store) lock(name string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[name]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[name] = mu
	}
	return mu
}

func (s *Store) resolveDay(d time.Time) time.Time {
	if d.IsZero() {
		return s.now()
	}
	return d
}

func (s *Store) partitionName(d time.Time) string {
	return s.prefix + "_" + d.In(time.Local).Format(dateLayout) + partitionExt
}

// parsePartitionName extracts the date from "<prefix>_<YYYY-MM-DD>.log".
func (s *Store) parsePartitionName(name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, s.prefix+"_")
	if !ok {
		return time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, partitionExt)
	if !ok {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(dateLayout, rest, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// ParseDate parses a "YYYY-MM-DD" partition date in host-local time.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

func formatEntry(ts time.Time, message string) string {
	message = strings.TrimRight(message, "\r\n")
	message = newlineReplacer.Replace(message)
	return "[" + ts.In(time.Local).Format(timestampLayout) + "] " + message + "\n"
}
