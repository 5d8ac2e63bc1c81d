package logstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// followPollInterval is a fallback re-read for filesystems that drop events.
const followPollInterval = 2 * time.Second

// Follow calls fn for every complete line appended to a day's partition until
// ctx is cancelled. With fromStart, existing content is emitted first;
// otherwise only lines written after Follow starts are delivered.
// A zero day means today and keeps following the current partition across
// midnight. Truncation or removal restarts from the beginning.
func (s *Store) Follow(ctx context.Context, d time.Time, fromStart bool, fn func(line string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck // Shutdown path

	// Watch the directory so creation of the partition is observed too.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}

	t := &tail{path: s.PartitionPath(d), emit: fn}
	if !fromStart {
		if info, err := os.Stat(t.path); err == nil {
			t.offset = info.Size()
		}
	}
	if err := t.readNew(); err != nil {
		return err
	}

	today := d.IsZero()
	rollover := func() error {
		next := s.PartitionPath(time.Time{})
		if !today || next == t.path {
			return nil
		}
		// Drain what is left of the previous day first.
		if err := t.readNew(); err != nil {
			return err
		}
		t = &tail{path: next, emit: fn}
		return t.readNew()
	}

	ticker := time.NewTicker(followPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if err := rollover(); err != nil {
					return err
				}
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				t.reset()
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := t.readNew(); err != nil {
					return err
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("log follow watcher error", "error", err)

		case <-ticker.C:
			if err := rollover(); err != nil {
				return err
			}
			if err := t.readNew(); err != nil {
				return err
			}
		}
	}
}

// tail tracks the read position in a growing file.
type tail struct {
	path    string
	offset  int64
	partial []byte
	emit    func(line string)
}

func (t *tail) reset() {
	t.offset = 0
	t.partial = nil
}

func (t *tail) readNew() error {
	f, err := os.Open(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			t.reset()
			return nil
		}
		return fmt.Errorf("opening %s: %w", t.path, err)
	}
	defer f.Close() //nolint:errcheck // Read-only

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("checking %s: %w", t.path, err)
	}
	if info.Size() < t.offset {
		// Truncated by Clear.
		t.reset()
	}
	if info.Size() == t.offset {
		return nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking %s: %w", t.path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", t.path, err)
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		t.emit(string(buf[:i]))
		buf = buf[i+1:]
	}
	t.partial = append([]byte(nil), buf...)
	return nil
}
