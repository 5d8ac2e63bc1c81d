package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"
)

const testBaseName = "yatori-go-console"

// countingResources wraps FSResources and counts Open calls.
type countingResources struct {
	*FSResources
	opens atomic.Int64
}

func (r *countingResources) Open(name string) (io.ReadCloser, error) {
	r.opens.Add(1)
	return r.FSResources.Open(name)
}

func newResources(files map[string]string) *countingResources {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content), Mode: 0644}
	}
	return &countingResources{FSResources: NewFSResources(fsys)}
}

func newTestStore(t *testing.T, abis []string, res Resources) *Store {
	t.Helper()
	return NewStore(Config{
		Dir:      filepath.Join(t.TempDir(), "bin"),
		BaseName: testBaseName,
		ABIs:     abis,
	}, res)
}

func TestStore_ExtractPrefersArchitectureSpecific(t *testing.T) {
	res := newResources(map[string]string{
		testBaseName:            "generic",
		testBaseName + "-arm64": "arm64 build",
	})
	s := newTestStore(t, []string{"arm64-v8a"}, res)

	path, err := s.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if path != s.Path() {
		t.Errorf("Extract() path = %q, want %q", path, s.Path())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "arm64 build" {
		t.Errorf("extracted content = %q, want %q", data, "arm64 build")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("mode = %v, want owner execute bit", info.Mode())
	}
}

func TestStore_ExtractFallsBackToGeneric(t *testing.T) {
	res := newResources(map[string]string{
		testBaseName:             "generic",
		testBaseName + "-x86_64": "x86_64 build",
	})
	s := newTestStore(t, []string{"armeabi-v7a"}, res)

	path, err := s.Extract(context.Background())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "generic" {
		t.Errorf("extracted content = %q, want %q", data, "generic")
	}
}

func TestStore_ExtractNotFound(t *testing.T) {
	res := newResources(map[string]string{"something-else": "x"})
	s := newTestStore(t, []string{"x86_64"}, res)

	_, err := s.Extract(context.Background())
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("Extract() error = %v, want ErrArtifactNotFound", err)
	}
	if s.IsAvailable() {
		t.Error("IsAvailable() = true after failed extraction")
	}
}

func TestStore_ExtractOverwrites(t *testing.T) {
	res := newResources(map[string]string{testBaseName: "new"})
	s := newTestStore(t, []string{"x86"}, res)

	if err := os.MkdirAll(filepath.Dir(s.Path()), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), []byte("old"), 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Extract(context.Background()); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	data, _ := os.ReadFile(s.Path())
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}

func TestStore_ExtractLeavesNoTemporaryFiles(t *testing.T) {
	res := newResources(map[string]string{testBaseName: "bin"})
	s := newTestStore(t, nil, res)

	if _, err := s.Extract(context.Background()); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != testBaseName {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only %s", names, testBaseName)
	}
}

func TestStore_ExtractCancelledContext(t *testing.T) {
	res := newResources(map[string]string{testBaseName: "bin"})
	s := newTestStore(t, nil, res)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Extract(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Extract() error = %v, want context.Canceled", err)
	}
}

func TestStore_ExtractUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	parent := t.TempDir()
	if err := os.Chmod(parent, 0500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(parent, 0700) })

	s := NewStore(Config{
		Dir:      filepath.Join(parent, "bin"),
		BaseName: testBaseName,
		ABIs:     []string{"x86_64"},
	}, newResources(map[string]string{testBaseName: "bin"}))

	_, err := s.Extract(context.Background())
	if !errors.Is(err, ErrExtractionFailed) {
		t.Fatalf("Extract() error = %v, want ErrExtractionFailed", err)
	}

	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("Extract() error %T is not *ExtractionError", err)
	}
	if extractErr.Cause == nil {
		t.Error("ExtractionError.Cause is nil")
	}
}

func TestStore_EnsureReadyExtractsOnce(t *testing.T) {
	res := newResources(map[string]string{testBaseName: "#!/bin/sh\n"})
	s := newTestStore(t, []string{"x86_64"}, res)

	first, err := s.EnsureReady(context.Background())
	if err != nil {
		t.Fatalf("first EnsureReady() error = %v", err)
	}
	second, err := s.EnsureReady(context.Background())
	if err != nil {
		t.Fatalf("second EnsureReady() error = %v", err)
	}

	if first != second {
		t.Errorf("EnsureReady() paths differ: %q vs %q", first, second)
	}
	if got := s.Extractions(); got != 1 {
		t.Errorf("Extractions() = %d, want 1", got)
	}
	if got := res.opens.Load(); got != 1 {
		t.Errorf("resource opened %d times, want 1", got)
	}
}

func TestStore_EnsureReadyConcurrent(t *testing.T) {
	res := newResources(map[string]string{testBaseName: "#!/bin/sh\n"})
	s := newTestStore(t, []string{"x86_64"}, res)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.EnsureReady(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("EnsureReady() error = %v", err)
	}
	if got := s.Extractions(); got != 1 {
		t.Errorf("Extractions() = %d, want 1", got)
	}
}

// gatedResources blocks List until release is closed.
type gatedResources struct {
	*countingResources
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *gatedResources) List() ([]string, error) {
	r.once.Do(func() { close(r.entered) })
	<-r.release
	return r.countingResources.List()
}

func TestStore_EnsureReadyCallerCancelDoesNotAbortShared(t *testing.T) {
	res := &gatedResources{
		countingResources: newResources(map[string]string{testBaseName: "#!/bin/sh\n"}),
		entered:           make(chan struct{}),
		release:           make(chan struct{}),
	}
	s := newTestStore(t, []string{"x86_64"}, res)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.EnsureReady(ctx)
		firstErr <- err
	}()
	<-res.entered

	secondErr := make(chan error, 1)
	go func() {
		_, err := s.EnsureReady(context.Background())
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled EnsureReady() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled EnsureReady() did not return")
	}

	close(res.release)
	if err := <-secondErr; err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	if !s.IsAvailable() {
		t.Error("IsAvailable() = false after shared extraction")
	}
	if got := res.opens.Load(); got != 1 {
		t.Errorf("resource opened %d times, want 1", got)
	}
}

func TestStore_EnsureReadyAfterDelete(t *testing.T) {
	res := newResources(map[string]string{testBaseName: "#!/bin/sh\n"})
	s := newTestStore(t, nil, res)

	if _, err := s.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := s.Extractions(); got != 2 {
		t.Errorf("Extractions() = %d, want 2", got)
	}
}

func TestStore_VerifyAndResolve(t *testing.T) {
	t.Run("absent", func(t *testing.T) {
		s := newTestStore(t, nil, newResources(nil))
		if s.Verify() {
			t.Error("Verify() = true for missing file")
		}
		exe, ok := s.Resolve()
		if ok {
			t.Error("Resolve() ok = true for missing file")
		}
		if exe.Available || exe.Verified {
			t.Errorf("Resolve() = %+v, want unavailable", exe)
		}
	})

	t.Run("empty file is available but not verified", func(t *testing.T) {
		s := newTestStore(t, []string{"x86"}, newResources(map[string]string{testBaseName: ""}))
		if _, err := s.Extract(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !s.IsAvailable() {
			t.Error("IsAvailable() = false")
		}
		if s.Verify() {
			t.Error("Verify() = true for empty file")
		}
	})

	t.Run("non-executable file is not available", func(t *testing.T) {
		s := newTestStore(t, nil, newResources(nil))
		if err := os.MkdirAll(filepath.Dir(s.Path()), 0750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(s.Path(), []byte("data"), 0644); err != nil {
			t.Fatal(err)
		}
		if s.IsAvailable() {
			t.Error("IsAvailable() = true without execute bit")
		}
		exe, ok := s.Resolve()
		if !ok || exe.Available {
			t.Errorf("Resolve() = %+v, %v; want present but unavailable", exe, ok)
		}
	})

	t.Run("extracted script", func(t *testing.T) {
		s := newTestStore(t, []string{"aarch64"}, newResources(map[string]string{
			testBaseName + "-arm64": "#!/bin/sh\necho hi\n",
		}))
		if _, err := s.Extract(context.Background()); err != nil {
			t.Fatal(err)
		}
		exe, ok := s.Resolve()
		if !ok || !exe.Verified {
			t.Fatalf("Resolve() = %+v, %v; want verified", exe, ok)
		}
		if exe.Architecture != ArchARM64 {
			t.Errorf("Architecture = %q, want arm64", exe.Architecture)
		}
		if exe.ContentType == "" {
			t.Error("ContentType is empty")
		}
	})
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil, newResources(map[string]string{testBaseName: "x"}))

	if err := s.Delete(); err != nil {
		t.Errorf("Delete() on missing file error = %v", err)
	}
	if _, err := s.Extract(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Errorf("file still present after Delete(): %v", err)
	}
}

func TestFSResources_MissingDirectory(t *testing.T) {
	res := NewDirResources(filepath.Join(t.TempDir(), "missing"))
	names, err := res.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("List() = %v, want empty", names)
	}
}
