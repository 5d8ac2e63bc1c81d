package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/yatori-runner/internal/infrastructure/database"
	"github.com/nerrad567/yatori-runner/internal/process"
	"github.com/nerrad567/yatori-runner/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	started := time.Date(2026, 10, 16, 9, 0, 0, 123456789, time.UTC)
	rec := &Record{
		State:      process.StateExited,
		Executable: "/data/bin/yatori-go-console",
		PID:        4242,
		ExitCode:   3,
		Error:      "exited with code 3",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Duration:   90 * time.Second,
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != rec.State || got.ExitCode != 3 || got.PID != 4242 || got.Error != rec.Error {
		t.Errorf("Get() = %+v, want %+v", got, rec)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration != 90*time.Second {
		t.Errorf("Duration = %v", got.Duration)
	}
}

func TestSQLiteRepository_GetNotFound(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_List(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	states := []process.State{
		process.StateCompleted,
		process.StateFailed,
		process.StateCompleted,
		process.StateStopped,
	}
	for i, st := range states {
		rec := &Record{State: st, FinishedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("all newest first", func(t *testing.T) {
		got, total, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if total != 4 || len(got) != 4 {
			t.Fatalf("total = %d, len = %d", total, len(got))
		}
		if got[0].State != process.StateStopped {
			t.Errorf("first = %q, want most recent", got[0].State)
		}
		for i := 1; i < len(got); i++ {
			if got[i].FinishedAt.After(got[i-1].FinishedAt) {
				t.Errorf("records not in descending order at %d", i)
			}
		}
	})

	t.Run("state filter", func(t *testing.T) {
		got, total, err := repo.List(ctx, Filter{State: process.StateCompleted})
		if err != nil {
			t.Fatal(err)
		}
		if total != 2 || len(got) != 2 {
			t.Errorf("total = %d, len = %d; want 2", total, len(got))
		}
	})

	t.Run("since filter", func(t *testing.T) {
		got, _, err := repo.List(ctx, Filter{Since: base.Add(2 * time.Minute)})
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 {
			t.Errorf("len = %d, want 2", len(got))
		}
	})

	t.Run("pagination", func(t *testing.T) {
		got, total, err := repo.List(ctx, Filter{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatal(err)
		}
		if total != 4 || len(got) != 1 || got[0].State != process.StateCompleted {
			t.Errorf("page = %+v, total = %d", got, total)
		}
	})
}

func TestRecorder_Notify(t *testing.T) {
	repo := newTestRepo(t)
	rec := NewRecorder(repo)
	ctx := context.Background()

	start := time.Now().Add(-time.Second)
	outcome := process.Outcome{
		SessionID:  "6f1c1d8e-2d5b-4c0e-9a53-0d8f4b1b7a10",
		State:      process.StateExited,
		Binary:     "/data/bin/yatori-go-console",
		ExitCode:   2,
		Err:        &process.ExitError{Code: 2},
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}

	if rec.Name() != "history" {
		t.Errorf("Name() = %q", rec.Name())
	}
	if err := rec.Notify(ctx, outcome); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	got, err := repo.Get(ctx, outcome.SessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Error != "exited with code 2" || got.Duration != time.Second {
		t.Errorf("record = %+v", got)
	}
}
