package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePruner struct {
	mu    sync.Mutex
	calls []int
	n     int
	err   error
}

func (f *fakePruner) Prune(days int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, days)
	return f.n, f.err
}

func (f *fakePruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name    string
		pruner  Pruner
		days    int
		expr    string
		wantErr bool
	}{
		{name: "valid", pruner: &fakePruner{}, days: 7, expr: "0 3 * * *"},
		{name: "zero days", pruner: &fakePruner{}, days: 0, expr: "*/5 * * * *"},
		{name: "nil pruner", pruner: nil, days: 7, expr: "0 3 * * *", wantErr: true},
		{name: "negative days", pruner: &fakePruner{}, days: -1, expr: "0 3 * * *", wantErr: true},
		{name: "seconds field rejected", pruner: &fakePruner{}, days: 7, expr: "0 0 3 * * *", wantErr: true},
		{name: "garbage", pruner: &fakePruner{}, days: 7, expr: "nightly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScheduler(tt.pruner, tt.days, tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewScheduler() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScheduler_StartPrunesImmediately(t *testing.T) {
	p := &fakePruner{n: 2}
	s, err := NewScheduler(p, 7, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if got := p.callCount(); got != 1 {
		t.Fatalf("Prune called %d times, want 1", got)
	}
	if p.calls[0] != 7 {
		t.Errorf("Prune days = %d, want 7", p.calls[0])
	}

	last, removed := s.Stats()
	if last.IsZero() {
		t.Error("Stats() lastRun is zero after Start")
	}
	if removed != 2 {
		t.Errorf("Stats() removed = %d, want 2", removed)
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	s, err := NewScheduler(&fakePruner{}, 1, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestScheduler_StopAndRestart(t *testing.T) {
	p := &fakePruner{}
	s, err := NewScheduler(p, 1, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.Stop() // never started

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Stop()
	s.Stop()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() after Stop error = %v", err)
	}
	s.Stop()

	if got := p.callCount(); got != 2 {
		t.Errorf("Prune called %d times, want 2", got)
	}
}

func TestScheduler_ContextCancelStops(t *testing.T) {
	s, err := NewScheduler(&fakePruner{}, 1, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := s.Start(context.Background()); err == nil {
			s.Stop()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("scheduler still running after context cancellation")
}

func TestScheduler_PruneNowError(t *testing.T) {
	wantErr := errors.New("disk gone")
	p := &fakePruner{n: 1, err: wantErr}
	s, err := NewScheduler(p, 3, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	n, err := s.PruneNow()
	if !errors.Is(err, wantErr) {
		t.Errorf("PruneNow() error = %v, want %v", err, wantErr)
	}
	if n != 1 {
		t.Errorf("PruneNow() = %d, want 1", n)
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s, err := NewScheduler(&fakePruner{}, 7, "0 3 * * *")
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	from := time.Date(2024, 12, 16, 10, 30, 0, 0, time.UTC)
	want := time.Date(2024, 12, 17, 3, 0, 0, 0, time.UTC)
	if got := s.NextRun(from); !got.Equal(want) {
		t.Errorf("NextRun() = %v, want %v", got, want)
	}
}
