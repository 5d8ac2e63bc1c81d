package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("retention scheduler already started")

// Pruner removes log partitions older than a number of days.
type Pruner interface {
	Prune(retentionDays int) (int, error)
}

// Logger defines the logging interface used by the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Scheduler runs a Pruner on a cron schedule.
//
// Thread Safety: all methods are safe for concurrent use.
type Scheduler struct {
	pruner   Pruner
	days     int
	schedule cron.Schedule
	expr     string
	logger   Logger

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun time.Time
	removed int
}

// NewScheduler creates a scheduler that keeps retentionDays of partitions,
// pruning whenever expr fires.
func NewScheduler(p Pruner, retentionDays int, expr string) (*Scheduler, error) {
	if p == nil {
		return nil, errors.New("retention: pruner is required")
	}
	if retentionDays < 0 {
		return nil, fmt.Errorf("retention: days must not be negative, got %d", retentionDays)
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("retention: parsing schedule %q: %w", expr, err)
	}
	return &Scheduler{
		pruner:   p,
		days:     retentionDays,
		schedule: sched,
		expr:     expr,
		logger:   noopLogger{},
	}, nil
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start prunes once immediately, then on every schedule tick until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	c := cron.New(cron.WithParser(parser))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.PruneNow() //nolint:errcheck // Logged inside
	}))
	s.cron = c
	s.mu.Unlock()

	s.PruneNow() //nolint:errcheck // Logged inside
	c.Start()
	s.logger.Info("log retention scheduled",
		"schedule", s.expr,
		"retention_days", s.days,
		"next", s.schedule.Next(time.Now()),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// PruneNow runs one prune and returns the number of partitions removed.
func (s *Scheduler) PruneNow() (int, error) {
	n, err := s.pruner.Prune(s.days)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.removed += n
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("log retention prune failed", "error", err, "removed", n)
		return n, err
	}
	if n > 0 {
		s.logger.Info("log partitions pruned", "removed", n, "retention_days", s.days)
	}
	return n, nil
}

// Stop halts scheduling and waits for a running prune to finish.
// Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// NextRun reports when the next scheduled prune fires after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Stats returns the time of the last prune and the total partitions removed.
func (s *Scheduler) Stats() (lastRun time.Time, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.removed
}
