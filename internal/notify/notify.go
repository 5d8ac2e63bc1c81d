// Package notify fans terminal session outcomes out to the runner's
// observers: session history, MQTT, InfluxDB and the desktop.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// maxConcurrent bounds how many notifiers run at once.
const maxConcurrent = 4

// Notifier receives terminal outcomes.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, o process.Outcome) error
}

// Logger defines the logging interface for the dispatcher.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Debug(string, ...any) {}

// Dispatcher delivers each outcome to every registered notifier concurrently.
// A failing or slow notifier never prevents delivery to the others.
type Dispatcher struct {
	timeout time.Duration
	logger  Logger

	mu        sync.RWMutex
	notifiers []Notifier
}

// NewDispatcher creates a dispatcher giving each notifier at most timeout.
func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		timeout:   timeout,
		logger:    noopLogger{},
		notifiers: notifiers,
	}
}

// SetLogger sets the logger for delivery failures.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Add registers another notifier.
func (d *Dispatcher) Add(n Notifier) {
	d.mu.Lock()
	d.notifiers = append(d.notifiers, n)
	d.mu.Unlock()
}

// Len returns the number of registered notifiers.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.notifiers)
}

// Dispatch delivers o to all notifiers and returns every failure joined.
func (d *Dispatcher) Dispatch(ctx context.Context, o process.Outcome) error {
	d.mu.RLock()
	notifiers := append([]Notifier(nil), d.notifiers...)
	d.mu.RUnlock()

	var (
		g      errgroup.Group
		errsMu sync.Mutex
		errs   []error
	)
	g.SetLimit(maxConcurrent)

	for _, n := range notifiers {
		g.Go(func() error {
			nctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			if err := safeNotify(nctx, n, o); err != nil {
				d.logger.Warn("notification failed",
					"notifier", n.Name(),
					"session", o.SessionID,
					"error", err,
				)
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
				errsMu.Unlock()
				return nil
			}
			d.logger.Debug("notification delivered", "notifier", n.Name(), "session", o.SessionID)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // Workers report through errs

	return errors.Join(errs...)
}

// OnTerminal adapts the dispatcher to process.Config.OnTerminal.
func (d *Dispatcher) OnTerminal(o process.Outcome) {
	_ = d.Dispatch(context.Background(), o) //nolint:errcheck // Already logged per notifier
}

func safeNotify(ctx context.Context, n Notifier, o process.Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.Notify(ctx, o)
}
