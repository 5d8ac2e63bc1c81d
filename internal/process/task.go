package process

import "context"

// Task is the caller's handle on one execution session.
type Task struct {
	id      string
	done    chan struct{}
	outcome Outcome // written once before done is closed
	coord   *Coordinator
}

// ID returns the session identifier.
func (t *Task) ID() string {
	return t.id
}

// Done is closed when the session reaches a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the session ends or ctx is cancelled.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Outcome returns the terminal outcome if the session has ended.
func (t *Task) Outcome() (Outcome, bool) {
	select {
	case <-t.done:
		return t.outcome, true
	default:
		return Outcome{}, false
	}
}

// Cancel stops the session if it is still the coordinator's active one.
// It blocks like Coordinator.Stop.
func (t *Task) Cancel() error {
	c := t.coord
	c.mu.RLock()
	s := c.current
	c.mu.RUnlock()
	if s == nil || s.task != t {
		return nil
	}
	return c.stop(s)
}
