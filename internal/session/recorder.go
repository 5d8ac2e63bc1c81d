package session

import (
	"context"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// Recorder persists every terminal outcome it is notified of.
type Recorder struct {
	repo Repository
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo}
}

// Name identifies the recorder in notification diagnostics.
func (r *Recorder) Name() string {
	return "history"
}

// Notify stores the outcome as a session record.
func (r *Recorder) Notify(ctx context.Context, o process.Outcome) error {
	rec := FromOutcome(o)
	return r.repo.Create(ctx, &rec)
}
