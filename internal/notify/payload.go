package notify

import (
	"fmt"
	"time"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// OutcomePayload is the wire form of a terminal outcome.
type OutcomePayload struct {
	SessionID  string `json:"session_id"`
	State      string `json:"state"`
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error,omitempty"`
	Executable string `json:"executable,omitempty"`
	PID        int    `json:"pid,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
}

// NewOutcomePayload converts o into its wire form.
func NewOutcomePayload(o process.Outcome) OutcomePayload {
	return OutcomePayload{
		SessionID:  o.SessionID,
		State:      string(o.State),
		ExitCode:   o.ExitCode,
		Error:      o.Message(),
		Executable: o.Binary,
		PID:        o.PID,
		StartedAt:  o.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt: o.FinishedAt.UTC().Format(time.RFC3339Nano),
		DurationMS: o.Duration().Milliseconds(),
	}
}

// Summary returns a one-line title and message for human-facing channels.
func Summary(o process.Outcome) (title, message string) {
	d := o.Duration().Round(time.Second)
	switch o.State {
	case process.StateCompleted:
		return "Yatori execution completed", fmt.Sprintf("Finished successfully in %s", d)
	case process.StateExited:
		return "Yatori execution finished with errors", fmt.Sprintf("Exit code %d after %s", o.ExitCode, d)
	case process.StateStopped:
		return "Yatori execution stopped", fmt.Sprintf("Stopped by user after %s", d)
	default:
		return "Yatori execution failed", o.Message()
	}
}
