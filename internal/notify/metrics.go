package notify

import (
	"context"
	"time"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// sessionMeasurement is the InfluxDB measurement for session outcomes.
const sessionMeasurement = "yatori_session"

// PointWriter is the subset of *influxdb.Client the metrics notifier needs.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// MetricsNotifier writes one point per outcome, tagged by terminal state.
type MetricsNotifier struct {
	w PointWriter
}

// NewMetricsNotifier creates a notifier writing through w.
func NewMetricsNotifier(w PointWriter) *MetricsNotifier {
	return &MetricsNotifier{w: w}
}

// Name identifies the notifier in diagnostics.
func (m *MetricsNotifier) Name() string {
	return "metrics"
}

// Notify queues the session point. The write itself is batched.
func (m *MetricsNotifier) Notify(ctx context.Context, o process.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.w.WritePoint(sessionMeasurement,
		map[string]string{"state": string(o.State)},
		map[string]any{
			"exit_code":   o.ExitCode,
			"duration_ms": o.Duration().Milliseconds(),
			"success":     o.State == process.StateCompleted,
			"session_id":  o.SessionID,
		},
		o.FinishedAt,
	)
	return nil
}
