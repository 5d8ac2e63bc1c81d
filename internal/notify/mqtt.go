package notify

import (
	"context"
	"errors"

	"github.com/nerrad567/yatori-runner/internal/infrastructure/mqtt"
	"github.com/nerrad567/yatori-runner/internal/process"
)

// Publisher is the subset of *mqtt.Client the MQTT notifier needs.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
	Topics() mqtt.Topics
}

// MQTTNotifier publishes each outcome to <prefix>/session/<state> and keeps
// a retained copy on <prefix>/session/last.
type MQTTNotifier struct {
	pub Publisher
}

// NewMQTTNotifier creates a notifier publishing through pub.
func NewMQTTNotifier(pub Publisher) *MQTTNotifier {
	return &MQTTNotifier{pub: pub}
}

// Name identifies the notifier in diagnostics.
func (m *MQTTNotifier) Name() string {
	return "mqtt"
}

// Notify publishes the outcome. Publishing waits on the broker with its own
// timeout; ctx is only checked before starting.
func (m *MQTTNotifier) Notify(ctx context.Context, o process.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := NewOutcomePayload(o)
	topics := m.pub.Topics()

	return errors.Join(
		m.pub.PublishJSON(topics.Session(payload.State), payload, false),
		m.pub.PublishJSON(topics.LastSession(), payload, true),
	)
}
