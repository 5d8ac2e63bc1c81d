//go:build integration

package mqtt

import (
	"errors"
	"testing"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectPublishClose(t *testing.T) {
	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}

	outcome := map[string]any{"state": "completed", "exit_code": 0}
	if err := client.PublishJSON(client.Topics().Session("completed"), outcome, false); err != nil {
		t.Errorf("PublishJSON() error = %v", err)
	}
	if err := client.PublishJSON(client.Topics().LastSession(), outcome, true); err != nil {
		t.Errorf("PublishJSON() retained error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_BrokerRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19998

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
