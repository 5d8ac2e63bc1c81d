package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/yatori-runner/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "yatori-test",
		},
		QoS:         1,
		TopicPrefix: "yatori",
	}
}

func TestBuildClientOptions(t *testing.T) {
	t.Run("plain tcp", func(t *testing.T) {
		opts := buildClientOptions(testConfig())

		if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
			t.Errorf("Servers = %v", opts.Servers)
		}
		if opts.ClientID != "yatori-test" {
			t.Errorf("ClientID = %q", opts.ClientID)
		}
		if !opts.AutoReconnect {
			t.Error("AutoReconnect = false")
		}
		if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
			t.Error("TLS configured for plain connection")
		}
		if opts.Username != "" {
			t.Errorf("Username = %q, want empty", opts.Username)
		}
	})

	t.Run("tls and auth", func(t *testing.T) {
		cfg := testConfig()
		cfg.Broker.TLS = true
		cfg.Broker.Port = 8883
		cfg.Auth = config.MQTTAuthConfig{Username: "runner", Password: "secret"}

		opts := buildClientOptions(cfg)

		if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
			t.Errorf("Servers = %v", opts.Servers)
		}
		if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
			t.Error("TLS minimum version not set")
		}
		if opts.Username != "runner" || opts.Password != "secret" {
			t.Error("credentials not applied")
		}
	})

	t.Run("last will", func(t *testing.T) {
		opts := buildClientOptions(testConfig())

		if !opts.WillEnabled || !opts.WillRetained {
			t.Fatal("retained will not configured")
		}
		if opts.WillTopic != "yatori/runner/status" {
			t.Errorf("WillTopic = %q", opts.WillTopic)
		}
		var payload statusPayload
		if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
			t.Fatalf("will payload is not JSON: %v", err)
		}
		if payload.Status != "offline" || payload.Reason != "unexpected_disconnect" {
			t.Errorf("will payload = %+v", payload)
		}
	})
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", Topics{Prefix: "yatori"}.Status(), "yatori/runner/status"},
		{"session", Topics{Prefix: "yatori"}.Session("completed"), "yatori/session/completed"},
		{"last", Topics{Prefix: "yatori"}.LastSession(), "yatori/session/last"},
		{"wildcard", Topics{Prefix: "yatori"}.AllSessions(), "yatori/session/+"},
		{"trimmed prefix", Topics{Prefix: "/lab/runner/"}.Status(), "lab/runner/runner/status"},
		{"default prefix", Topics{}.Session("failed"), "yatori/session/failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPublishValidation(t *testing.T) {
	c := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "yatori/x", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "yatori/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "yatori/x", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishJSON_Unencodable(t *testing.T) {
	c := &Client{}

	err := c.PublishJSON("yatori/x", make(chan int), false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishJSON() error = %v, want ErrPublishFailed", err)
	}
}

func TestUnconnectedClient(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("IsConnected() = true for uninitialised client")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	raw := buildStatusPayload("online", "yatori-test", "")

	var payload statusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Status != "online" || payload.ClientID != "yatori-test" || payload.Timestamp == "" {
		t.Errorf("payload = %+v", payload)
	}
	if strings.Contains(string(raw), "reason") {
		t.Error("empty reason should be omitted")
	}
}
