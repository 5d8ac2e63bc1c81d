package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
runner:
  args: ["--headless"]
  graceful_timeout: 3s
artifact:
  resource_dir: "/opt/yatori/assets"
  dir: "/var/lib/yatori/bin"
  base_name: "yatori-go-console"
logs:
  dir: "/var/lib/yatori/logs"
  retention_days: 14
database:
  path: "/tmp/test.db"
mqtt:
  enabled: true
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Artifact.Dir != "/var/lib/yatori/bin" {
		t.Errorf("Artifact.Dir = %q, want %q", cfg.Artifact.Dir, "/var/lib/yatori/bin")
	}
	if cfg.Runner.GracefulTimeout != 3*time.Second {
		t.Errorf("Runner.GracefulTimeout = %v, want 3s", cfg.Runner.GracefulTimeout)
	}
	if len(cfg.Runner.Args) != 1 || cfg.Runner.Args[0] != "--headless" {
		t.Errorf("Runner.Args = %v, want [--headless]", cfg.Runner.Args)
	}
	if cfg.Logs.RetentionDays != 14 {
		t.Errorf("Logs.RetentionDays = %d, want 14", cfg.Logs.RetentionDays)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	// Unset values keep their defaults.
	if cfg.Logs.Prefix != "yatori" {
		t.Errorf("Logs.Prefix = %q, want default %q", cfg.Logs.Prefix, "yatori")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
artifact:
  base_name: "bin/yatori"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected validation error for base_name with separator, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("YATORI_LOGS_DIR", "/env/logs")
	t.Setenv("YATORI_LOGS_RETENTION_DAYS", "30")
	t.Setenv("YATORI_MQTT_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, "logs:\n  dir: /file/logs\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logs.Dir != "/env/logs" {
		t.Errorf("Logs.Dir = %q, want %q", cfg.Logs.Dir, "/env/logs")
	}
	if cfg.Logs.RetentionDays != 30 {
		t.Errorf("Logs.RetentionDays = %d, want 30", cfg.Logs.RetentionDays)
	}
	if cfg.MQTT.Auth.Password != "s3cret" {
		t.Errorf("MQTT.Auth.Password not overridden")
	}
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if cfg.Artifact.BaseName != "yatori-go-console" {
		t.Errorf("Artifact.BaseName = %q, want %q", cfg.Artifact.BaseName, "yatori-go-console")
	}
	if cfg.Runner.GracefulTimeout != 10*time.Second {
		t.Errorf("Runner.GracefulTimeout = %v, want 10s", cfg.Runner.GracefulTimeout)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing artifact dir",
			mutate:  func(c *Config) { c.Artifact.Dir = "" },
			wantErr: true,
		},
		{
			name:    "missing logs dir",
			mutate:  func(c *Config) { c.Logs.Dir = "" },
			wantErr: true,
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Logs.RetentionDays = -1 },
			wantErr: true,
		},
		{
			name:    "negative graceful timeout",
			mutate:  func(c *Config) { c.Runner.GracefulTimeout = -time.Second },
			wantErr: true,
		},
		{
			name: "invalid mqtt qos when enabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: true,
		},
		{
			name:    "invalid mqtt qos ignored when disabled",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: false,
		},
		{
			name:    "invalid prune schedule",
			mutate:  func(c *Config) { c.Logs.PruneSchedule = "every night" },
			wantErr: true,
		},
		{
			name:    "empty prune schedule disables scheduling",
			mutate:  func(c *Config) { c.Logs.PruneSchedule = "" },
			wantErr: false,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
