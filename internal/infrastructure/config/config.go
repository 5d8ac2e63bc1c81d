package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the root of config.yaml.
type Config struct {
	Runner        RunnerConfig        `yaml:"runner"`
	Artifact      ArtifactConfig      `yaml:"artifact"`
	Logs          LogsConfig          `yaml:"logs"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// RunnerConfig controls how the managed executable is launched.
type RunnerConfig struct {
	// Args are command-line arguments passed to the managed executable.
	Args []string `yaml:"args"`

	// Env entries ("KEY=value") are added to the runner's own environment.
	Env []string `yaml:"env"`

	// WorkDir is where the executable starts.
	// If empty, inherits from the runner.
	WorkDir string `yaml:"work_dir"`

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	// Default: 10s
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// ArtifactConfig describes where the bundled executable comes from and where it lands.
type ArtifactConfig struct {
	// ResourceDir is the directory holding the bundled executables
	// ("<base_name>-<arch>" and/or "<base_name>").
	ResourceDir string `yaml:"resource_dir"`

	// Dir is the writable directory the executable is extracted into.
	Dir string `yaml:"dir"`

	// BaseName is the resource base name and the extracted file name.
	// Default: "yatori-go-console"
	BaseName string `yaml:"base_name"`

	// ABIs overrides the detected platform identifiers, most preferred first.
	// If empty, identifiers are derived from the running platform.
	ABIs []string `yaml:"abis"`
}

// LogsConfig contains settings for the persistent execution log store.
type LogsConfig struct {
	Dir       string `yaml:"dir"`
	ExportDir string `yaml:"export_dir"`

	// Prefix is the partition file name prefix ("<prefix>_<date>.log").
	Prefix string `yaml:"prefix"`

	// RetentionDays is how many days of partitions the scheduled prune keeps.
	// 0 disables scheduled pruning.
	RetentionDays int `yaml:"retention_days"`

	// PruneSchedule is a five-field cron expression for the scheduled prune.
	PruneSchedule string `yaml:"prune_schedule"`
}

// DatabaseConfig contains SQLite database settings for session history.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig controls publishing of session outcomes to a broker.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig locates the broker.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig holds optional broker credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig controls session metrics export.
// FlushInterval is in seconds.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// NotificationsConfig contains terminal-outcome notification settings.
type NotificationsConfig struct {
	// Desktop enables desktop notifications (notify-send / osascript).
	Desktop bool `yaml:"desktop"`

	// Timeout bounds how long a single notifier may take.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// LoggingConfig contains operational logging settings.
type LoggingConfig struct {
	Level   string            `yaml:"level"`
	Format  string            `yaml:"format"`
	Output  string            `yaml:"output"`
	File    FileLoggingConfig `yaml:"file"`
	Journal bool              `yaml:"journal"`
}

// FileLoggingConfig contains file-based diagnostics settings.
type FileLoggingConfig struct {
	Path string `yaml:"path"`
}

// ErrNotFound is returned by Load when the configuration file does not exist.
var ErrNotFound = errors.New("config: file not found")

// Load resolves the configuration at path: defaults, overlaid by the YAML
// file, overlaid by YATORI_* environment variables (for example
// YATORI_LOGS_DIR), then validated.
//
// Returns an error wrapping ErrNotFound if path does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg.finish()
}

// Default resolves the configuration without a file.
func Default() (*Config, error) {
	return defaultConfig().finish()
}

// finish applies environment overrides and validates.
func (c *Config) finish() (*Config, error) {
	applyEnvOverrides(c)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// defaultConfig is the configuration used for any key the file omits.
func defaultConfig() *Config {
	return &Config{
		Runner: RunnerConfig{
			GracefulTimeout: 10 * time.Second,
		},
		Artifact: ArtifactConfig{
			ResourceDir: "./assets",
			Dir:         "./data/bin",
			BaseName:    "yatori-go-console",
		},
		Logs: LogsConfig{
			Dir:           "./data/logs",
			ExportDir:     "./data/exports",
			Prefix:        "yatori",
			RetentionDays: 7,
			PruneSchedule: "0 3 * * *",
		},
		Database: DatabaseConfig{
			Path:        "./data/yatori.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "yatori-runner",
			},
			QoS:         1,
			TopicPrefix: "yatori",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Notifications: NotificationsConfig{
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides overlays the YATORI_* variables that are set.
func applyEnvOverrides(cfg *Config) {
	// Artifact
	if v := os.Getenv("YATORI_ARTIFACT_RESOURCE_DIR"); v != "" {
		cfg.Artifact.ResourceDir = v
	}
	if v := os.Getenv("YATORI_ARTIFACT_DIR"); v != "" {
		cfg.Artifact.Dir = v
	}

	// Logs
	if v := os.Getenv("YATORI_LOGS_DIR"); v != "" {
		cfg.Logs.Dir = v
	}
	if v := os.Getenv("YATORI_LOGS_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Logs.RetentionDays = n
		}
	}

	// Database
	if v := os.Getenv("YATORI_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("YATORI_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("YATORI_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("YATORI_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("YATORI_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("YATORI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate reports every invalid setting in one error.
func (c *Config) Validate() error {
	var errs []string

	if c.Artifact.Dir == "" {
		errs = append(errs, "artifact.dir is required")
	}
	if c.Artifact.BaseName == "" {
		errs = append(errs, "artifact.base_name is required")
	} else if strings.ContainsAny(c.Artifact.BaseName, `/\`) {
		errs = append(errs, "artifact.base_name must not contain path separators")
	}

	if c.Logs.Dir == "" {
		errs = append(errs, "logs.dir is required")
	}
	if c.Logs.Prefix == "" {
		errs = append(errs, "logs.prefix is required")
	}
	if c.Logs.RetentionDays < 0 {
		errs = append(errs, "logs.retention_days must not be negative")
	}
	if c.Logs.PruneSchedule != "" {
		if _, err := cron.ParseStandard(c.Logs.PruneSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("logs.prune_schedule is invalid: %v", err))
		}
	}

	if c.Runner.GracefulTimeout < 0 {
		errs = append(errs, "runner.graceful_timeout must not be negative")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
