package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nerrad567/yatori-runner/internal/artifact"
	"github.com/nerrad567/yatori-runner/internal/infrastructure/config"
	"github.com/nerrad567/yatori-runner/internal/infrastructure/database"
	"github.com/nerrad567/yatori-runner/internal/infrastructure/logging"
	"github.com/nerrad567/yatori-runner/internal/logstore"
	"github.com/nerrad567/yatori-runner/internal/session"
	"github.com/nerrad567/yatori-runner/migrations"
)

// app holds the components every command needs.
type app struct {
	cfg       *config.Config
	log       *logging.Logger
	artifacts *artifact.Store
	logs      *logstore.Store
}

// configPath returns the configuration file path and whether it was chosen
// explicitly (flag or environment) rather than defaulted.
func configPath(opts *options) (string, bool) {
	if opts.configPath != "" {
		return opts.configPath, true
	}
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration. A missing file at the default path
// falls back to built-in defaults; a missing explicit path is an error.
func loadConfig(opts *options) (*config.Config, string, error) {
	path, explicit := configPath(opts)

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit || !errors.Is(err, config.ErrNotFound) {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	cfg, err = config.Default()
	if err != nil {
		return nil, "", fmt.Errorf("loading default config: %w", err)
	}
	return cfg, "", nil
}

// openApp loads configuration and builds the logger, artifact store and log store.
func openApp(opts *options) (*app, error) {
	cfg, path, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log := logging.New(cfg.Logging, version)
	if path != "" {
		log.Debug("configuration loaded", "path", path)
	} else {
		log.Debug("no configuration file, using defaults")
	}

	artifacts := artifact.NewStore(artifact.Config{
		Dir:      cfg.Artifact.Dir,
		BaseName: cfg.Artifact.BaseName,
		ABIs:     cfg.Artifact.ABIs,
	}, artifact.NewDirResources(cfg.Artifact.ResourceDir))
	artifacts.SetLogger(log.With("component", "artifact"))

	logs, err := logstore.New(logstore.Config{
		Dir:       cfg.Logs.Dir,
		ExportDir: cfg.Logs.ExportDir,
		Prefix:    cfg.Logs.Prefix,
	})
	if err != nil {
		log.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("opening log store: %w", err)
	}
	logs.SetLogger(log.With("component", "logstore"))

	return &app{
		cfg:       cfg,
		log:       log,
		artifacts: artifacts,
		logs:      logs,
	}, nil
}

// Close releases the logger's sinks.
func (a *app) Close() error {
	return a.log.Close()
}

// openHistory opens the session database and applies pending migrations.
func (a *app) openHistory(ctx context.Context) (*database.DB, *session.SQLiteRepository, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.Database.Path,
		WALMode:     a.cfg.Database.WALMode,
		BusyTimeout: a.cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, session.NewSQLiteRepository(db.DB), nil
}
