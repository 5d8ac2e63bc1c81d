package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nerrad567/yatori-runner/internal/infrastructure/influxdb"
	"github.com/nerrad567/yatori-runner/internal/infrastructure/mqtt"
	"github.com/nerrad567/yatori-runner/internal/notify"
	"github.com/nerrad567/yatori-runner/internal/process"
	"github.com/nerrad567/yatori-runner/internal/retention"
	"github.com/nerrad567/yatori-runner/internal/session"
)

// startupExtractMessage is written to the log store when the executable
// cannot be made ready before the first session.
const startupExtractMessage = "Failed to extract binary on startup: %v"

func newRunCmd(opts *options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run [-- ARGS...]",
		Short: "Run the managed executable until it exits or is interrupted",
		Long: `Run extracts the executable if needed and runs it as one session.
Output is written to today's log partition and, unless --quiet, echoed to stdout.
Interrupting the runner stops the session (SIGTERM, then SIGKILL after the
configured graceful timeout). Arguments after -- replace runner.args.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // Shutdown path

			if len(args) > 0 {
				a.cfg.Runner.Args = args
			}
			var echo io.Writer
			if !quiet {
				echo = cmd.OutOrStdout()
			}
			return runSession(cmd.Context(), a, echo)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not echo output to stdout")
	return cmd
}

// runSession wires history, notifiers and retention around one coordinator
// session and blocks until the session is terminal.
func runSession(ctx context.Context, a *app, echo io.Writer) error {
	log := a.log

	// Startup extraction failure is recorded but not fatal: the session
	// retries and reports its own failure.
	if _, err := a.artifacts.EnsureReady(ctx); err != nil {
		a.logs.Append(fmt.Sprintf(startupExtractMessage, err))
		log.Warn("startup extraction failed", "error", err)
	}

	db, repo, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	dispatcher := notify.NewDispatcher(a.cfg.Notifications.Timeout, session.NewRecorder(repo))
	dispatcher.SetLogger(log.With("component", "notify"))

	if a.cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, outcomes will not be published", "error", err)
		} else {
			mqttClient.SetLogger(log.With("component", "mqtt"))
			defer func() {
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			dispatcher.Add(notify.NewMQTTNotifier(mqttClient))
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
				"client_id", a.cfg.MQTT.Broker.ClientID,
			)
		}
	}

	if a.cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, outcome metrics will not be written", "error", err)
		} else {
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			dispatcher.Add(notify.NewMetricsNotifier(influxClient))
			log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL, "bucket", a.cfg.InfluxDB.Bucket)
		}
	}

	if a.cfg.Notifications.Desktop {
		dispatcher.Add(notify.NewDesktopNotifier())
	}

	if a.cfg.Logs.RetentionDays > 0 && a.cfg.Logs.PruneSchedule != "" {
		scheduler, err := retention.NewScheduler(a.logs, a.cfg.Logs.RetentionDays, a.cfg.Logs.PruneSchedule)
		if err != nil {
			return fmt.Errorf("creating retention scheduler: %w", err)
		}
		scheduler.SetLogger(log.With("component", "retention"))
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting retention scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	var sink process.Sink = a.logs
	if echo != nil {
		sink = &teeSink{store: a.logs, w: echo}
	}

	coord := process.NewCoordinator(process.Config{
		Args:            a.cfg.Runner.Args,
		Env:             a.cfg.Runner.Env,
		WorkDir:         a.cfg.Runner.WorkDir,
		GracefulTimeout: a.cfg.Runner.GracefulTimeout,
		OnTerminal:      dispatcher.OnTerminal,
	}, a.artifacts, sink)
	coord.SetLogger(log.With("component", "process"))

	task, err := coord.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	log.Info("session started", "session", task.ID(), "notifiers", dispatcher.Len())

	select {
	case <-task.Done():
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping session", "session", task.ID())
		if err := coord.Close(); err != nil {
			log.Warn("error stopping session", "error", err)
		}
	}

	outcome, _ := task.Outcome()
	log.Info("session finished",
		"session", outcome.SessionID,
		"state", outcome.State,
		"exit_code", outcome.ExitCode,
		"duration", outcome.Duration(),
	)

	switch outcome.State {
	case process.StateCompleted, process.StateStopped:
		return nil
	case process.StateExited:
		var exitErr *process.ExitError
		if errors.As(outcome.Err, &exitErr) {
			return exitErr
		}
		return outcome.Err
	default:
		return fmt.Errorf("session %s: %s", outcome.State, outcome.Message())
	}
}

// teeSink writes every record to the log store and echoes it to w.
type teeSink struct {
	store process.Sink

	mu sync.Mutex
	w  io.Writer
}

func (t *teeSink) Append(message string) {
	t.store.Append(message)

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, message) //nolint:errcheck // Echo is best-effort
}
