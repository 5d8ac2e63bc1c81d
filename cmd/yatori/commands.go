package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/yatori-runner/internal/artifact"
	"github.com/nerrad567/yatori-runner/internal/logstore"
	"github.com/nerrad567/yatori-runner/internal/process"
	"github.com/nerrad567/yatori-runner/internal/session"
)

const timeFormat = "2006-01-02 15:04:05"

func newExtractCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the bundled executable for this architecture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // Shutdown path

			extract := a.artifacts.EnsureReady
			if force {
				extract = a.artifacts.Extract
			}
			path, err := extract(cmd.Context())
			if err != nil {
				return fmt.Errorf("extracting executable: %w", err)
			}

			exe, _ := a.artifacts.Resolve()
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s)\n", path, exe.Architecture, logstore.Humanize(exe.Size))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-extract even if the executable is ready")
	return cmd
}

// statusReport is the JSON form of the status command.
type statusReport struct {
	Executable artifact.Executable  `json:"executable"`
	LogSize    int64                `json:"log_size"`
	Partitions []logstore.Partition `json:"partitions"`
	Sessions   []session.Record     `json:"sessions,omitempty"`
}

func newStatusCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show executable, log and session status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // Shutdown path

			var report statusReport
			report.Executable, _ = a.artifacts.Resolve()

			if report.LogSize, err = a.logs.TotalSize(); err != nil {
				return fmt.Errorf("measuring logs: %w", err)
			}
			if report.Partitions, err = a.logs.ListPartitions(); err != nil {
				return fmt.Errorf("listing partitions: %w", err)
			}

			db, repo, err := a.openHistory(cmd.Context())
			if err != nil {
				a.log.Warn("session history unavailable", "error", err)
			} else {
				defer db.Close() //nolint:errcheck // Read-only use
				report.Sessions, _, err = repo.List(cmd.Context(), session.Filter{Limit: 5})
				if err != nil {
					return fmt.Errorf("listing sessions: %w", err)
				}
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printStatus(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printStatus(out io.Writer, r statusReport) {
	exe := r.Executable
	state := "missing"
	switch {
	case exe.Verified:
		state = "ready"
	case exe.Available:
		state = "empty"
	case exe.Size > 0:
		state = "not executable"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Executable:\t%s\n", exe.Path)
	fmt.Fprintf(w, "Architecture:\t%s\n", exe.Architecture)
	fmt.Fprintf(w, "State:\t%s\n", state)
	if exe.Size > 0 {
		fmt.Fprintf(w, "Size:\t%s\n", logstore.Humanize(exe.Size))
	}
	if exe.ContentType != "" {
		fmt.Fprintf(w, "Content type:\t%s\n", exe.ContentType)
	}
	fmt.Fprintf(w, "Logs:\t%s in %d partition(s)\n", logstore.Humanize(r.LogSize), len(r.Partitions))
	w.Flush() //nolint:errcheck // Terminal output

	if len(r.Sessions) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Recent sessions:")
		printSessions(out, r.Sessions)
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var (
		state  string
		since  time.Duration
		limit  int
		offset int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [SESSION_ID]",
		Short: "List past sessions, or show one session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck // Shutdown path

			db, repo, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only use

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				rec, err := repo.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, rec)
				}
				printSessions(out, []session.Record{*rec})
				if rec.Error != "" {
					fmt.Fprintf(out, "\nError: %s\n", rec.Error)
				}
				return nil
			}

			if state != "" && !process.State(state).Terminal() {
				return fmt.Errorf("invalid state %q: must be a terminal state", state)
			}

			filter := session.Filter{
				State:  process.State(state),
				Limit:  limit,
				Offset: offset,
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			records, total, err := repo.List(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}
			if asJSON {
				return writeJSON(out, map[string]any{"sessions": records, "total": total})
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			printSessions(out, records)
			fmt.Fprintf(out, "\n%d of %d session(s)\n", len(records), total)
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "filter by terminal state (completed, exited, failed, stopped)")
	cmd.Flags().DurationVar(&since, "since", 0, "only sessions finished within this duration")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "sessions to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printSessions(out io.Writer, records []session.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tEXIT\tSTARTED\tDURATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.State, r.ExitCode,
			r.StartedAt.Local().Format(timeFormat),
			r.Duration.Round(time.Millisecond))
	}
	w.Flush() //nolint:errcheck // Terminal output
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
