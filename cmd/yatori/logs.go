package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/yatori-runner/internal/logstore"
)

func newLogsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Read and manage execution log partitions",
	}
	cmd.AddCommand(
		newLogsReadCmd(opts),
		newLogsListCmd(opts),
		newLogsClearCmd(opts),
		newLogsPruneCmd(opts),
		newLogsSizeCmd(opts),
		newLogsExportCmd(opts),
		newLogsFollowCmd(opts),
	)
	return cmd
}

// dateArg parses an optional YYYY-MM-DD argument. Absent means today.
func dateArg(args []string) (time.Time, error) {
	if len(args) == 0 {
		return time.Time{}, nil
	}
	return logstore.ParseDate(args[0])
}

// withLogs opens the app for the duration of fn.
func withLogs(opts *options, fn func(a *app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // Shutdown path
	return fn(a)
}

func newLogsReadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "read [DATE]",
		Short: "Print a day's log (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateArg(args)
			if err != nil {
				return err
			}
			return withLogs(opts, func(a *app) error {
				content, err := a.logs.Read(d)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			})
		},
	}
}

func newLogsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List log partitions, most recently modified first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLogs(opts, func(a *app) error {
				partitions, err := a.logs.ListPartitions()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(partitions) == 0 {
					fmt.Fprintln(out, "No log files.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tSIZE\tMODIFIED\tFILE")
				for _, p := range partitions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						p.Date.Format(time.DateOnly),
						logstore.Humanize(p.Size),
						p.ModTime.Format(timeFormat),
						p.Name)
				}
				return w.Flush()
			})
		},
	}
}

func newLogsClearCmd(opts *options) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [DATE]",
		Short: "Empty a day's log (default today), or delete all logs with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("--all cannot be combined with a date")
			}
			d, err := dateArg(args)
			if err != nil {
				return err
			}
			return withLogs(opts, func(a *app) error {
				if all {
					if err := a.logs.ClearAll(); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "All logs deleted.")
					return nil
				}
				if err := a.logs.Clear(d); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", a.logs.PartitionPath(d))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every log partition")
	return cmd
}

func newLogsPruneCmd(opts *options) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete partitions older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLogs(opts, func(a *app) error {
				keep := a.cfg.Logs.RetentionDays
				if cmd.Flags().Changed("days") {
					keep = days
				}
				removed, err := a.logs.Prune(keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d partition(s) older than %d day(s)\n", removed, keep)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default logs.retention_days)")
	return cmd
}

func newLogsSizeCmd(opts *options) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "size",
		Short: "Print the total size of all partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLogs(opts, func(a *app) error {
				size, err := a.logs.TotalSize()
				if err != nil {
					return err
				}
				if raw {
					fmt.Fprintln(cmd.OutOrStdout(), size)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), logstore.Humanize(size))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "bytes", false, "print the size in bytes")
	return cmd
}

func newLogsExportCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "export [DATE]",
		Short: "Snapshot a day's log (default today) for sharing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateArg(args)
			if err != nil {
				return err
			}
			return withLogs(opts, func(a *app) error {
				handle, err := a.logs.Export(d)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), handle)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s (%s, %s)\n",
					handle.Subject, handle.Path, handle.ContentType, logstore.Humanize(handle.Size))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the export handle as JSON")
	return cmd
}

func newLogsFollowCmd(opts *options) *cobra.Command {
	var fromStart bool

	cmd := &cobra.Command{
		Use:   "follow [DATE]",
		Short: "Print lines as they are appended to a day's log (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dateArg(args)
			if err != nil {
				return err
			}
			return withLogs(opts, func(a *app) error {
				out := cmd.OutOrStdout()
				return a.logs.Follow(cmd.Context(), d, fromStart, func(line string) {
					fmt.Fprintln(out, line)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "print existing lines first")
	return cmd
}
