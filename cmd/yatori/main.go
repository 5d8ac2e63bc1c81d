// Yatori Runner - managed executable runner.
//
// This is the main entry point for the yatori command. It extracts the bundled
// executable for the host architecture, runs it as a single supervised session,
// and keeps its output in a date-partitioned log store with session history.
//
// For package details, see internal/process and internal/logstore.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv overrides the default configuration path.
const configEnv = "YATORI_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM so a running session is stopped cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return
	}

	// The managed executable's own exit code is passed through.
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// options are the persistent flags shared by every command.
type options struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "yatori",
		Short: "Yatori Runner - run the bundled console executable",
		Long: `Yatori Runner extracts the bundled yatori-go-console executable for this
machine's architecture, runs it as a single supervised session, and keeps its
output in daily log files together with a history of past sessions.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file path (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newRunCmd(opts),
		newExtractCmd(opts),
		newStatusCmd(opts),
		newHistoryCmd(opts),
		newLogsCmd(opts),
	)
	return root
}
