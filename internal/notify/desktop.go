package notify

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// runFunc executes a command. Replaced in tests.
type runFunc func(ctx context.Context, name string, args ...string) error

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DesktopNotifier shows a desktop notification when a session ends.
type DesktopNotifier struct {
	goos string
	run  runFunc
}

// NewDesktopNotifier creates a notifier for the running platform.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{goos: runtime.GOOS, run: runCommand}
}

// Name identifies the notifier in diagnostics.
func (d *DesktopNotifier) Name() string {
	return "desktop"
}

// Notify shows the outcome summary. Unsupported platforms are a no-op.
func (d *DesktopNotifier) Notify(ctx context.Context, o process.Outcome) error {
	title, message := Summary(o)

	switch d.goos {
	case "darwin":
		script := `display notification "` + appleScriptEscape(message) +
			`" with title "` + appleScriptEscape(title) + `"`
		return d.run(ctx, "osascript", "-e", script)
	case "linux":
		return d.run(ctx, "notify-send", "--icon", iconFor(o.State), title, message)
	default:
		return nil
	}
}

// iconFor returns a freedesktop icon name for the terminal state.
func iconFor(s process.State) string {
	switch s {
	case process.StateCompleted:
		return "dialog-positive"
	case process.StateExited, process.StateStopped:
		return "dialog-warning"
	default:
		return "dialog-error"
	}
}

var appleScriptReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func appleScriptEscape(s string) string {
	return appleScriptReplacer.Replace(s)
}
