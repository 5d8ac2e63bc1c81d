// Package process runs the managed executable as a monitored subprocess.
//
// A Coordinator admits at most one session at a time. Each session resolves
// the executable, spawns it in its own process group with stdout and stderr
// merged, forwards every output line to a Sink, and ends in exactly one
// terminal state:
//
//	completed  exit code 0
//	exited     non-zero exit code (Outcome.Err is an *ExitError)
//	failed     resolution, spawn or internal error
//	stopped    terminated by Stop, Close or Task.Cancel
//
// Example usage:
//
//	coord := process.NewCoordinator(process.Config{
//	    GracefulTimeout: 10 * time.Second,
//	    OnTerminal:      func(o process.Outcome) { log.Println(o.State) },
//	}, artifacts, logs)
//
//	task, err := coord.Start(ctx)
//	if err != nil {
//	    return err
//	}
//	outcome, err := task.Wait(ctx)
package process
