package process

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailed indicates the operating system refused to start the executable.
	ErrSpawnFailed = errors.New("process: spawn failed")

	// ErrAlreadyRunning is returned by Start while a session is starting or running.
	ErrAlreadyRunning = errors.New("process: execution already in progress")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("process: coordinator closed")
)

// ExitError reports a non-zero exit status. It describes a terminal outcome
// of the managed program, not a failure of the coordinator.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with code %d", e.Code)
}
