package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of an execution session.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateExited    State = "exited"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Active reports whether a session in this state blocks a new Start.
func (s State) Active() bool {
	return s == StateStarting || s == StateRunning
}

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateExited, StateFailed, StateStopped:
		return true
	}
	return false
}

// Records written to the sink around the program's own output.
const (
	msgAlreadyRunning = "Execution already in progress"
	msgStarting       = "Starting execution: %s"
	msgCompleted      = "Execution completed with exit code: %d"
	msgFailed         = "Execution failed: %s"
	msgStopped        = "Execution stopped by user"
)

// outputDrainTimeout bounds how long output is read after the process exits.
// A detached grandchild can hold the pipe open indefinitely.
const outputDrainTimeout = 2 * time.Second

// Artifacts makes the executable ready and returns its path.
type Artifacts interface {
	EnsureReady(ctx context.Context) (string, error)
}

// Sink receives one record per output line plus the session's status records.
type Sink interface {
	Append(message string)
}

// Config holds configuration for the coordinator.
type Config struct {
	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnTerminal is called exactly once per session when it reaches a terminal state.
	// It runs on the session's worker goroutine before Stop or Task.Wait return,
	// so it must not call Stop, Close or Task.Cancel itself.
	OnTerminal func(Outcome)
}

// Logger defines the logging interface for the coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Outcome describes how a session ended.
type Outcome struct {
	SessionID  string    `json:"session_id"`
	State      State     `json:"state"`
	Binary     string    `json:"binary,omitempty"`
	PID        int       `json:"pid,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the session's wall-clock length.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Message returns the outcome error text, or "" for a clean exit.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// session is one attempt at running the executable.
type session struct {
	id        string
	task      *Task
	state     State
	binary    string
	cmd       *exec.Cmd
	createdAt time.Time
	startTime time.Time
	cancel    context.CancelFunc

	// stopped is set under streamMu so no output line is appended after Stop.
	streamMu sync.Mutex
	stopped  atomic.Bool

	// reaped is set under the coordinator lock once Wait has returned; the
	// process group id must not be signalled after that.
	reaped bool
}

// Coordinator runs the executable as a monitored subprocess, one session at a time.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Start and Stop never block on spawning, reading or waiting; Stop blocks
//     only until the session it stops has terminated.
type Coordinator struct {
	config    Config
	artifacts Artifacts
	sink      Sink
	logger    Logger

	mu       sync.RWMutex
	current  *session
	last     *Outcome
	sessions int
	closed   bool
}

// NewCoordinator creates a coordinator that resolves the executable through
// artifacts and records everything it prints to sink.
func NewCoordinator(cfg Config, artifacts Artifacts, sink Sink) *Coordinator {
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}

	return &Coordinator{
		config:    cfg,
		artifacts: artifacts,
		sink:      sink,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// Start begins a new session and returns immediately.
//
// If a session is already starting or running, no process is spawned: the
// in-flight task is returned together with ErrAlreadyRunning.
// The context is used for admission only; a session lives until it ends or is stopped.
func (c *Coordinator) Start(ctx context.Context) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if s := c.current; s != nil && s.state.Active() {
		task := s.task
		c.mu.Unlock()

		c.sink.Append(msgAlreadyRunning)
		c.logger.Warn("execution already in progress", "session", s.id)
		return task, ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{
		id:        uuid.NewString(),
		state:     StateStarting,
		createdAt: time.Now(),
		cancel:    cancel,
	}
	s.task = &Task{id: s.id, done: make(chan struct{}), coord: c}
	c.current = s
	c.sessions++
	c.mu.Unlock()

	c.logger.Info("execution session starting", "session", s.id)

	go c.run(runCtx, s)

	return s.task, nil
}

// run is the session worker. Every exit path ends in finish.
func (c *Coordinator) run(ctx context.Context, s *session) {
	var outcome Outcome
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("execution worker panicked", "session", s.id, "panic", r)
			outcome = c.failed(s, fmt.Errorf("internal error: %v", r))
		}
		c.finish(s, outcome)
	}()

	outcome = c.execute(ctx, s)
}

// execute resolves, spawns and waits for the executable.
func (c *Coordinator) execute(ctx context.Context, s *session) Outcome {
	binary, err := c.artifacts.EnsureReady(ctx)
	if err != nil {
		if s.stopped.Load() {
			return c.stoppedOutcome(s, 0)
		}
		return c.failed(s, err)
	}

	c.sink.Append(fmt.Sprintf(msgStarting, binary))

	pr, pw, err := os.Pipe()
	if err != nil {
		return c.failed(s, fmt.Errorf("%w: creating output pipe: %v", ErrSpawnFailed, err))
	}

	cmd := exec.Command(binary, c.config.Args...) //nolint:gosec // Binary comes from the artifact store
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if c.config.Env != nil {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}
	if c.config.WorkDir != "" {
		cmd.Dir = c.config.WorkDir
	}
	// stdout and stderr share one pipe so lines keep their interleaving.
	cmd.Stdout = pw
	cmd.Stderr = pw

	// Spawn under the coordinator lock so Stop sees either the stop flag
	// honoured here or a PID it can signal.
	c.mu.Lock()
	if s.stopped.Load() {
		c.mu.Unlock()
		pr.Close() //nolint:errcheck // Unused
		pw.Close() //nolint:errcheck // Unused
		return c.stoppedOutcome(s, 0)
	}
	err = cmd.Start()
	if err == nil {
		s.cmd = cmd
		s.binary = binary
		s.state = StateRunning
		s.startTime = time.Now()
	}
	c.mu.Unlock()

	// The child holds its own copy of the write end.
	pw.Close() //nolint:errcheck // Parent copy only

	if err != nil {
		pr.Close() //nolint:errcheck // Nothing to read
		return c.failed(s, fmt.Errorf("%w: %v", ErrSpawnFailed, err))
	}

	pid := cmd.Process.Pid
	c.logger.Info("process started", "session", s.id, "binary", binary, "pid", pid)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.captureOutput(s, pr)
	}()

	waitErr := cmd.Wait()

	c.mu.Lock()
	s.reaped = true
	c.mu.Unlock()

	select {
	case <-readDone:
	case <-time.After(outputDrainTimeout):
		c.logger.Warn("output still open after exit, closing", "session", s.id, "pid", pid)
		pr.Close() //nolint:errcheck // Unblocks the reader
		<-readDone
	}
	pr.Close() //nolint:errcheck // Already drained

	if s.stopped.Load() {
		return c.stoppedOutcome(s, pid)
	}

	code, err := exitCode(waitErr)
	if err != nil {
		return c.failed(s, err)
	}

	c.sink.Append(fmt.Sprintf(msgCompleted, code))

	outcome := c.outcome(s, StateCompleted)
	outcome.PID = pid
	outcome.ExitCode = code
	if code != 0 {
		outcome.State = StateExited
		outcome.Err = &ExitError{Code: code}
	}
	return outcome
}

// captureOutput appends each line read from r, in order, until EOF or Stop.
func (c *Coordinator) captureOutput(s *session, r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			c.appendOutput(s, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				c.logger.Debug("output stream closed", "session", s.id, "error", err)
			}
			return
		}
	}
}

func (c *Coordinator) appendOutput(s *session, line string) {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	if s.stopped.Load() {
		return
	}
	c.sink.Append(line)
}

// exitCode maps a Wait error to an exit status. A process killed by a signal
// reports 128+signal, the shell convention.
func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0, fmt.Errorf("waiting for process: %w", err)
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}

func (c *Coordinator) outcome(s *session, state State) Outcome {
	c.mu.RLock()
	binary, startedAt := s.binary, s.startTime
	c.mu.RUnlock()
	if startedAt.IsZero() {
		startedAt = s.createdAt
	}
	return Outcome{
		SessionID:  s.id,
		State:      state,
		Binary:     binary,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}
}

func (c *Coordinator) failed(s *session, err error) Outcome {
	c.sink.Append(fmt.Sprintf(msgFailed, err))
	c.logger.Error("execution failed", "session", s.id, "error", err)

	outcome := c.outcome(s, StateFailed)
	outcome.ExitCode = -1
	outcome.Err = err
	return outcome
}

func (c *Coordinator) stoppedOutcome(s *session, pid int) Outcome {
	c.sink.Append(msgStopped)

	outcome := c.outcome(s, StateStopped)
	outcome.PID = pid
	outcome.ExitCode = -1
	return outcome
}

// finish publishes the terminal state, runs the callback and releases waiters.
func (c *Coordinator) finish(s *session, outcome Outcome) {
	s.cancel()

	c.mu.Lock()
	s.state = outcome.State
	c.last = &outcome
	c.mu.Unlock()

	c.logger.Info("execution session ended",
		"session", s.id,
		"state", outcome.State,
		"exit_code", outcome.ExitCode,
		"duration", outcome.Duration(),
	)

	if c.config.OnTerminal != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error("terminal callback panicked", "session", s.id, "panic", r)
				}
			}()
			c.config.OnTerminal(outcome)
		}()
	}

	s.task.outcome = outcome
	close(s.task.done)
}

// Stop terminates the active session. It is a no-op when nothing is running.
// It sends SIGTERM to the process group, waits GracefulTimeout, then SIGKILL,
// and returns once the session is terminal and its callback has run.
func (c *Coordinator) Stop() error {
	c.mu.RLock()
	s := c.current
	c.mu.RUnlock()
	if s == nil {
		return nil
	}
	return c.stop(s)
}

func (c *Coordinator) stop(s *session) error {
	c.mu.RLock()
	active := s.state.Active()
	c.mu.RUnlock()
	if !active {
		// Already terminal; the callback may still be running.
		<-s.task.done
		return nil
	}

	s.streamMu.Lock()
	s.stopped.Store(true)
	s.streamMu.Unlock()

	c.mu.RLock()
	var pid int
	if s.cmd != nil && s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}
	c.mu.RUnlock()

	// Aborts a pending extraction.
	s.cancel()

	done := s.task.done
	if pid == 0 {
		<-done
		c.logger.Info("execution stopped before spawn", "session", s.id)
		return nil
	}

	c.logger.Info("stopping process", "session", s.id, "pid", pid)

	if err := c.signalGroup(s, pid, syscall.SIGTERM); err != nil {
		c.logger.Warn("failed to send SIGTERM to process group", "pid", pid, "error", err)
	}

	select {
	case <-done:
		c.logger.Info("process stopped gracefully", "session", s.id)
		return nil
	case <-time.After(c.config.GracefulTimeout):
		c.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"session", s.id,
			"timeout", c.config.GracefulTimeout,
		)
	}

	var killErr error
	if err := c.signalGroup(s, pid, syscall.SIGKILL); err != nil {
		killErr = fmt.Errorf("killing process group %d: %w", pid, err)
	}

	<-done
	c.logger.Info("process killed", "session", s.id)

	return killErr
}

// signalGroup sends sig to the session's process group unless the process has
// already been reaped, in which case the id may belong to someone else.
func (c *Coordinator) signalGroup(s *session, pid int, sig syscall.Signal) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s.reaped {
		return nil
	}
	select {
	case <-s.task.done:
		return nil
	default:
	}
	// Negative PID signals the whole process group created via Setpgid.
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// Close stops any active session and rejects further Starts.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Stop()
}

// State returns the current session state: the live state while a session is
// active, otherwise the last terminal state (idle before the first session).
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return StateIdle
	}
	return c.current.state
}

// IsRunning returns true while a session is starting or running.
func (c *Coordinator) IsRunning() bool {
	return c.State().Active()
}

// LastOutcome returns the outcome of the most recently finished session.
func (c *Coordinator) LastOutcome() (Outcome, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Outcome{}, false
	}
	return *c.last, true
}

// PID returns the process ID of the running session, or 0.
func (c *Coordinator) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.current; s != nil && s.state == StateRunning && s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// Uptime returns how long the current process has been running.
// Returns 0 if no process is running.
func (c *Coordinator) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s := c.current; s != nil && s.state == StateRunning {
		return time.Since(s.startTime)
	}
	return 0
}

// Stats is a point-in-time snapshot of the coordinator.
type Stats struct {
	SessionID    string        `json:"session_id,omitempty"`
	State        State         `json:"state"`
	Binary       string        `json:"binary,omitempty"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	Sessions     int           `json:"sessions"`
	LastExitCode int           `json:"last_exit_code,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the coordinator.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		State:    StateIdle,
		Sessions: c.sessions,
	}

	if s := c.current; s != nil {
		stats.SessionID = s.id
		stats.State = s.state
		stats.Binary = s.binary
		if s.state == StateRunning {
			stats.Uptime = time.Since(s.startTime)
			if s.cmd != nil && s.cmd.Process != nil {
				stats.PID = s.cmd.Process.Pid
			}
		}
	}

	if c.last != nil {
		stats.LastExitCode = c.last.ExitCode
		stats.LastError = c.last.Message()
	}

	return stats
}
