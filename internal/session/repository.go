// Package session stores the history of execution sessions in SQLite.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/yatori-runner/internal/process"
)

// timeLayout is fixed-width UTC so TEXT ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// List page size bounds.
const (
	defaultLimit = 20
	maxLimit     = 500
)

// ErrNotFound is returned by Get for an unknown session ID.
var ErrNotFound = errors.New("session: not found")

// Record is one finished execution session.
type Record struct {
	ID         string        `json:"id"`
	State      process.State `json:"state"`
	Executable string        `json:"executable,omitempty"`
	PID        int           `json:"pid,omitempty"`
	ExitCode   int           `json:"exit_code"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// FromOutcome converts a terminal outcome into a history record.
func FromOutcome(o process.Outcome) Record {
	return Record{
		ID:         o.SessionID,
		State:      o.State,
		Executable: o.Binary,
		PID:        o.PID,
		ExitCode:   o.ExitCode,
		Error:      o.Message(),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Duration:   o.Duration(),
	}
}

// Filter controls which sessions List returns.
type Filter struct {
	State  process.State // optional
	Since  time.Time     // optional: finished at or after
	Limit  int           // default 20, max 500
	Offset int
}

// Repository defines the interface for session history.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter Filter) ([]Record, int, error)
}

// SQLiteRepository keeps session history in the sessions table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new session repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a record. ID and FinishedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, state, executable, pid, exit_code, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.State), rec.Executable, rec.PID, rec.ExitCode, rec.Error,
		rec.StartedAt.UTC().Format(timeLayout),
		rec.FinishedAt.UTC().Format(timeLayout),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns one session by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM sessions WHERE id = ?", id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns sessions matching filter, most recently finished first,
// together with the total number of matches.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Record, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, string(filter.State))
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "finished_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions"+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE built from parameterised conditions
		return nil, 0, fmt.Errorf("counting sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, //nolint:gosec // WHERE built from parameterised conditions
		"SELECT "+columns+" FROM sessions"+where+" ORDER BY finished_at DESC LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating sessions: %w", err)
	}

	return records, total, nil
}

const columns = "id, state, executable, pid, exit_code, error, started_at, finished_at, duration_ms"

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var state, startedAt, finishedAt string
	var durationMS int64

	if err := s.Scan(&rec.ID, &state, &rec.Executable, &rec.PID, &rec.ExitCode,
		&rec.Error, &startedAt, &finishedAt, &durationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	rec.State = process.State(state)
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", startedAt, err)
	}
	if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
		return nil, fmt.Errorf("parsing finished_at %q: %w", finishedAt, err)
	}
	return &rec, nil
}
