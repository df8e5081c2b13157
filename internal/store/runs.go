package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run records one invocation of a pipeline stage.
type Run struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	Params     json.RawMessage `json:"params"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	Status     string          `json:"status"`
	Counts     RunCounts       `json:"counts"`
	Error      string          `json:"error,omitempty"`
}

// RunCounts summarizes what a run produced.
type RunCounts struct {
	Papers int `json:"papers"`
	Found  int `json:"found"`
	Kept   int `json:"kept"`
}

// StartRun records the start of a run. params is stored as JSON.
func (s *Store) StartRun(ctx context.Context, kind string, params any) (*Run, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}
	run := &Run{
		ID:        uuid.NewString(),
		Kind:      kind,
		Params:    raw,
		StartedAt: now(),
		Status:    RunRunning,
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO runs (id, kind, params, started_at, status) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.Kind, string(raw), formatTime(run.StartedAt), run.Status)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run done. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id string, counts RunCounts, runErr error) error {
	status, message := RunSucceeded, ""
	if runErr != nil {
		status, message = RunFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, papers = ?, found = ?, kept = ?, error = ?
		WHERE id = ?`,
		formatTime(now()), status, counts.Papers, counts.Found, counts.Kept, message, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const runColumns = "id, kind, params, started_at, finished_at, status, papers, found, kept, error"

func scanRun(row scanner) (*Run, error) {
	var (
		run               Run
		params            string
		started, finished string
	)
	if err := row.Scan(&run.ID, &run.Kind, &params, &started, &finished, &run.Status,
		&run.Counts.Papers, &run.Counts.Found, &run.Counts.Kept, &run.Error); err != nil {
		return nil, err
	}
	run.Params = json.RawMessage(params)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return &run, nil
}
