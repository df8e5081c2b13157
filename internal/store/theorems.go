package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Theorem is one accepted theorem of the dataset.
type Theorem struct {
	ID           int64     `json:"id"`
	PaperLink    string    `json:"paper_link"`
	Env          string    `json:"env,omitempty"`
	Label        string    `json:"label,omitempty"`
	DisplayLabel string    `json:"display_label,omitempty"`
	Number       string    `json:"number,omitempty"`
	Context      string    `json:"context"`
	Content      string    `json:"theorem"`
	Explanation  string    `json:"unique_answer_explanation"`
	RunID        string    `json:"run_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TheoremFilter narrows ListTheorems.
type TheoremFilter struct {
	PaperLink string
	RunID     string
	Limit     int
	Offset    int
}

const theoremColumns = "id, paper_link, env, label, display_label, number, context, theorem, explanation, run_id, created_at"

// InsertTheorems stores records in one transaction and sets their IDs.
func (s *Store) InsertTheorems(ctx context.Context, records []Theorem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO theorems (paper_link, env, label, display_label, number, context, theorem, explanation, run_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range records {
			r := &records[i]
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now()
			}
			res, err := stmt.ExecContext(ctx, r.PaperLink, r.Env, r.Label, r.DisplayLabel, r.Number,
				r.Context, r.Content, r.Explanation, r.RunID, formatTime(r.CreatedAt))
			if err != nil {
				return fmt.Errorf("insert theorem from %s: %w", r.PaperLink, err)
			}
			if r.ID, err = res.LastInsertId(); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTheorems returns theorems in insertion order.
func (s *Store) ListTheorems(ctx context.Context, filter TheoremFilter) ([]Theorem, error) {
	query := "SELECT " + theoremColumns + " FROM theorems"
	var (
		where []string
		args  []any
	)
	if filter.PaperLink != "" {
		where = append(where, "paper_link = ?")
		args = append(args, filter.PaperLink)
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list theorems: %w", err)
	}
	defer rows.Close()

	var out []Theorem
	for rows.Next() {
		t, err := scanTheorem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTheorem returns the theorem with the given id.
func (s *Store) GetTheorem(ctx context.Context, id int64) (*Theorem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+theoremColumns+" FROM theorems WHERE id = ?", id)
	t, err := scanTheorem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("theorem %d: %w", id, ErrNotFound)
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTheorem(row scanner) (*Theorem, error) {
	var (
		t         Theorem
		createdAt string
	)
	if err := row.Scan(&t.ID, &t.PaperLink, &t.Env, &t.Label, &t.DisplayLabel, &t.Number,
		&t.Context, &t.Content, &t.Explanation, &t.RunID, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}
