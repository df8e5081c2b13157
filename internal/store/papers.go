package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Paper is a stored arXiv paper.
type Paper struct {
	ID        string    `json:"id"`
	PaperLink string    `json:"paper_link"`
	LatexLink string    `json:"latex_link"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	Authors   []string  `json:"authors,omitempty"`
	Category  string    `json:"category"`
	Published time.Time `json:"published"`
	FullText  string    `json:"full_text,omitempty"`
	// NoSource marks a submission known to have no LaTeX source.
	NoSource  bool      `json:"no_source,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PaperFilter narrows ListPapers. Zero values match everything.
type PaperFilter struct {
	Category string
	// HasText keeps papers whose source was downloaded.
	HasText bool
	// MissingText keeps papers still waiting for their source. Papers
	// marked NoSource are left out unless IncludeNoSource is set.
	MissingText     bool
	IncludeNoSource bool
	// WithText loads full_text into the results.
	WithText bool
	Limit    int
}

// UpsertPapers inserts papers or refreshes their metadata. A stored full
// text is never overwritten. It returns how many papers were new.
func (s *Store) UpsertPapers(ctx context.Context, papers []Paper) (int, error) {
	inserted := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range papers {
			if p.ID == "" {
				return fmt.Errorf("paper without id: %q", p.PaperLink)
			}
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers WHERE id = ?", p.ID).Scan(&exists); err != nil {
				return fmt.Errorf("lookup paper %s: %w", p.ID, err)
			}
			authors, err := json.Marshal(p.Authors)
			if err != nil {
				return err
			}
			fetchedAt := p.FetchedAt
			if fetchedAt.IsZero() {
				fetchedAt = now()
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO papers (id, paper_link, latex_link, title, summary, authors, category, published, full_text, fetched_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					paper_link = excluded.paper_link,
					latex_link = excluded.latex_link,
					title = excluded.title,
					summary = excluded.summary,
					authors = excluded.authors,
					category = excluded.category,
					published = excluded.published,
					full_text = CASE WHEN papers.full_text = '' THEN excluded.full_text ELSE papers.full_text END`,
				p.ID, p.PaperLink, p.LatexLink, p.Title, p.Summary, string(authors),
				p.Category, formatTime(p.Published), p.FullText, formatTime(fetchedAt))
			if err != nil {
				return fmt.Errorf("upsert paper %s: %w", p.ID, err)
			}
			if exists == 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("papers upserted", zap.Int("total", len(papers)), zap.Int("new", inserted))
	return inserted, nil
}

// ListPapers returns papers newest first.
func (s *Store) ListPapers(ctx context.Context, filter PaperFilter) ([]Paper, error) {
	textColumn := "''"
	if filter.WithText {
		textColumn = "full_text"
	}
	query := fmt.Sprintf(`SELECT id, paper_link, latex_link, title, summary, authors, category, published, %s, no_source, fetched_at FROM papers`, textColumn)

	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.HasText {
		where = append(where, "full_text != ''")
	}
	if filter.MissingText {
		where = append(where, "full_text = ''")
		if !filter.IncludeNoSource {
			where = append(where, "no_source = 0")
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY published DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var papers []Paper
	for rows.Next() {
		var (
			p                    Paper
			authors              string
			published, fetchedAt string
		)
		if err := rows.Scan(&p.ID, &p.PaperLink, &p.LatexLink, &p.Title, &p.Summary, &authors,
			&p.Category, &published, &p.FullText, &p.NoSource, &fetchedAt); err != nil {
			return nil, err
		}
		if authors != "" {
			_ = json.Unmarshal([]byte(authors), &p.Authors)
		}
		p.Published = parseTime(published)
		p.FetchedAt = parseTime(fetchedAt)
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// GetPaper returns one paper including its full text.
func (s *Store) GetPaper(ctx context.Context, id string) (*Paper, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, paper_link, latex_link, title, summary, authors, category, published, full_text, no_source, fetched_at
		FROM papers WHERE id = ?`, id)

	var (
		p                    Paper
		authors              string
		published, fetchedAt string
	)
	err := row.Scan(&p.ID, &p.PaperLink, &p.LatexLink, &p.Title, &p.Summary, &authors,
		&p.Category, &published, &p.FullText, &p.NoSource, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(authors), &p.Authors)
	p.Published = parseTime(published)
	p.FetchedAt = parseTime(fetchedAt)
	return &p, nil
}

// SetFullText stores the flattened LaTeX source of a paper.
func (s *Store) SetFullText(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE papers SET full_text = ?, no_source = 0 WHERE id = ?", text, id)
	if err != nil {
		return fmt.Errorf("set full text of %s: %w", id, err)
	}
	return expectRow(res, id)
}

// MarkNoSource records that a paper's e-print carries no LaTeX, so later
// source downloads skip it.
func (s *Store) MarkNoSource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE papers SET no_source = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark %s without source: %w", id, err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("paper %s: %w", id, ErrNotFound)
	}
	return nil
}
