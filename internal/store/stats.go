package store

import (
	"context"
	"fmt"
)

// Stats summarizes the dataset.
type Stats struct {
	Papers         int            `json:"papers"`
	PapersWithText int            `json:"papers_with_text"`
	PapersNoSource int            `json:"papers_no_source"`
	Theorems       int            `json:"theorems"`
	Runs           int            `json:"runs"`
	Categories     map[string]int `json:"categories"`
}

// Stats counts papers, theorems and runs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Categories: make(map[string]int)}

	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM papers", &stats.Papers},
		{"SELECT COUNT(*) FROM papers WHERE full_text != ''", &stats.PapersWithText},
		{"SELECT COUNT(*) FROM papers WHERE no_source = 1", &stats.PapersNoSource},
		{"SELECT COUNT(*) FROM theorems", &stats.Theorems},
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT category, COUNT(*) FROM papers GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		stats.Categories[category] = n
	}
	return stats, rows.Err()
}
