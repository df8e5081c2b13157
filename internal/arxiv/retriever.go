package arxiv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Searcher runs an arXiv search query. *Client implements it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, fn func(Paper) bool) error
}

// Retriever collects papers of one category submitted after Start. The
// search window [Start, end] grows by Window until enough papers are found.
type Retriever struct {
	Searcher Searcher
	Category string
	Start    time.Time
	Window   time.Duration

	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
}

// Result is the outcome of Retrieve.
type Result struct {
	Papers []Paper
	Start  time.Time
	// End is the upper bound of the last window searched.
	End time.Time
}

// Retrieve gathers up to limit distinct papers. A window that fails is
// logged and the window is extended. The search stops early once the
// window reaches past the present without producing anything new, or when
// ctx is done; the partial result is returned in both cases, with ctx's
// error in the latter.
func (r *Retriever) Retrieve(ctx context.Context, limit int) (*Result, error) {
	if r.Searcher == nil {
		return nil, fmt.Errorf("retriever has no searcher")
	}
	if r.Window <= 0 {
		return nil, fmt.Errorf("time window must be positive, got %s", r.Window)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := r.Now
	if now == nil {
		now = time.Now
	}

	res := &Result{Start: r.Start, End: r.Start.Add(r.Window)}
	seen := make(map[string]bool)

	logger.Info("starting search",
		zap.String("category", r.Category),
		zap.Time("start", r.Start),
		zap.Int("limit", limit))

	for len(res.Papers) < limit {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		before := len(res.Papers)
		query := WindowQuery(r.Category, r.Start, res.End)

		err := r.Searcher.Search(ctx, query, limit-len(res.Papers), func(p Paper) bool {
			if seen[p.ID] {
				return true
			}
			seen[p.ID] = true
			res.Papers = append(res.Papers, p)
			if len(res.Papers)%100 == 0 {
				logger.Info("retrieved papers so far", zap.Int("count", len(res.Papers)))
			}
			return len(res.Papers) < limit
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			if errors.Is(err, ErrUnexpectedEmptyPage) {
				logger.Warn("empty page, extending window", zap.Time("end", res.End), zap.Error(err))
			} else {
				logger.Error("window search failed, extending window", zap.Time("end", res.End), zap.Error(err))
			}
		}

		found := len(res.Papers) - before
		if found == 0 {
			if res.End.After(now().Add(r.Window)) {
				logger.Info("window passed the present with nothing new, stopping",
					zap.Time("end", res.End),
					zap.Int("count", len(res.Papers)))
				break
			}
			logger.Info("no new papers in window, extending", zap.Time("end", res.End))
			res.End = res.End.Add(r.Window)
			continue
		}

		logger.Info("window searched", zap.Int("new", found), zap.Time("end", res.End))
		if len(res.Papers) >= limit {
			logger.Info("reached target", zap.Int("limit", limit))
			break
		}
		res.End = res.End.Add(r.Window)
	}

	logger.Info("retrieval finished",
		zap.Int("count", len(res.Papers)),
		zap.Time("start", res.Start),
		zap.Time("end", res.End))
	return res, nil
}
