package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathmine/internal/arxiv"
	"mathmine/internal/logging"
	"mathmine/internal/progress"
	"mathmine/internal/store"
)

var (
	fetchCategory string
	fetchMax      int
	fetchStart    string

	sourceWorkers int
	sourceLimit   int
	sourceRecheck bool
)

// fetchCmd retrieves paper metadata from arXiv
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Retrieve paper metadata from arXiv into the dataset store",
	Long: `Searches arXiv for papers of a category submitted after --start. The
search window grows by arxiv.time_window_days until --max papers are found
or the window runs past the present.

Examples:
  mathmine fetch --category math --start 2023-03 --max 200
  mathmine fetch --category cs.IT --start 2022-06-15`,
	RunE: runFetch,
}

// sourceCmd downloads LaTeX sources
var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Download LaTeX sources for papers that do not have one yet",
	RunE:  runSource,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchCategory, "category", "", "arXiv category, e.g. math or math.GR (default from config)")
	fetchCmd.Flags().IntVar(&fetchMax, "max", 100, "Maximum number of papers")
	fetchCmd.Flags().StringVar(&fetchStart, "start", "2023-03", "First submission date (YYYY-MM or YYYY-MM-DD)")

	sourceCmd.Flags().IntVar(&sourceWorkers, "workers", 2, "Concurrent downloads")
	sourceCmd.Flags().IntVar(&sourceLimit, "limit", 0, "Download at most this many sources (0 = all)")
	sourceCmd.Flags().BoolVar(&sourceRecheck, "recheck", false, "Retry papers previously found to have no LaTeX source")
}

func newArxivClient() *arxiv.Client {
	return arxiv.NewClient(arxiv.ClientConfig{
		BaseURL:    cfg.Arxiv.BaseURL,
		PageSize:   cfg.Arxiv.PageSize,
		Delay:      cfg.GetArxivDelay(),
		MaxRetries: cfg.Arxiv.MaxRetries,
		Timeout:    cfg.GetArxivTimeout(),
	}, logging.For(logger, logging.CategoryArxiv))
}

func parseStart(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start date %q (want YYYY-MM or YYYY-MM-DD)", s)
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	category := fetchCategory
	if category == "" {
		category = cfg.Arxiv.Category
	}
	start, err := parseStart(fetchStart)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.StartRun(ctx, "fetch", map[string]any{
		"category": category,
		"start":    start.Format("2006-01-02"),
		"max":      fetchMax,
	})
	if err != nil {
		return err
	}

	retriever := &arxiv.Retriever{
		Searcher: newArxivClient(),
		Category: category,
		Start:    start,
		Window:   time.Duration(cfg.Arxiv.TimeWindowDays) * 24 * time.Hour,
		Logger:   logging.For(logger, logging.CategoryArxiv),
	}
	result, retrieveErr := retriever.Retrieve(ctx, fetchMax)

	var papers []store.Paper
	if result != nil {
		papers = toStorePapers(result.Papers, category)
	}
	added := 0
	if len(papers) > 0 {
		// Partial results of an interrupted search are kept.
		if added, err = st.UpsertPapers(ctx, papers); err != nil {
			retrieveErr = errors.Join(retrieveErr, err)
		}
	}
	counts := store.RunCounts{Papers: len(papers), Found: len(papers), Kept: added}
	if err := st.FinishRun(context.WithoutCancel(ctx), run.ID, counts, retrieveErr); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
	if retrieveErr != nil {
		return retrieveErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s retrieved %d papers (%d new), window %s to %s\n",
		styles.Success.Render("✓"), len(papers), added,
		result.Start.Format("2006-01-02"), result.End.Format("2006-01-02"))
	return nil
}

func toStorePapers(papers []arxiv.Paper, category string) []store.Paper {
	out := make([]store.Paper, 0, len(papers))
	for _, p := range papers {
		cat := p.PrimaryCategory
		if cat == "" {
			cat = category
		}
		out = append(out, store.Paper{
			ID:        p.ID,
			PaperLink: p.PaperLink,
			LatexLink: p.LatexLink,
			Title:     p.Title,
			Summary:   p.Summary,
			Authors:   p.Authors,
			Category:  cat,
			Published: p.Published,
		})
	}
	return out
}

func runSource(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	pending, err := st.ListPapers(ctx, store.PaperFilter{MissingText: true, IncludeNoSource: sourceRecheck, Limit: sourceLimit})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "all sources downloaded")
		return nil
	}

	run, err := st.StartRun(ctx, "source", map[string]any{"papers": len(pending), "workers": sourceWorkers})
	if err != nil {
		return err
	}

	papers := make([]arxiv.Paper, 0, len(pending))
	for _, p := range pending {
		papers = append(papers, arxiv.Paper{ID: p.ID, PaperLink: p.PaperLink, LatexLink: p.LatexLink, Title: p.Title})
	}

	log := logging.For(logger, logging.CategoryArxiv)
	bar := progress.New()
	bar.Start(len(papers), "downloading sources")
	var stored, missing atomic.Int64
	fetchErr := newArxivClient().FetchSources(ctx, papers, sourceWorkers, func(p arxiv.Paper, text string, err error) error {
		defer bar.Add(1)
		switch {
		case errors.Is(err, arxiv.ErrNoSource):
			missing.Add(1)
			log.Info("no LaTeX source", zap.String("paper", p.ID))
			if err := st.MarkNoSource(ctx, p.ID); err != nil {
				return fmt.Errorf("mark %s: %w", p.ID, err)
			}
			return nil
		case err != nil:
			missing.Add(1)
			log.Warn("source download failed", zap.String("paper", p.ID), zap.Error(err))
			return nil
		}
		if err := st.SetFullText(ctx, p.ID, text); err != nil {
			return fmt.Errorf("store source of %s: %w", p.ID, err)
		}
		stored.Add(1)
		return nil
	})
	bar.Stop()

	counts := store.RunCounts{Papers: len(papers), Found: len(papers) - int(missing.Load()), Kept: int(stored.Load())}
	if err := st.FinishRun(context.WithoutCancel(ctx), run.ID, counts, fetchErr); err != nil {
		logger.Warn("failed to record run", zap.Error(err))
	}
	if fetchErr != nil {
		return fetchErr
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s stored %d of %d sources\n", styles.Success.Render("✓"), stored.Load(), len(papers))
	return nil
}
