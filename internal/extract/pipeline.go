package extract

import (
	"context"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mathmine/internal/latex"
	"mathmine/internal/progress"
	"mathmine/internal/store"
	"mathmine/internal/usage"
)

// DefaultSeed makes dataset sampling reproducible.
const DefaultSeed = 42

// Store is the part of the dataset store the pipeline needs.
type Store interface {
	ListPapers(ctx context.Context, filter store.PaperFilter) ([]store.Paper, error)
	GetPaper(ctx context.Context, id string) (*store.Paper, error)
	InsertTheorems(ctx context.Context, records []store.Theorem) error
	StartRun(ctx context.Context, kind string, params any) (*store.Run, error)
	FinishRun(ctx context.Context, id string, counts store.RunCounts, runErr error) error
}

// Options configures a Pipeline.
type Options struct {
	SkipAppendix bool
	// Concurrency bounds the theorems judged at once within a paper.
	Concurrency int
	Seed        int64
	// Compiler, when set, drops accepted theorems that do not compile.
	Compiler *Compiler
}

// Pipeline extracts and judges theorems.
type Pipeline struct {
	judge  *Judge
	opts   Options
	logger *zap.Logger
	bar    *progress.Bar
}

// NewPipeline creates a pipeline. bar may be nil.
func NewPipeline(judge *Judge, opts Options, bar *progress.Bar, logger *zap.Logger) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bar == nil {
		bar = &progress.Bar{}
	}
	return &Pipeline{judge: judge, opts: opts, logger: logger, bar: bar}
}

// ProcessPaper extracts the theorems of one paper and returns the accepted
// ones, in document order, with the number of theorems found.
func (p *Pipeline) ProcessPaper(ctx context.Context, paperLink, source string) ([]store.Theorem, int, error) {
	macros := latex.CustomCommands(source)
	text := latex.RemoveComments(source)
	if p.opts.SkipAppendix {
		var truncated bool
		text, truncated = latex.TruncateAppendix(text)
		if truncated {
			p.logger.Debug("appendix skipped", zap.String("paper", paperLink))
		}
	}

	theorems := latex.Extract(text)
	if len(theorems) == 0 {
		p.logger.Debug("no theorems found", zap.String("paper", paperLink))
		return nil, 0, nil
	}

	accepted := make([]*store.Theorem, len(theorems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, th := range theorems {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			verdict := p.judge.Evaluate(gctx, th.Content)
			if !verdict.Unique {
				p.logger.Debug("theorem rejected",
					zap.String("paper", paperLink),
					zap.String("label", th.DisplayLabel))
				return nil
			}
			if p.opts.Compiler != nil {
				if err := p.opts.Compiler.Check(gctx, macros, th.Content); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					p.logger.Debug("theorem does not compile",
						zap.String("paper", paperLink),
						zap.String("label", th.DisplayLabel),
						zap.Error(err))
					return nil
				}
			}
			accepted[i] = &store.Theorem{
				PaperLink:    paperLink,
				Env:          th.Env,
				Label:        th.Label,
				DisplayLabel: th.DisplayLabel,
				Number:       th.Number,
				Context:      latex.ContextBefore(text, th.Start),
				Content:      th.Content,
				Explanation:  verdict.Explanation,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(theorems), err
	}
	if err := ctx.Err(); err != nil {
		return nil, len(theorems), err
	}

	var records []store.Theorem
	for _, r := range accepted {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, len(theorems), nil
}

// DatasetOptions selects the papers of a dataset run.
type DatasetOptions struct {
	// Sample keeps the first N papers after shuffling; zero keeps all.
	Sample   int    `json:"sample,omitempty"`
	Category string `json:"category,omitempty"`
}

// DatasetResult summarizes a dataset run.
type DatasetResult struct {
	RunID    string
	Papers   int
	Found    int
	Accepted int
	Records  []store.Theorem
}

// ProcessDataset runs every downloaded paper through ProcessPaper and stores
// the accepted theorems, keeping the first record for each context.
func (p *Pipeline) ProcessDataset(ctx context.Context, st Store, opts DatasetOptions) (*DatasetResult, error) {
	run, err := st.StartRun(ctx, "extract", struct {
		DatasetOptions
		SkipAppendix bool  `json:"skip_appendix"`
		Seed         int64 `json:"seed"`
		CompileCheck bool  `json:"compile_check"`
	}{opts, p.opts.SkipAppendix, p.opts.Seed, p.opts.Compiler != nil})
	if err != nil {
		return nil, err
	}

	ctx = usage.WithRun(ctx, run.ID)
	result, err := p.processDataset(ctx, st, opts, run.ID)
	counts := store.RunCounts{}
	if result != nil {
		counts = store.RunCounts{Papers: result.Papers, Found: result.Found, Kept: len(result.Records)}
	}
	// Record the outcome even when ctx was cancelled.
	if finishErr := st.FinishRun(context.WithoutCancel(ctx), run.ID, counts, err); finishErr != nil {
		p.logger.Warn("failed to record run", zap.String("run", run.ID), zap.Error(finishErr))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) processDataset(ctx context.Context, st Store, opts DatasetOptions, runID string) (*DatasetResult, error) {
	// Sources are loaded one paper at a time after sampling.
	papers, err := st.ListPapers(ctx, store.PaperFilter{Category: opts.Category, HasText: true})
	if err != nil {
		return nil, err
	}
	loaded := len(papers)

	papers = dedupePapers(shufflePapers(papers, p.opts.Seed))
	if opts.Sample > 0 && opts.Sample < len(papers) {
		papers = papers[:opts.Sample]
	}
	p.logger.Info("dataset loaded",
		zap.Int("papers", loaded),
		zap.Int("duplicates", loaded-len(papers)),
		zap.Int("selected", len(papers)))

	result := &DatasetResult{RunID: runID, Papers: len(papers)}
	var all []store.Theorem

	p.bar.Start(len(papers), "papers")
	defer p.bar.Stop()
	for i, paper := range papers {
		link := paper.PaperLink
		if link == "" {
			link = fmt.Sprintf("paper_%d", i)
		}
		p.bar.Describe(fmt.Sprintf("paper %d/%d", i+1, len(papers)))

		full, err := st.GetPaper(ctx, paper.ID)
		if err != nil {
			return result, fmt.Errorf("paper %s: %w", link, err)
		}
		records, found, err := p.ProcessPaper(ctx, link, full.FullText)
		if err != nil {
			return result, fmt.Errorf("paper %s: %w", link, err)
		}
		result.Found += found
		result.Accepted += len(records)
		all = append(all, records...)
		p.bar.Add(1)

		p.logger.Info("paper processed",
			zap.String("paper", link),
			zap.Int("found", found),
			zap.Int("accepted", len(records)),
			zap.Int("total_found", result.Found),
			zap.Int("total_accepted", result.Accepted))
	}

	result.Records = dedupeContexts(all)
	for i := range result.Records {
		result.Records[i].RunID = runID
	}
	if len(result.Records) > 0 {
		if err := st.InsertTheorems(ctx, result.Records); err != nil {
			return result, err
		}
	}
	p.logger.Info("dataset complete",
		zap.Int("papers", result.Papers),
		zap.Int("found", result.Found),
		zap.Int("accepted", result.Accepted),
		zap.Int("kept", len(result.Records)))
	return result, nil
}

func shufflePapers(papers []store.Paper, seed int64) []store.Paper {
	out := append([]store.Paper(nil), papers...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func dedupePapers(papers []store.Paper) []store.Paper {
	seen := make(map[string]bool, len(papers))
	var out []store.Paper
	for _, p := range papers {
		if p.PaperLink != "" && seen[p.PaperLink] {
			continue
		}
		seen[p.PaperLink] = true
		out = append(out, p)
	}
	return out
}

func dedupeContexts(records []store.Theorem) []store.Theorem {
	seen := make(map[string]bool, len(records))
	var out []store.Theorem
	for _, r := range records {
		if seen[r.Context] {
			continue
		}
		seen[r.Context] = true
		out = append(out, r)
	}
	return out
}
