package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathmine/internal/extract"
	"mathmine/internal/logging"
	"mathmine/internal/perception"
	"mathmine/internal/progress"
	"mathmine/internal/usage"
)

var (
	extractSample          int
	extractCategory        string
	extractIncludeAppendix bool
	extractCompileCheck    bool
)

// extractCmd builds the theorem dataset
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract theorems from downloaded sources and keep the unique-answer ones",
	Long: `For every paper with a LaTeX source:
  1. Strip comments and, unless --include-appendix, the appendix
  2. Extract theorem environments with their labels and numbers
  3. Ask the configured model whether each theorem has a single unique answer
  4. Optionally compile each accepted theorem (--compile-check)

Papers are shuffled with extract.seed before --sample is applied, so a
sample is reproducible. Records with an already seen context are dropped.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().IntVar(&extractSample, "sample", 0, "Process only this many papers (0 = all)")
	extractCmd.Flags().StringVar(&extractCategory, "category", "", "Only papers of this category")
	extractCmd.Flags().BoolVar(&extractIncludeAppendix, "include-appendix", false, "Also extract theorems from appendices")
	extractCmd.Flags().BoolVar(&extractCompileCheck, "compile-check", false, "Drop accepted theorems that do not compile")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := cfg.ValidateLLM(); err != nil {
		return err
	}
	client, err := perception.NewClientFromConfig(ctx, cfg, logging.For(logger, logging.CategoryLLM))
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	opts := extract.Options{
		SkipAppendix: cfg.Extract.SkipAppendix && !extractIncludeAppendix,
		Concurrency:  cfg.Extract.Concurrency,
		Seed:         cfg.Extract.Seed,
	}
	if extractCompileCheck || cfg.Extract.CompileCheck {
		opts.Compiler = &extract.Compiler{
			Command: cfg.Extract.LatexCommand,
			Timeout: cfg.GetCompileTimeout(),
		}
	}

	tracker, err := usage.NewTracker(usagePath())
	if err != nil {
		return err
	}
	ctx = usage.NewContext(ctx, tracker)

	log := logging.For(logger, logging.CategoryExtract)
	pipeline := extract.NewPipeline(extract.NewJudge(client, log), opts, progress.New(), log)
	result, err := pipeline.ProcessDataset(ctx, st, extract.DatasetOptions{
		Sample:   extractSample,
		Category: extractCategory,
	})
	if saveErr := tracker.Save(); saveErr != nil {
		logger.Warn("failed to save token usage", zap.Error(saveErr))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	table := renderSummary("Extraction", [][2]string{
		{"run", result.RunID},
		{"papers", fmt.Sprint(result.Papers)},
		{"theorems found", fmt.Sprint(result.Found)},
		{"unique answer", fmt.Sprint(result.Accepted)},
		{"kept (distinct context)", fmt.Sprint(len(result.Records))},
		{"LLM tokens", fmt.Sprint(tracker.Stats().ByRun[result.RunID].Total)},
	})
	fmt.Fprint(out, table)
	return nil
}

// usagePath keeps token usage next to the dataset database.
func usagePath() string {
	return filepath.Join(filepath.Dir(cfg.Store.DatabasePath), "usage.json")
}
