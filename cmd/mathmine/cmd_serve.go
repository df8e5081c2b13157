package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mathmine/cmd/mathmine/ui"
	"mathmine/internal/logging"
	"mathmine/internal/server"
	"mathmine/internal/usage"
)

var (
	serveAddr string
	runsLimit int
	statsJSON bool
)

// serveCmd serves the dataset over HTTP
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dataset over a read-only JSON API",
	Long: `Endpoints:
  GET /healthz
  GET /api/stats
  GET /api/papers?category=&limit=
  GET /api/theorems?limit=&offset=&paper=&run=
  GET /api/theorems/{id}
  GET /api/runs?limit=
  GET /api/export.jsonl?run=
  GET /api/export.parquet?run=`,
	RunE: runServe,
}

// statsCmd summarizes the dataset
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dataset counts",
	RunE:  runStats,
}

// runsCmd lists recorded runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List fetch, source and extract runs, newest first",
	RunE:  runRuns,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print as JSON")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs")
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	read, write := cfg.GetServerTimeouts()
	srv := server.New(st, server.Options{
		Addr:         addr,
		ReadTimeout:  read,
		WriteTimeout: write,
	}, logging.For(logger, logging.CategoryServer))

	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on http://%s\n", st.Path(), addr)
	return srv.Run(cmd.Context())
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if statsJSON {
		return writeJSON(out, stats)
	}

	rows := [][2]string{
		{"papers", fmt.Sprint(stats.Papers)},
		{"with source", fmt.Sprint(stats.PapersWithText)},
		{"without LaTeX", fmt.Sprint(stats.PapersNoSource)},
		{"theorems", fmt.Sprint(stats.Theorems)},
		{"runs", fmt.Sprint(stats.Runs)},
	}
	if tracker, err := usage.NewTracker(usagePath()); err != nil {
		logger.Warn("token usage unavailable", zap.Error(err))
	} else if total := tracker.Stats().Total; total.Calls > 0 {
		rows = append(rows, [2]string{"LLM tokens", fmt.Sprintf("%d in %d calls", total.Total, total.Calls)})
	}
	fmt.Fprint(out, renderSummary(st.Path(), rows))

	if len(stats.Categories) > 0 {
		cats := make([]string, 0, len(stats.Categories))
		for c := range stats.Categories {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		fmt.Fprintln(out)
		table := ui.NewTable("by category", "Category", "Papers")
		for _, c := range cats {
			table.AddRow(c, fmt.Sprint(stats.Categories[c]))
		}
		fmt.Fprint(out, table.View(styles))
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs")
		return nil
	}

	table := ui.NewTable("", "ID", "Kind", "Started", "Status", "Papers", "Found", "Kept", "Error")
	for _, r := range runs {
		table.AddRow(r.ID[:8], r.Kind, formatTime(r.StartedAt), styles.Status(r.Status),
			fmt.Sprint(r.Counts.Papers), fmt.Sprint(r.Counts.Found), fmt.Sprint(r.Counts.Kept),
			shorten(r.Error, 40))
	}
	fmt.Fprint(cmd.OutOrStdout(), table.View(styles))
	return nil
}
