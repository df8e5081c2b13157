package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mathmine/cmd/mathmine/ui"
	"mathmine/internal/config"
	"mathmine/internal/store"
)

// setupCLI points the global state at a fresh database in a temp dir.
func setupCLI(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg = config.DefaultConfig()
	cfg.Store.DatabasePath = filepath.Join(dir, "mathmine.db")
	cfg.Export.Dir = filepath.Join(dir, "exports")
	logger = zaptest.NewLogger(t)
	styles = ui.NewStyles(ui.LightTheme())
	t.Setenv("MATHMINE_PROGRESS", "false")
	t.Setenv("MATHMINE_DB", "")
	return dir
}

func newCmd() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestManifestLint(t *testing.T) {
	dir := setupCLI(t)
	lintStrict, lintWatch = false, false

	clean := writeFile(t, dir, "clean.txt", "numpy>=1.24.0  # arrays\nscipy>=1.10.0\n")
	cmd, out := newCmd()
	require.NoError(t, runManifestLint(cmd, []string{clean}))
	assert.Contains(t, out.String(), "✓")

	broken := writeFile(t, dir, "broken.txt", "numpy>=1.24.0\nnumpy==1.20.0\nnot a specifier!\n")
	cmd, out = newCmd()
	err := runManifestLint(cmd, []string{broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 problem(s)")
	assert.Contains(t, out.String(), "[conflict]")
	assert.Contains(t, out.String(), "line 3")
}

func TestManifestFmt(t *testing.T) {
	dir := setupCLI(t)
	path := writeFile(t, dir, "requirements.txt", "# tools\nnumpy>=1.24.0  # arrays\n\nrequests[socks]>=2.31\n")

	fmtWrite = false
	cmd, out := newCmd()
	require.NoError(t, runManifestFmt(cmd, []string{path}))
	assert.Equal(t, "numpy>=1.24.0\nrequests[socks]>=2.31\n", out.String())

	fmtWrite = true
	defer func() { fmtWrite = false }()
	cmd, _ = newCmd()
	require.NoError(t, runManifestFmt(cmd, []string{path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "numpy>=1.24.0\nrequests[socks]>=2.31\n", string(data))
}

func TestManifestShow(t *testing.T) {
	dir := setupCLI(t)
	path := writeFile(t, dir, "requirements.txt", "numpy>=1.24.0  # arrays\nrequests\n")

	cmd, out := newCmd()
	require.NoError(t, runManifestShow(cmd, []string{path}))
	assert.Contains(t, out.String(), "2 requirements")
	assert.Contains(t, out.String(), "arrays")
	assert.Contains(t, out.String(), "any")
}

func TestManifestCheck(t *testing.T) {
	dir := setupCLI(t)
	path := writeFile(t, dir, "requirements.txt", "numpy>=1.24.0\nscipy>=1.10.0\n")
	checkInstalled = writeFile(t, dir, "installed.txt", "numpy==1.26.4\nscipy==1.9.3\n")
	defer func() { checkInstalled = "" }()

	cmd, out := newCmd()
	err := runManifestCheck(cmd, []string{path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out.String(), "satisfied")
	assert.Contains(t, out.String(), "violated")
}

func atomFeed(ids ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom">`)
	fmt.Fprintf(&b, `<opensearch:totalResults xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">%d</opensearch:totalResults>`, len(ids))
	for _, id := range ids {
		fmt.Fprintf(&b, `<entry><id>http://arxiv.org/abs/%s</id><title>Paper %s</title><published>2023-03-01T00:00:00Z</published>`+
			`<arxiv:primary_category xmlns:arxiv="http://arxiv.org/schemas/atom" term="math.GR"/></entry>`, id, id)
	}
	b.WriteString(`</feed>`)
	return b.String()
}

func TestFetch(t *testing.T) {
	setupCLI(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("search_query"), "cat:math.*")
		fmt.Fprint(w, atomFeed("2303.00001v1", "2303.00002v1"))
	}))
	defer srv.Close()
	cfg.Arxiv.BaseURL = srv.URL
	cfg.Arxiv.Delay = "1ms"

	fetchCategory, fetchMax = "math", 2
	fetchStart = time.Now().AddDate(0, -1, 0).Format("2006-01-02")
	cmd, out := newCmd()
	require.NoError(t, runFetch(cmd, nil))
	assert.Contains(t, out.String(), "retrieved 2 papers (2 new)")

	st, err := store.Open(cfg.Store.DatabasePath, nil)
	require.NoError(t, err)
	defer st.Close()
	papers, err := st.ListPapers(context.Background(), store.PaperFilter{})
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "math.GR", papers[0].Category)

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fetch", runs[0].Kind)
	assert.Equal(t, store.RunSucceeded, runs[0].Status)
	assert.Equal(t, 2, runs[0].Counts.Kept)
}

func TestFetch_InvalidStart(t *testing.T) {
	setupCLI(t)
	fetchStart = "March 2023"
	defer func() { fetchStart = "2023-03" }()
	cmd, _ := newCmd()
	assert.ErrorContains(t, runFetch(cmd, nil), "invalid start date")
}

func TestSource(t *testing.T) {
	setupCLI(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "pdf-only") {
			fmt.Fprint(w, "%PDF-1.5 binary")
			return
		}
		fmt.Fprint(w, `\documentclass{article}\begin{document}hello\end{document}`)
	}))
	defer srv.Close()
	cfg.Arxiv.Delay = "1ms"

	st, err := store.Open(cfg.Store.DatabasePath, nil)
	require.NoError(t, err)
	_, err = st.UpsertPapers(context.Background(), []store.Paper{
		{ID: "tex", PaperLink: "link-tex", LatexLink: srv.URL + "/e-print/tex"},
		{ID: "pdf", PaperLink: "link-pdf", LatexLink: srv.URL + "/e-print/pdf-only"},
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	sourceWorkers, sourceLimit = 2, 0
	cmd, out := newCmd()
	require.NoError(t, runSource(cmd, nil))
	assert.Contains(t, out.String(), "stored 1 of 2 sources")

	st, err = store.Open(cfg.Store.DatabasePath, nil)
	require.NoError(t, err)
	defer st.Close()
	p, err := st.GetPaper(context.Background(), "tex")
	require.NoError(t, err)
	assert.Contains(t, p.FullText, "hello")

	pdf, err := st.GetPaper(context.Background(), "pdf")
	require.NoError(t, err)
	assert.True(t, pdf.NoSource)
	assert.Empty(t, pdf.FullText)
	require.NoError(t, st.Close())

	// PDF-only submissions are not downloaded again.
	cmd, out = newCmd()
	require.NoError(t, runSource(cmd, nil))
	assert.Equal(t, "all sources downloaded\n", out.String())

	sourceRecheck = true
	t.Cleanup(func() { sourceRecheck = false })
	cmd, out = newCmd()
	require.NoError(t, runSource(cmd, nil))
	assert.Contains(t, out.String(), "stored 0 of 1 sources")
}

const paperTeX = `\documentclass{article}
\newtheorem{theorem}{Theorem}
\begin{document}
\section{Intro}
Let $G$ be a group of order $6$.
\begin{theorem}\label{thm:main}
$G$ has exactly one subgroup of order $3$.
\end{theorem}
\end{document}
`

// seedDataset stores one paper with a source and returns the open store.
func seedDataset(t *testing.T) {
	t.Helper()
	st, err := store.Open(cfg.Store.DatabasePath, nil)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.UpsertPapers(context.Background(), []store.Paper{
		{ID: "2303.00001v1", PaperLink: "http://arxiv.org/abs/2303.00001v1", Category: "math.GR", FullText: paperTeX},
	})
	require.NoError(t, err)
}

func fakeOpenAI(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": reply}}},
			"usage":   map[string]int{"prompt_tokens": 100, "completion_tokens": 10},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract(t *testing.T) {
	setupCLI(t)
	seedDataset(t)
	srv := fakeOpenAI(t, `{"single_unique_answer": "true", "explanation": "the Sylow 3-subgroup is normal"}`)
	cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL = "openai", "test-key", srv.URL

	extractSample, extractCategory = 0, ""
	extractIncludeAppendix, extractCompileCheck = false, false
	cmd, out := newCmd()
	require.NoError(t, runExtract(cmd, nil))
	assert.Contains(t, out.String(), "kept (distinct context)")
	assert.Contains(t, out.String(), "110")
	assert.FileExists(t, usagePath())

	// The extracted record is visible to the browse commands.
	theoremsRun, theoremsPaper, theoremsLimit, theoremsOffset = "", "", 20, 0
	cmd, out = newCmd()
	require.NoError(t, runTheoremsList(cmd, nil))
	assert.Contains(t, out.String(), "exactly one subgroup")
	assert.Contains(t, out.String(), "Theorem 1")

	theoremsJSON = true
	defer func() { theoremsJSON = false }()
	cmd, out = newCmd()
	require.NoError(t, runTheoremsShow(cmd, []string{"1"}))
	var record store.Theorem
	require.NoError(t, json.Unmarshal(out.Bytes(), &record))
	assert.Equal(t, "thm:main", record.Label)
	assert.Equal(t, "the Sylow 3-subgroup is normal", record.Explanation)
	assert.Contains(t, record.Context, "group of order $6$")
}

func TestExtract_RequiresAPIKey(t *testing.T) {
	setupCLI(t)
	cfg.LLM.APIKey = ""
	cmd, _ := newCmd()
	assert.ErrorContains(t, runExtract(cmd, nil), "API key")
}

func TestTheoremsShow_NotFound(t *testing.T) {
	setupCLI(t)
	cmd, _ := newCmd()
	assert.ErrorIs(t, runTheoremsShow(cmd, []string{"42"}), store.ErrNotFound)

	cmd, _ = newCmd()
	assert.ErrorContains(t, runTheoremsShow(cmd, []string{"x"}), "invalid theorem id")
}

func TestTheoremMarkdown(t *testing.T) {
	md := theoremMarkdown(&store.Theorem{
		PaperLink:   "http://arxiv.org/abs/1",
		Env:         "theorem",
		Number:      "2.1",
		Label:       "thm:a",
		Content:     "  $x = 1$  ",
		Explanation: "fixed",
	})
	assert.True(t, strings.HasPrefix(md, "# Theorem 2.1\n"))
	assert.Contains(t, md, "`thm:a`")
	assert.Contains(t, md, "```latex\n$x = 1$\n```")
	assert.NotContains(t, md, "## Context")

	assert.Equal(t, "Main Theorem", displayName(store.Theorem{DisplayLabel: "Main Theorem", Number: "3"}))
	assert.Equal(t, "theorem", displayName(store.Theorem{Number: "3"}))
}

func TestExport(t *testing.T) {
	dir := setupCLI(t)
	st, err := store.Open(cfg.Store.DatabasePath, nil)
	require.NoError(t, err)
	require.NoError(t, st.InsertTheorems(context.Background(), []store.Theorem{
		{PaperLink: "a", Context: "c1", Content: "t1", RunID: "r1"},
		{PaperLink: "b", Context: "c2", Content: "t2", RunID: "r2"},
	}))
	require.NoError(t, st.Close())

	exportFormat, exportRun, exportUpload = "jsonl", "r1", false
	exportOut = filepath.Join(dir, "out.jsonl")
	defer func() { exportFormat, exportRun, exportOut = "parquet", "", "" }()
	cmd, out := newCmd()
	require.NoError(t, runExport(cmd, nil))
	assert.Contains(t, out.String(), "wrote 1 records")

	data, err := os.ReadFile(exportOut)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))

	exportFormat, exportOut, exportRun = "parquet", "", ""
	cmd, _ = newCmd()
	require.NoError(t, runExport(cmd, nil))
	assert.FileExists(t, filepath.Join(cfg.Export.Dir, "theorems.parquet"))

	exportUpload = true
	defer func() { exportUpload = false }()
	cmd, _ = newCmd()
	assert.ErrorContains(t, runExport(cmd, nil), "export.s3")
}

func TestStatsAndRuns(t *testing.T) {
	setupCLI(t)
	seedDataset(t)

	statsJSON = true
	cmd, out := newCmd()
	require.NoError(t, runStats(cmd, nil))
	statsJSON = false
	var stats store.Stats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, 1, stats.Papers)
	assert.Equal(t, 1, stats.PapersWithText)
	assert.Equal(t, map[string]int{"math.GR": 1}, stats.Categories)

	cmd, out = newCmd()
	require.NoError(t, runStats(cmd, nil))
	assert.Contains(t, out.String(), "by category")
	assert.NotContains(t, out.String(), "LLM tokens")

	runsLimit = 20
	cmd, out = newCmd()
	require.NoError(t, runRuns(cmd, nil))
	assert.Equal(t, "no runs\n", out.String())
}

func TestInit(t *testing.T) {
	dir := setupCLI(t)
	cfg.LLM.APIKey = "sk-secret"
	configPath = filepath.Join(dir, ".mathmine", "config.yaml")
	defer func() { configPath = config.DefaultPath }()

	cmd, out := newCmd()
	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, out.String(), "wrote")

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-secret")

	loaded, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Store.DatabasePath, loaded.Store.DatabasePath)

	cmd, out = newCmd()
	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, out.String(), "already exists")
}

func TestParseStart(t *testing.T) {
	got, err := parseStart("2023-03")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseStart("2022-06-15")
	require.NoError(t, err)
	assert.Equal(t, 15, got.Day())
}
