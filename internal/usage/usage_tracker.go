// Package usage counts the LLM tokens spent judging theorems.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dataVersion = "1.0"

type (
	trackerKey struct{}
	runKey     struct{}
)

// Tracker aggregates token usage and persists it as JSON.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
}

// NewTracker creates a tracker backed by filePath and loads what it already
// holds. An empty filePath keeps usage in memory only.
func NewTracker(filePath string) (*Tracker, error) {
	t := &Tracker{filePath: filePath}
	t.data = emptyData()
	if err := t.Load(); err != nil {
		return nil, err
	}
	return t, nil
}

func emptyData() UsageData {
	return UsageData{
		Version: dataVersion,
		Aggregate: AggregatedStats{
			ByProvider: make(map[string]TokenCounts),
			ByModel:    make(map[string]TokenCounts),
			ByRun:      make(map[string]TokenCounts),
		},
	}
}

// Load reads the usage data from disk. A missing file is not an error.
func (t *Tracker) Load() error {
	if t.filePath == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}

	loaded := emptyData()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse %s: %w", t.filePath, err)
	}
	// Ensure maps are initialized if file was partial
	if loaded.Aggregate.ByProvider == nil {
		loaded.Aggregate.ByProvider = make(map[string]TokenCounts)
	}
	if loaded.Aggregate.ByModel == nil {
		loaded.Aggregate.ByModel = make(map[string]TokenCounts)
	}
	if loaded.Aggregate.ByRun == nil {
		loaded.Aggregate.ByRun = make(map[string]TokenCounts)
	}
	t.data = loaded
	return nil
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	if t.filePath == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Updated = time.Now().UTC()
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(t.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create usage directory: %w", err)
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Track records one completion. The run comes from ctx (see WithRun). A nil
// tracker ignores the call.
func (t *Tracker) Track(ctx context.Context, provider, model string, input, output int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.Total.Add(input, output)
	addToMap(t.data.Aggregate.ByProvider, provider, input, output)
	addToMap(t.data.Aggregate.ByModel, model, input, output)
	if run := RunFromContext(ctx); run != "" {
		addToMap(t.data.Aggregate.ByRun, run, input, output)
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByRun = copyTokenCountsMap(stats.ByRun)
	return stats
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// Context Helpers

// NewContext returns a new context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext retrieves the tracker from the context, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey{}).(*Tracker)
	return t
}

// WithRun tags usage recorded under ctx with a run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

// RunFromContext returns the run id set by WithRun.
func RunFromContext(ctx context.Context) string {
	run, _ := ctx.Value(runKey{}).(string)
	return run
}
