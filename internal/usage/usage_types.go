package usage

import "time"

// UsageData is the structure persisted to disk.
type UsageData struct {
	Version   string          `json:"version"`
	Updated   time.Time       `json:"updated"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// AggregatedStats holds counters broken down by provider, model and run.
type AggregatedStats struct {
	Total      TokenCounts            `json:"total"`
	ByProvider map[string]TokenCounts `json:"by_provider"`
	ByModel    map[string]TokenCounts `json:"by_model"`
	ByRun      map[string]TokenCounts `json:"by_run"`
}

// TokenCounts holds input/output sums and the number of calls.
type TokenCounts struct {
	Calls  int64 `json:"calls"`
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Calls++
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
}
