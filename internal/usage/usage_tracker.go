// Package usage records language model token consumption across runs.
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

type contextKey struct{}

type runKey struct{}

type runInfo struct {
	service string
	runID   string
}

// Tracker manages token usage recording and persistence.
// Processes are short-lived, so callers Save explicitly once the run ends.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
	dirty    bool
	now      func() time.Time
}

// NewTracker creates a tracker persisted at filePath, loading any prior totals.
func NewTracker(filePath string) (*Tracker, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create usage dir: %w", err)
	}

	t := &Tracker{
		filePath: filePath,
		now:      time.Now,
		data: UsageData{
			Version:   "1.0",
			Aggregate: newStats(),
		},
	}

	if err := t.Load(); err != nil {
		return t, fmt.Errorf("failed to load usage data: %w", err)
	}
	return t, nil
}

func newStats() AggregatedStats {
	return AggregatedStats{
		ByProvider:  make(map[string]TokenCounts),
		ByModel:     make(map[string]TokenCounts),
		ByService:   make(map[string]TokenCounts),
		ByOperation: make(map[string]TokenCounts),
	}
}

// Load replaces the in-memory totals with the file contents. A missing file
// leaves them untouched.
func (t *Tracker) Load() error {
	raw, err := os.ReadFile(t.filePath)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return err
	}

	loaded := UsageData{Aggregate: newStats()}
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return err
	}
	for _, m := range []*map[string]TokenCounts{
		&loaded.Aggregate.ByProvider,
		&loaded.Aggregate.ByModel,
		&loaded.Aggregate.ByService,
		&loaded.Aggregate.ByOperation,
	} {
		if *m == nil {
			*m = make(map[string]TokenCounts)
		}
	}

	t.mu.Lock()
	t.data = loaded
	t.dirty = false
	t.mu.Unlock()
	return nil
}

// Save writes the totals through a temporary file when something changed.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}

	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}
	tmp := t.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("failed to write usage: %w", err)
	}
	if err := os.Rename(tmp, t.filePath); err != nil {
		return fmt.Errorf("failed to replace usage file: %w", err)
	}
	t.dirty = false
	return nil
}

// Track records a new usage event. A nil tracker ignores the call.
func (t *Tracker) Track(ctx context.Context, model, provider string, input, output int, operation string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	service, runID := "unknown", ""
	if info, ok := ctx.Value(runKey{}).(runInfo); ok {
		service, runID = info.service, info.runID
	}

	t.data.Aggregate.Total.Add(input, output)
	addToMap(t.data.Aggregate.ByProvider, provider, input, output)
	addToMap(t.data.Aggregate.ByModel, model, input, output)
	addToMap(t.data.Aggregate.ByService, service, input, output)
	addToMap(t.data.Aggregate.ByOperation, operation, input, output)

	t.data.LastRun = &UsageEvent{
		Timestamp:    t.now(),
		Model:        model,
		Provider:     provider,
		InputTokens:  input,
		OutputTokens: output,
		Service:      service,
		Operation:    operation,
		RunID:        runID,
	}
	t.dirty = true
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByService = copyTokenCountsMap(stats.ByService)
	stats.ByOperation = copyTokenCountsMap(stats.ByOperation)
	return stats
}

// LastRun returns the most recent event, if any.
func (t *Tracker) LastRun() (UsageEvent, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.data.LastRun == nil {
		return UsageEvent{}, false
	}
	return *t.data.LastRun, true
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
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
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the tracker from the context.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}

// WithRun tags usage recorded under ctx with the service and run id.
func WithRun(ctx context.Context, service, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runInfo{service: service, runID: runID})
}
