package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_TrackAggregatesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services-data", "llm-usage.json")
	tracker, err := NewTracker(path)
	require.NoError(t, err)
	fixed := time.Date(2025, time.December, 21, 23, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return fixed }

	ctx := WithRun(context.Background(), "left-off", "run-1")
	tracker.Track(ctx, "gpt-4o-mini", "openai", 10, 5, "summarize")
	tracker.Track(ctx, "gpt-4o-mini", "openai", 2, 3, "summarize")

	stats := tracker.Stats()
	assert.Equal(t, TokenCounts{Input: 12, Output: 8, Total: 20, Calls: 2}, stats.Total)
	assert.Equal(t, int64(20), stats.ByProvider["openai"].Total)
	assert.Equal(t, int64(20), stats.ByModel["gpt-4o-mini"].Total)
	assert.Equal(t, int64(20), stats.ByService["left-off"].Total)
	assert.Equal(t, int64(2), stats.ByOperation["summarize"].Calls)

	last, ok := tracker.LastRun()
	require.True(t, ok)
	assert.Equal(t, "run-1", last.RunID)
	assert.Equal(t, fixed, last.Timestamp)

	require.NoError(t, tracker.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var persisted UsageData
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, int64(20), persisted.Aggregate.Total.Total)

	reloaded, err := NewTracker(path)
	require.NoError(t, err)
	assert.Equal(t, stats, reloaded.Stats())
}

func TestTracker_UnknownRunAndNil(t *testing.T) {
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "u.json"))
	require.NoError(t, err)

	tracker.Track(context.Background(), "gemini-2.5-flash", "gemini", 1, 1, "summarize")
	assert.Equal(t, int64(2), tracker.Stats().ByService["unknown"].Total)

	var nilTracker *Tracker
	assert.NotPanics(t, func() { nilTracker.Track(context.Background(), "m", "p", 1, 1, "op") })
}

func TestTracker_SaveSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.json")
	tracker, err := NewTracker(path)
	require.NoError(t, err)

	require.NoError(t, tracker.Save())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestTracker_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	tracker, err := NewTracker(path)
	assert.Error(t, err)
	require.NotNil(t, tracker)
	assert.Empty(t, tracker.Stats().ByModel)
}

func TestTracker_ContextHelpers(t *testing.T) {
	tracker, err := NewTracker(filepath.Join(t.TempDir(), "u.json"))
	require.NoError(t, err)

	ctx := NewContext(context.Background(), tracker)
	assert.Same(t, tracker, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
