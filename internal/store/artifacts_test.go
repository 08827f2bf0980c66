package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func openMemory(t *testing.T) *ArtifactStore {
	t.Helper()
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSummary_ReplacesPrevious(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.LatestSummary(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	first := SummaryRecord{
		Summary: "week one", DatetimeSummary: "2025-12-14 23:00:00", Cutoff: "20251206",
		SectionsIncluded: 5, Provider: "openai", Model: "gpt-4o-mini", RunID: "run-1",
		CreatedAt: time.Unix(1765753200, 0),
	}
	require.NoError(t, s.SaveSummary(ctx, first))

	second := first
	second.Summary, second.RunID, second.Fallback, second.Cutoff = "week two", "run-2", true, "none found"
	require.NoError(t, s.SaveSummary(ctx, second))

	got, err := s.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM summary`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestProjectTotals_ReplacesPrevious(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.LatestProjectTotals(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveProjectTotals(ctx, ProjectTotalsRecord{
		Totals:            []ProjectTotal{{"A", 3}, {"B", 2}, {"C", 1}},
		DatetimeCollected: "2025-12-14 23:00:00",
		RunID:             "run-1",
	}))
	latest := ProjectTotalsRecord{
		Totals:            []ProjectTotal{{"Website", 2.5}, {"No Project", 0.25}},
		DatetimeCollected: "2025-12-21 23:00:00",
		RunID:             "run-2",
	}
	require.NoError(t, s.SaveProjectTotals(ctx, latest))

	got, err := s.LatestProjectTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, latest, got)
}

func TestProjectTotals_EmptyExportIsStored(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.SaveProjectTotals(ctx, ProjectTotalsRecord{
		Totals:            []ProjectTotal{{"A", 3}},
		DatetimeCollected: "2025-12-14 23:00:00",
		RunID:             "run-1",
	}))
	require.NoError(t, s.SaveProjectTotals(ctx, ProjectTotalsRecord{
		DatetimeCollected: "2025-12-21 23:00:00",
		RunID:             "run-2",
	}))

	got, err := s.LatestProjectTotals(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Totals)
	assert.Equal(t, "run-2", got.RunID)
	assert.Equal(t, "2025-12-21 23:00:00", got.DatetimeCollected)
}

func TestRuns(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	start := time.Unix(1766358000, 0)

	require.NoError(t, s.RecordRun(ctx, RunRecord{Service: "toggl", RunID: "a", StartedAt: start, FinishedAt: start.Add(time.Second)}))
	require.NoError(t, s.RecordRun(ctx, RunRecord{Service: "left-off", RunID: "b", StartedAt: start, FinishedAt: start, Err: "boom"}))
	require.NoError(t, s.RecordRun(ctx, RunRecord{Service: "toggl", RunID: "c", StartedAt: start, FinishedAt: start}))

	runs, err := s.LatestRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "left-off", runs[0].Service)
	assert.Equal(t, "boom", runs[0].Err)
	assert.Equal(t, "c", runs[1].RunID)
}

func TestOpen_FileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "services-data", "pwsvc.db")
	ctx := context.Background()

	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveSummary(ctx, SummaryRecord{Summary: "persisted", RunID: "r"}))
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Summary)
}
