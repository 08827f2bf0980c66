package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pwsvc/internal/config"
	"pwsvc/internal/datefmt"
	"pwsvc/internal/extract"
	"pwsvc/internal/store"
	"pwsvc/internal/summarize"
	"pwsvc/internal/toggl"
	"pwsvc/internal/usage"
)

var sundayNight = time.Date(2025, time.December, 21, 22, 58, 0, 0, time.Local)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.ProjectResources = t.TempDir()
	cfg.OneDrive.TargetFileID = "item-1"
	return cfg
}

func openStore(t *testing.T) *store.ArtifactStore {
	t.Helper()
	s, err := store.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fakeDownloader struct {
	err    error
	itemID string
}

func (f *fakeDownloader) DownloadFile(_ context.Context, itemID, dest string) (int64, error) {
	f.itemID = itemID
	if f.err != nil {
		return 0, f.err
	}
	return 4, os.WriteFile(dest, []byte("docx"), 0644)
}

// rotatingDownloader reports a refresh token replaced during the download.
type rotatingDownloader struct {
	fakeDownloader
	token string
}

func (r *rotatingDownloader) RotatedRefreshToken() (string, bool) {
	return r.token, r.token != ""
}

type fakeSummarizer struct {
	prompt string
	text   string
	err    error
}

func (f *fakeSummarizer) CompleteJSON(_ context.Context, prompt string) (summarize.Completion, error) {
	f.prompt = prompt
	return summarize.Completion{Text: f.text, InputTokens: 100, OutputTokens: 20}, f.err
}
func (f *fakeSummarizer) Provider() string { return "openai" }
func (f *fakeSummarizer) Model() string    { return "gpt-4o-mini" }

func logBlocks() []extract.Block {
	return []extract.Block{
		{Role: extract.TopHeading, Text: "20251220"},
		{Role: extract.Body, Text: "Finished the guardrail."},
		{Role: extract.TopHeading, Text: "20251216"},
		{Role: extract.SubHeading, Text: "pwsvc", Level: 2},
		{Role: extract.Body, Text: "Extractor tests."},
		{Role: extract.TopHeading, Text: "20251213"},
		{Role: extract.Body, Text: "Old work."},
	}
}

func TestLeftOff_Execute(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t)
	tracker, err := usage.NewTracker(cfg.UsagePath())
	require.NoError(t, err)
	dl := &fakeDownloader{}
	sum := &fakeSummarizer{text: `{"summary":"Built the guardrail and extractor."}`}
	var out bytes.Buffer

	svc := &LeftOff{
		Config:     cfg,
		Downloader: dl,
		Summarizer: sum,
		Store:      st,
		Usage:      tracker,
		Out:        &out,
		Now:        func() time.Time { return sundayNight },
		Load: func(path string) ([]extract.Block, error) {
			assert.Equal(t, cfg.LeftOffFilePath(), path)
			return logBlocks(), nil
		},
	}

	res, err := svc.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "item-1", dl.itemID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Extraction.SectionsIncluded)
	assert.Equal(t, "20251213", res.Extraction.CutoffString())

	markup, err := os.ReadFile(cfg.ActivitiesFilePath())
	require.NoError(t, err)
	assert.Equal(t, "# 20251220\n\nFinished the guardrail.\n\n# 20251216\n\n## pwsvc\n\nExtractor tests.", string(markup))
	assert.Contains(t, sum.prompt, string(markup))

	var persisted summarize.Summary
	data, err := os.ReadFile(cfg.SummaryJSONPath())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, "Built the guardrail and extractor.", persisted.Summary)
	assert.Equal(t, "2025-12-21 22:58:00", persisted.DatetimeSummary)

	rec, err := st.LatestSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, rec.RunID)
	assert.Equal(t, "20251213", rec.Cutoff)

	runs, err := st.LatestRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, NameLeftOff, runs[0].Service)
	assert.Empty(t, runs[0].Err)

	assert.Equal(t, int64(120), tracker.Stats().ByService[NameLeftOff].Total)
	assert.Contains(t, out.String(), "SUMMARY RESULT:")
	assert.NotContains(t, out.String(), "REFRESH_TOKEN")
}

func TestLeftOff_PrintsRotatedRefreshToken(t *testing.T) {
	var out bytes.Buffer
	svc := &LeftOff{
		Config:     testConfig(t),
		Downloader: &rotatingDownloader{token: "refresh-2"},
		Summarizer: &fakeSummarizer{text: `{"summary":"x"}`},
		Out:        &out,
		Now:        func() time.Time { return sundayNight },
		Load:       func(string) ([]extract.Block, error) { return logBlocks(), nil },
	}

	require.NoError(t, svc.Run(context.Background()))
	assert.Contains(t, out.String(), "REFRESH_TOKEN was rotated")
	assert.Contains(t, out.String(), "refresh-2")
}

func TestLeftOff_FallbackWarns(t *testing.T) {
	cfg := testConfig(t)
	core, logs := observer.New(zapcore.WarnLevel)

	svc := &LeftOff{
		Config:     cfg,
		Downloader: &fakeDownloader{},
		Summarizer: &fakeSummarizer{text: `{"summary":"x"}`},
		Logger:     zap.New(core),
		Now:        func() time.Time { return sundayNight },
		Load: func(string) ([]extract.Block, error) {
			return []extract.Block{{Role: extract.TopHeading, Text: "Notes"}, {Role: extract.Body, Text: "undated"}}, nil
		},
	}

	res, err := svc.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Extraction.Fallback)
	assert.Equal(t, 1, logs.FilterMessageSnippet("keeping the whole document").Len())
	// The data directory did not exist before the run.
	assert.Equal(t, 1, logs.FilterMessageSnippet("data directory missing").Len())
}

func TestLeftOff_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		dl   *fakeDownloader
		sum  *fakeSummarizer
		load func(string) ([]extract.Block, error)
	}{
		{name: "download", dl: &fakeDownloader{err: boom}, sum: &fakeSummarizer{}},
		{name: "load", dl: &fakeDownloader{}, sum: &fakeSummarizer{}, load: func(string) ([]extract.Block, error) { return nil, boom }},
		{name: "summarize", dl: &fakeDownloader{}, sum: &fakeSummarizer{err: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := openStore(t)
			load := tt.load
			if load == nil {
				load = func(string) ([]extract.Block, error) { return logBlocks(), nil }
			}
			svc := &LeftOff{
				Config: testConfig(t), Downloader: tt.dl, Summarizer: tt.sum, Store: st,
				Now: func() time.Time { return sundayNight }, Load: load,
			}

			err := svc.Run(context.Background())
			assert.ErrorIs(t, err, boom)

			runs, rerr := st.LatestRuns(context.Background())
			require.NoError(t, rerr)
			require.Len(t, runs, 1)
			assert.Contains(t, runs[0].Err, "boom")

			_, serr := st.LatestSummary(context.Background())
			assert.ErrorIs(t, serr, store.ErrNotFound)
		})
	}
}

type fakeTogglAPI struct {
	start, end datefmt.Date
	err        error
}

func (f *fakeTogglAPI) Workspaces(context.Context) ([]toggl.Workspace, error) {
	return []toggl.Workspace{{ID: 1, Name: "Personal"}}, f.err
}

func (f *fakeTogglAPI) AllProjects(context.Context, []toggl.Workspace) ([]toggl.Project, error) {
	return []toggl.Project{{ID: 10, Name: "pwsvc"}}, nil
}

func (f *fakeTogglAPI) TimeEntries(_ context.Context, start, end datefmt.Date) ([]toggl.TimeEntry, error) {
	f.start, f.end = start, end
	pid := int64(10)
	return []toggl.TimeEntry{
		{ProjectID: &pid, Duration: 5400},
		{Duration: 1800},
	}, nil
}

func TestToggl_Execute(t *testing.T) {
	cfg := testConfig(t)
	st := openStore(t)
	api := &fakeTogglAPI{}
	var out bytes.Buffer

	svc := &Toggl{Config: cfg, API: api, Store: st, Out: &out, Now: func() time.Time { return sundayNight }}
	res, err := svc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2025-12-14", api.start.String())
	assert.Equal(t, "2025-12-22", api.end.String())
	assert.Equal(t, []toggl.ProjectTotal{{ProjectName: "pwsvc", Hours: 1.5}, {ProjectName: "No Project", Hours: 0.5}}, res.Totals)

	data, err := os.ReadFile(filepath.Join(cfg.ServicesDataDir(), "project_time_entries.csv"))
	require.NoError(t, err)
	assert.Equal(t, "project_name,hours_worked,datetime_collected\n"+
		"pwsvc,1.5,2025-12-21 22:58:00\n"+
		"No Project,0.5,2025-12-21 22:58:00\n", string(data))

	rec, err := st.LatestProjectTotals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.RunID, rec.RunID)
	assert.Len(t, rec.Totals, 2)
	assert.Contains(t, out.String(), "TOGGL PROJECT TOTALS:")
}

func TestToggl_APIError(t *testing.T) {
	svc := &Toggl{Config: testConfig(t), API: &fakeTogglAPI{err: toggl.ErrUnauthorized}}
	assert.ErrorIs(t, svc.Run(context.Background()), toggl.ErrUnauthorized)
}

func TestRunnerNames(t *testing.T) {
	var runners []Runner = []Runner{&LeftOff{}, &Toggl{}}
	assert.Equal(t, NameLeftOff, runners[0].Name())
	assert.Equal(t, NameToggl, runners[1].Name())
}
