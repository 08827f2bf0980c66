package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"pwsvc/internal/config"
	"pwsvc/internal/datefmt"
	"pwsvc/internal/logging"
	"pwsvc/internal/store"
	"pwsvc/internal/toggl"
)

// TogglAPI is the subset of the Toggl client the export uses.
type TogglAPI interface {
	Workspaces(ctx context.Context) ([]toggl.Workspace, error)
	AllProjects(ctx context.Context, workspaces []toggl.Workspace) ([]toggl.Project, error)
	TimeEntries(ctx context.Context, start, end datefmt.Date) ([]toggl.TimeEntry, error)
}

// Toggl exports per-project hours for the lookback window to CSV.
type Toggl struct {
	Config *config.Config
	API    TogglAPI
	Store  ArtifactSink // optional
	Logger *zap.Logger
	Out    io.Writer
	Now    func() time.Time
}

// TogglResult is what a successful export produced.
type TogglResult struct {
	RunID  string
	Start  datefmt.Date
	End    datefmt.Date
	Totals []toggl.ProjectTotal
}

func (s *Toggl) Name() string { return NameToggl }

func (s *Toggl) Run(ctx context.Context) error {
	_, err := s.Execute(ctx)
	return err
}

// Execute runs the export and returns its result.
func (s *Toggl) Execute(ctx context.Context) (*TogglResult, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	r := startRun(NameToggl, s.Logger, now)
	res, err := s.execute(ctx, r, now)
	return res, r.finish(ctx, s.Store, now, err)
}

// ExportRange is the [start, end) date range covering the last lookbackDays
// days including today.
func ExportRange(today time.Time, lookbackDays int) (start, end datefmt.Date) {
	d := datefmt.Of(today)
	return d.AddDays(-lookbackDays), d.AddDays(1)
}

func (s *Toggl) execute(ctx context.Context, r *run, now func() time.Time) (*TogglResult, error) {
	cfg := s.Config
	tlog := logging.For(r.logger, logging.CategoryToggl)

	if err := r.ensureDir(cfg.ServicesDataDir()); err != nil {
		return nil, err
	}

	timer := logging.StartTimer(tlog, "toggl.fetch")
	workspaces, err := s.API.Workspaces(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := s.API.AllProjects(ctx, workspaces)
	if err != nil {
		return nil, err
	}

	start, end := ExportRange(now(), cfg.Toggl.LookbackDays)
	entries, err := s.API.TimeEntries(ctx, start, end)
	if err != nil {
		return nil, err
	}
	timer.StopWithInfo()

	totals := toggl.Aggregate(entries, projects)
	tlog.Info("time entries aggregated",
		zap.Int("workspaces", len(workspaces)),
		zap.Int("projects", len(projects)),
		zap.Int("entries", len(entries)),
		zap.Int("project_totals", len(totals)),
		zap.Float64("hours", toggl.TotalHours(totals)))

	collected := now()
	csvPath := cfg.TogglCSVPath()
	if err := toggl.WriteCSV(csvPath, totals, collected); err != nil {
		r.audit.FileOp(logging.AuditFileWrite, csvPath, 0, err)
		return nil, err
	}
	r.audit.FileOp(logging.AuditFileWrite, csvPath, int64(len(totals)), nil)

	if s.Store != nil {
		rec := store.ProjectTotalsRecord{DatetimeCollected: datefmt.Timestamp(collected), RunID: r.id}
		for _, t := range totals {
			rec.Totals = append(rec.Totals, store.ProjectTotal{ProjectName: t.ProjectName, Hours: t.Hours})
		}
		if err := s.Store.SaveProjectTotals(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to store project totals: %w", err)
		}
	}

	if s.Out != nil {
		printBanner(s.Out, "TOGGL PROJECT TOTALS:", totals)
	}
	return &TogglResult{RunID: r.id, Start: start, End: end, Totals: totals}, nil
}
