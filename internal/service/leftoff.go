package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"pwsvc/internal/config"
	"pwsvc/internal/docx"
	"pwsvc/internal/extract"
	"pwsvc/internal/logging"
	"pwsvc/internal/store"
	"pwsvc/internal/summarize"
	"pwsvc/internal/usage"
)

// Downloader fetches a drive item to a local path.
type Downloader interface {
	DownloadFile(ctx context.Context, itemID, dest string) (int64, error)
}

// TokenRotator is implemented by downloaders whose identity provider may
// replace the configured refresh token.
type TokenRotator interface {
	RotatedRefreshToken() (string, bool)
}

// slowSummary is when a summarization call is logged as slow.
const slowSummary = 30 * time.Second

// LeftOff downloads the activity log, extracts the recent window,
// summarizes it and writes the digest JSON.
type LeftOff struct {
	Config     *config.Config
	Downloader Downloader
	Summarizer summarize.Summarizer
	Template   summarize.Template
	Store      ArtifactSink   // optional
	Usage      *usage.Tracker // optional
	Logger     *zap.Logger
	Out        io.Writer // receives the result banner when set
	Now        func() time.Time

	// Load parses the downloaded document; defaults to docx.Load.
	Load func(path string) ([]extract.Block, error)
}

// LeftOffResult is what a successful run produced.
type LeftOffResult struct {
	RunID      string
	Extraction extract.Result
	Summary    summarize.Summary
}

func (s *LeftOff) Name() string { return NameLeftOff }

func (s *LeftOff) Run(ctx context.Context) error {
	_, err := s.Execute(ctx)
	return err
}

// Execute runs the digest and returns its result.
func (s *LeftOff) Execute(ctx context.Context) (*LeftOffResult, error) {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	r := startRun(NameLeftOff, s.Logger, now)
	res, err := s.execute(usage.WithRun(ctx, NameLeftOff, r.id), r, now)
	return res, r.finish(ctx, s.Store, now, err)
}

func (s *LeftOff) execute(ctx context.Context, r *run, now func() time.Time) (*LeftOffResult, error) {
	cfg := s.Config
	docPath := cfg.LeftOffFilePath()
	if err := r.ensureDir(filepath.Dir(docPath)); err != nil {
		return nil, err
	}

	// Step 1: download
	r.logger.Info("downloading activity log", zap.String("item_id", cfg.OneDrive.TargetFileID))
	size, err := s.Downloader.DownloadFile(ctx, cfg.OneDrive.TargetFileID, docPath)
	r.audit.FileOp(logging.AuditFileWrite, docPath, size, err)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if rot, ok := s.Downloader.(TokenRotator); ok && s.Out != nil {
		if tok, rotated := rot.RotatedRefreshToken(); rotated {
			fmt.Fprintf(s.Out, "\nREFRESH_TOKEN was rotated by the identity provider. Replace it with:\n%s\n", tok)
		}
	}

	// Step 2: extract
	load := s.Load
	if load == nil {
		load = docx.Load
	}
	blocks, err := load(docPath)
	r.audit.FileOp(logging.AuditFileRead, docPath, size, err)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	ext := extract.Extract(blocks, now(), extract.Options{RetentionDays: cfg.LeftOff.RetentionDays})
	r.audit.Extraction(ext.CutoffString(), ext.SectionsIncluded, ext.BlocksRetained, ext.BlocksTotal, ext.Fallback)
	elog := logging.For(r.logger, logging.CategoryExtract)
	if ext.Fallback {
		elog.Warn("no dated heading older than the retention window; keeping the whole document",
			zap.Int("blocks", ext.BlocksTotal))
	} else {
		elog.Info("extraction complete",
			zap.String("cutoff", ext.CutoffString()),
			zap.Int("sections_included", ext.SectionsIncluded),
			zap.Int("blocks_retained", ext.BlocksRetained),
			zap.Int("blocks_total", ext.BlocksTotal))
	}

	markup := ext.Markup()
	if err := r.writeFile(cfg.ActivitiesFilePath(), []byte(markup)); err != nil {
		return nil, err
	}

	// Step 3: summarize
	tmpl := s.Template
	if tmpl == "" {
		tmpl = summarize.DefaultTemplate()
	}
	timer := logging.StartTimer(logging.For(r.logger, logging.CategorySummarize), "summarize.Generate")
	summary, completion, err := summarize.Generate(ctx, s.Summarizer, tmpl, markup, now())
	elapsed := timer.StopWithThreshold(slowSummary)
	r.audit.LLMCall(s.Summarizer.Provider(), s.Summarizer.Model(), completion.InputTokens+completion.OutputTokens, elapsed, err)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}
	if s.Usage != nil {
		s.Usage.Track(ctx, s.Summarizer.Model(), s.Summarizer.Provider(), completion.InputTokens, completion.OutputTokens, "summarize")
		if err := s.Usage.Save(); err != nil {
			r.logger.Warn("failed to save usage", zap.Error(err))
		}
	}

	summaryPath := cfg.SummaryJSONPath()
	if err := summary.WriteJSON(summaryPath); err != nil {
		r.audit.FileOp(logging.AuditFileWrite, summaryPath, 0, err)
		return nil, err
	}
	r.audit.FileOp(logging.AuditFileWrite, summaryPath, int64(len(summary.Summary)), nil)
	r.logger.Info("summary saved", zap.String("path", summaryPath))

	if s.Store != nil {
		rec := store.SummaryRecord{
			Summary:          summary.Summary,
			DatetimeSummary:  summary.DatetimeSummary,
			Cutoff:           ext.CutoffString(),
			SectionsIncluded: ext.SectionsIncluded,
			Fallback:         ext.Fallback,
			Provider:         s.Summarizer.Provider(),
			Model:            s.Summarizer.Model(),
			RunID:            r.id,
			CreatedAt:        now(),
		}
		if err := s.Store.SaveSummary(ctx, rec); err != nil {
			return nil, err
		}
	}

	if s.Out != nil {
		printBanner(s.Out, "SUMMARY RESULT:", summary)
	}
	return &LeftOffResult{RunID: r.id, Extraction: ext, Summary: summary}, nil
}

func printBanner(w io.Writer, title string, v any) {
	rule := strings.Repeat("=", 80)
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintf(w, "\n%s\n%s\n%s\n%s\n%s\n\n", rule, title, rule, data, rule)
}

// ReadLocal extracts from a local document without downloading or summarizing.
func ReadLocal(path string, today time.Time, retentionDays int) (extract.Result, error) {
	blocks, err := docx.Load(path)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.Extract(blocks, today, extract.Options{RetentionDays: retentionDays}), nil
}

