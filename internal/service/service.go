// Package service runs the two weekly jobs: the LEFT-OFF digest and the Toggl export.
// Each run gets a run id, emits audit events and, when a store is configured,
// replaces the latest artifact and run record.
package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pwsvc/internal/logging"
	"pwsvc/internal/store"
)

// Service names used in logs, usage tracking and the run table.
const (
	NameLeftOff = "left-off"
	NameToggl   = "toggl"
)

// Runner is one service.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// ArtifactSink persists the latest outputs. *store.ArtifactStore implements it.
type ArtifactSink interface {
	SaveSummary(ctx context.Context, r store.SummaryRecord) error
	SaveProjectTotals(ctx context.Context, r store.ProjectTotalsRecord) error
	RecordRun(ctx context.Context, r store.RunRecord) error
}

// run carries the per-invocation bookkeeping shared by both services.
type run struct {
	id      string
	service string
	started time.Time
	logger  *zap.Logger
	audit   *logging.AuditLogger
}

func startRun(service string, logger *zap.Logger, now func() time.Time) *run {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	r := &run{
		id:      id,
		service: service,
		started: now(),
		logger:  logger.With(zap.String("service", service), zap.String("run_id", id)),
		audit:   logging.NewAudit(logger),
	}
	r.audit.RunStart(service, id)
	r.logger.Info("service started")
	return r
}

// finish records the outcome and returns err unchanged.
func (r *run) finish(ctx context.Context, sink ArtifactSink, now func() time.Time, err error) error {
	finished := now()
	elapsed := finished.Sub(r.started)
	r.audit.RunComplete(r.service, elapsed, err)
	if err != nil {
		r.logger.Error("service failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		r.logger.Info("service completed", zap.Duration("elapsed", elapsed))
	}

	if sink != nil {
		rec := store.RunRecord{Service: r.service, RunID: r.id, StartedAt: r.started, FinishedAt: finished}
		if err != nil {
			rec.Err = err.Error()
		}
		if serr := sink.RecordRun(ctx, rec); serr != nil {
			r.logger.Warn("failed to record run", zap.Error(serr))
		}
	}
	return err
}

// ensureDir creates dir, warning when it did not exist yet.
func (r *run) ensureDir(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		r.logger.Warn("data directory missing; creating it", zap.String("dir", dir))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// writeFile writes data and emits a file audit event.
func (r *run) writeFile(path string, data []byte) error {
	err := os.WriteFile(path, data, 0644)
	r.audit.FileOp(logging.AuditFileWrite, path, int64(len(data)), err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
