package logging

import (
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Run lifecycle
	AuditRunStart    AuditEventType = "run_start"
	AuditRunComplete AuditEventType = "run_complete"
	AuditRunError    AuditEventType = "run_error"

	// Guardrail
	AuditGuardrailDecision AuditEventType = "guardrail_decision"

	// Extraction
	AuditExtraction AuditEventType = "extraction"

	// LLM API events
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	// File operations
	AuditFileRead  AuditEventType = "file_read"
	AuditFileWrite AuditEventType = "file_write"
	AuditFileError AuditEventType = "file_error"
)

// AuditLogger writes audit events through a dedicated zap category.
type AuditLogger struct {
	logger *zap.Logger
}

// NewAudit returns an audit logger derived from l.
func NewAudit(l *zap.Logger) *AuditLogger {
	return &AuditLogger{logger: For(l, CategoryAudit)}
}

func (a *AuditLogger) log(event AuditEventType, fields ...zap.Field) {
	if a == nil || a.logger == nil {
		return
	}
	a.logger.Info(string(event), append([]zap.Field{zap.String("event", string(event))}, fields...)...)
}

// RunStart records the beginning of a service run.
func (a *AuditLogger) RunStart(service, runID string) {
	a.log(AuditRunStart, zap.String("service", service), zap.String("run_id", runID))
}

// RunComplete records the end of a service run.
func (a *AuditLogger) RunComplete(service string, elapsed time.Duration, err error) {
	if err != nil {
		a.log(AuditRunError, zap.String("service", service), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	a.log(AuditRunComplete, zap.String("service", service), zap.Duration("elapsed", elapsed))
}

// GuardrailDecision records a time window evaluation.
func (a *AuditLogger) GuardrailDecision(outcome string, now, start, end time.Time, exitCode int) {
	a.log(AuditGuardrailDecision,
		zap.String("outcome", outcome),
		zap.Time("now", now),
		zap.Time("window_start", start),
		zap.Time("window_end", end),
		zap.Int("exit_code", exitCode))
}

// Extraction records the facts of a section extraction.
func (a *AuditLogger) Extraction(cutoff string, sections, retained, total int, fallback bool) {
	a.log(AuditExtraction,
		zap.String("cutoff", cutoff),
		zap.Int("sections_included", sections),
		zap.Int("blocks_retained", retained),
		zap.Int("blocks_total", total),
		zap.Bool("fallback", fallback))
}

// LLMCall records a summarization request.
func (a *AuditLogger) LLMCall(provider, model string, tokens int, elapsed time.Duration, err error) {
	if err != nil {
		a.log(AuditLLMError,
			zap.String("provider", provider),
			zap.String("model", model),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return
	}
	a.log(AuditLLMResponse,
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("tokens", tokens),
		zap.Duration("elapsed", elapsed))
}

// FileOp records a file read or write.
func (a *AuditLogger) FileOp(op AuditEventType, path string, size int64, err error) {
	if err != nil {
		a.log(AuditFileError, zap.String("path", path), zap.String("op", string(op)), zap.Error(err))
		return
	}
	a.log(op, zap.String("path", path), zap.Int64("size", size))
}
