// -----------------------------------------------------------------------
// Analysis - Immutable per-kind analysis request/result structures
// -----------------------------------------------------------------------

package models

import (
	"encoding/gob"
	"fmt"
	"time"
)

func init() {
	// Register payload container types for gob encoding (required for
	// BadgerHold storage of interface{} fields)
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// AnalysisKind identifies a specialist analysis capability
type AnalysisKind string

const (
	KindFundamental AnalysisKind = "fundamental"
	KindTechnical   AnalysisKind = "technical"
	KindValuation   AnalysisKind = "valuation"
)

// AllAnalysisKinds returns the supported analysis kinds in canonical order
func AllAnalysisKinds() []AnalysisKind {
	return []AnalysisKind{KindFundamental, KindTechnical, KindValuation}
}

// ParseAnalysisKind normalizes and validates an analysis kind string
func ParseAnalysisKind(s string) (AnalysisKind, error) {
	switch AnalysisKind(s) {
	case KindFundamental, KindTechnical, KindValuation:
		return AnalysisKind(s), nil
	}
	return "", fmt.Errorf("unknown analysis kind: %q", s)
}

// AnalysisStatus classifies the outcome of a single analysis invocation
type AnalysisStatus string

const (
	// AnalysisSucceeded means the result passed schema validation with full data
	AnalysisSucceeded AnalysisStatus = "succeeded"
	// AnalysisDegraded means required fields are present but data quality is reduced
	AnalysisDegraded AnalysisStatus = "degraded"
	// AnalysisFailed means no usable output was produced (error info explains why)
	AnalysisFailed AnalysisStatus = "failed"
)

// ErrorKind classifies analysis and advisory failures
type ErrorKind string

const (
	// ErrSchemaInvalid - agent output missing required fields for its kind
	ErrSchemaInvalid ErrorKind = "schema-invalid"
	// ErrTransientCapability - capability reported a retryable condition (rate limit, overload)
	ErrTransientCapability ErrorKind = "transient-capability-failure"
	// ErrCapabilityFailure - capability reported a non-retryable error
	ErrCapabilityFailure ErrorKind = "capability-failure"
	// ErrTimeout - invocation exceeded its per-call timeout
	ErrTimeout ErrorKind = "timeout"
	// ErrInsufficientData - no usable result available for synthesis
	ErrInsufficientData ErrorKind = "insufficient-data"
	// ErrExceededIterations - refinement budget exhausted below the confidence threshold (yields best-effort output, not fatal)
	ErrExceededIterations ErrorKind = "exceeded-iterations"
	// ErrCancelled - caller cancelled the advisory
	ErrCancelled ErrorKind = "cancelled"
)

// AnalysisRequest describes one unit of work for a specialist analyst.
// Parameters carry kind-specific tuning (lookback windows, detail level)
// and are refined between feedback-loop iterations.
type AnalysisRequest struct {
	Ticker     string                 `json:"ticker"`
	Kind       AnalysisKind           `json:"kind"`
	Attempt    int                    `json:"attempt"` // 1-based; bumped on each refinement re-request
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Required   bool                   `json:"required"` // A failed required kind triggers refinement
}

// Clone returns a deep copy so refinement can adjust parameters without
// touching the original request.
func (r AnalysisRequest) Clone() AnalysisRequest {
	params := make(map[string]interface{}, len(r.Parameters))
	for k, v := range r.Parameters {
		params[k] = v
	}
	clone := r
	clone.Parameters = params
	return clone
}

// AnalysisResult is the immutable record of one analyst invocation.
// Once constructed it is never modified; retries produce new results with a
// higher Iteration, and the full ordered sequence is retained as the audit
// trail of the advisory.
type AnalysisResult struct {
	ID        string       `json:"id"`
	Ticker    string       `json:"ticker"`
	Kind      AnalysisKind `json:"kind"`
	Analyst   string       `json:"analyst"`   // Name of the analyst implementation that produced this result
	Iteration int          `json:"iteration"` // 1-based dispatch pass that produced this result

	Status     AnalysisStatus `json:"status"`
	Score      float64        `json:"score"`      // Normalized to [0,1]; meaningful only when usable
	Confidence float64        `json:"confidence"` // Analyst's self-reported certainty in [0,1]

	// Payload carries the kind-specific output that passed schema validation
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Notes records data-quality caveats: defaulted confidence, derived
	// scores, degraded-payload reasons
	Notes string `json:"notes,omitempty"`

	// Error info, populated only when Status is failed
	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// Execution metadata
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	TokensUsed  int       `json:"tokens_used,omitempty"`
}

// Usable reports whether this result can contribute to synthesis.
// Failed results are values, not errors - they ride along in the audit
// trail but are excluded from scoring.
func (r *AnalysisResult) Usable() bool {
	return r.Status == AnalysisSucceeded || r.Status == AnalysisDegraded
}

// NewFailedAnalysis constructs a failed result for the given request.
// Timestamps and duration are filled by the caller when known.
func NewFailedAnalysis(req AnalysisRequest, analyst string, iteration int, kind ErrorKind, message string) *AnalysisResult {
	return &AnalysisResult{
		Ticker:    req.Ticker,
		Kind:      req.Kind,
		Analyst:   analyst,
		Iteration: iteration,
		Status:    AnalysisFailed,
		Error:     message,
		ErrorKind: kind,
	}
}

// Clamp01 clamps v into [0,1]
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
