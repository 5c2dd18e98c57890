// -----------------------------------------------------------------------
// Advisory - Request surface and persisted advisory record
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// AdvisoryStatus tracks the lifecycle of a stored advisory
type AdvisoryStatus string

const (
	AdvisoryStatusPending   AdvisoryStatus = "pending"
	AdvisoryStatusRunning   AdvisoryStatus = "running"
	AdvisoryStatusCompleted AdvisoryStatus = "completed"
	AdvisoryStatusFailed    AdvisoryStatus = "failed"
)

// TriggerSource identifies what initiated an advisory
type TriggerSource string

const (
	TriggerAPI       TriggerSource = "api"
	TriggerMCP       TriggerSource = "mcp"
	TriggerWatchlist TriggerSource = "watchlist"
)

// AdvisoryRequest is the inbound contract for one advisory run.
// Zero-valued/nil optional fields fall back to configured defaults; the
// orchestrator resolves them into an explicit per-request policy so no
// ambient mutable state is consulted mid-run.
type AdvisoryRequest struct {
	Ticker string `json:"ticker" validate:"required"`

	// Kinds selects which analyses to run; empty means all three
	Kinds []AnalysisKind `json:"kinds,omitempty"`

	// RequiredKinds must each produce a usable result; a failed required
	// kind triggers refinement
	RequiredKinds []AnalysisKind `json:"required_kinds,omitempty"`

	// Execution selects "parallel" or "sequential" dispatch ("" = configured default)
	Execution string `json:"execution,omitempty" validate:"omitempty,oneof=parallel sequential"`

	// Weights maps analysis kind to non-negative weight (nil = configured default).
	// Weights are renormalized over usable kinds at synthesis, so only
	// their ratios matter.
	Weights map[AnalysisKind]float64 `json:"weights,omitempty"`

	// ConfidenceThreshold below which refinement triggers (nil = configured default)
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`

	// MinKindConfidence below which a usable result is flagged low-quality (nil = configured default)
	MinKindConfidence *float64 `json:"min_kind_confidence,omitempty" validate:"omitempty,gte=0,lte=1"`

	// MaxIterations bounds refinement passes beyond the first (nil = configured default, 0 = no refinement)
	MaxIterations *int `json:"max_iterations,omitempty" validate:"omitempty,gte=0"`

	// Parameters carries optional per-kind analyst parameters for the first pass
	Parameters map[AnalysisKind]map[string]interface{} `json:"parameters,omitempty"`

	// Trigger records what initiated this advisory (defaults to api)
	Trigger TriggerSource `json:"trigger,omitempty"`
}

// Validate checks structural validity of the request
func (r *AdvisoryRequest) Validate() error {
	if r.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	for _, kind := range r.Kinds {
		if _, err := ParseAnalysisKind(string(kind)); err != nil {
			return err
		}
	}
	requested := r.RequestedKinds()
	inRequested := make(map[AnalysisKind]bool, len(requested))
	for _, kind := range requested {
		inRequested[kind] = true
	}
	for _, kind := range r.RequiredKinds {
		if _, err := ParseAnalysisKind(string(kind)); err != nil {
			return err
		}
		if !inRequested[kind] {
			return fmt.Errorf("required kind %q is not in the requested kinds", kind)
		}
	}
	if r.Execution != "" && r.Execution != "parallel" && r.Execution != "sequential" {
		return fmt.Errorf("execution must be \"parallel\" or \"sequential\", got %q", r.Execution)
	}
	for kind, w := range r.Weights {
		if _, err := ParseAnalysisKind(string(kind)); err != nil {
			return err
		}
		if w < 0 {
			return fmt.Errorf("weight for %s must be non-negative, got %v", kind, w)
		}
	}
	if r.ConfidenceThreshold != nil && (*r.ConfidenceThreshold < 0 || *r.ConfidenceThreshold > 1) {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %v", *r.ConfidenceThreshold)
	}
	if r.MinKindConfidence != nil && (*r.MinKindConfidence < 0 || *r.MinKindConfidence > 1) {
		return fmt.Errorf("min_kind_confidence must be in [0,1], got %v", *r.MinKindConfidence)
	}
	if r.MaxIterations != nil && *r.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be >= 0, got %d", *r.MaxIterations)
	}
	return nil
}

// RequestedKinds returns the kinds to analyze, defaulting to all three
// in canonical order when none are given. Duplicates are removed while
// preserving order.
func (r *AdvisoryRequest) RequestedKinds() []AnalysisKind {
	if len(r.Kinds) == 0 {
		return AllAnalysisKinds()
	}
	seen := make(map[AnalysisKind]bool, len(r.Kinds))
	kinds := make([]AnalysisKind, 0, len(r.Kinds))
	for _, kind := range r.Kinds {
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// IsRequired reports whether the given kind was marked required
func (r *AdvisoryRequest) IsRequired(kind AnalysisKind) bool {
	for _, k := range r.RequiredKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// AdvisoryRecord is the persisted record of one advisory run
type AdvisoryRecord struct {
	ID      string         `badgerhold:"key" json:"id"`
	Ticker  string         `badgerhold:"index" json:"ticker"`
	Status  AdvisoryStatus `badgerhold:"index" json:"status"`
	Trigger TriggerSource  `json:"trigger"`

	Request        AdvisoryRequest           `json:"request"`
	Recommendation *InvestmentRecommendation `json:"recommendation,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewAdvisoryRecord creates a pending record for a validated request
func NewAdvisoryRecord(id string, req AdvisoryRequest) *AdvisoryRecord {
	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerAPI
	}
	return &AdvisoryRecord{
		ID:        id,
		Ticker:    req.Ticker,
		Status:    AdvisoryStatusPending,
		Trigger:   trigger,
		Request:   req,
		CreatedAt: time.Now(),
	}
}

// MarkRunning marks the advisory as in progress
func (a *AdvisoryRecord) MarkRunning() {
	a.Status = AdvisoryStatusRunning
}

// MarkCompleted attaches the terminal recommendation
func (a *AdvisoryRecord) MarkCompleted(rec *InvestmentRecommendation) {
	a.Status = AdvisoryStatusCompleted
	a.Recommendation = rec
	now := time.Now()
	a.CompletedAt = &now
}

// MarkFailed records a terminal failure
func (a *AdvisoryRecord) MarkFailed(kind ErrorKind, message string) {
	a.Status = AdvisoryStatusFailed
	a.ErrorKind = kind
	a.Error = message
	now := time.Now()
	a.CompletedAt = &now
}

// IsTerminal returns true if the advisory reached a terminal state
func (a *AdvisoryRecord) IsTerminal() bool {
	return a.Status == AdvisoryStatusCompleted || a.Status == AdvisoryStatusFailed
}
