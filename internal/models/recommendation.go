// -----------------------------------------------------------------------
// Recommendation - Judgment output and terminal advisory artifact
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// RecommendationBand is the discrete classification of a composite score
type RecommendationBand string

const (
	BandStrongSell RecommendationBand = "STRONG_SELL"
	BandSell       RecommendationBand = "SELL"
	BandHold       RecommendationBand = "HOLD"
	BandBuy        RecommendationBand = "BUY"
	BandStrongBuy  RecommendationBand = "STRONG_BUY"
)

// BandFromScore classifies a composite score into its recommendation band.
// The bands form a total, non-overlapping partition of [0,1]:
//
//	[0.0, 0.2) STRONG_SELL
//	[0.2, 0.4) SELL
//	[0.4, 0.6) HOLD
//	[0.6, 0.8) BUY
//	[0.8, 1.0] STRONG_BUY
//
// Scores outside [0,1] are clamped before classification.
func BandFromScore(score float64) RecommendationBand {
	score = Clamp01(score)
	switch {
	case score < 0.2:
		return BandStrongSell
	case score < 0.4:
		return BandSell
	case score < 0.6:
		return BandHold
	case score < 0.8:
		return BandBuy
	default:
		return BandStrongBuy
	}
}

// KindContribution records how one analysis kind entered the composite score
type KindContribution struct {
	Kind       AnalysisKind `json:"kind"`
	Score      float64      `json:"score"`
	Weight     float64      `json:"weight"` // Renormalized weight actually applied
	Confidence float64      `json:"confidence"`
}

// ExcludedKind records a kind that produced no usable result and why.
// Excluded kinds contribute zero weight and are removed from the
// renormalization denominator - they are never scored as zero.
type ExcludedKind struct {
	Kind   AnalysisKind `json:"kind"`
	Reason string       `json:"reason"`
}

// Judgment is the synthesized view over one batch of analysis results.
// It is a pure function of (results, weights): same inputs always produce
// the same judgment, including its rationale text.
type Judgment struct {
	CompositeScore float64            `json:"composite_score"`
	Confidence     float64            `json:"confidence"`
	Consistency    float64            `json:"consistency"`
	Band           RecommendationBand `json:"band"`
	Rationale      string             `json:"rationale"`
	Contributions  []KindContribution `json:"contributions"`
	ExcludedKinds  []ExcludedKind     `json:"excluded_kinds,omitempty"`
}

// InsightSet aggregates qualitative takeaways across usable analyses.
// Lists are deduplicated and capped: 5 strengths, 5 concerns, 3 risks.
type InsightSet struct {
	KeyStrengths []string `json:"key_strengths,omitempty"`
	KeyConcerns  []string `json:"key_concerns,omitempty"`
	RiskFactors  []string `json:"risk_factors,omitempty"`
}

// ExecutionMeta captures how an advisory ran
type ExecutionMeta struct {
	Mode       string   `json:"mode"` // "parallel" or "sequential"
	DurationMs int64    `json:"duration_ms"`
	TokensUsed int      `json:"tokens_used,omitempty"`
	Analysts   []string `json:"analysts,omitempty"` // Analyst implementations consulted, deduplicated
}

// InvestmentRecommendation is the terminal artifact of one advisory request.
// Constructed exactly once at the end of the feedback loop and never mutated
// after return. Analyses holds the full ordered audit trail, including
// attempts superseded by later iterations.
type InvestmentRecommendation struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`

	CompositeScore float64            `json:"composite_score"`
	Confidence     float64            `json:"confidence"`
	Consistency    float64            `json:"consistency"`
	Band           RecommendationBand `json:"band"`
	Rationale      string             `json:"rationale"`

	// BestEffort marks a recommendation returned after the iteration budget
	// ran out below the confidence threshold
	BestEffort bool `json:"best_effort"`

	Iterations    int                `json:"iterations"` // Dispatch passes performed
	Contributions []KindContribution `json:"contributions"`
	ExcludedKinds []ExcludedKind     `json:"excluded_kinds,omitempty"`
	Analyses      []AnalysisResult   `json:"analyses"` // Ordered audit trail
	Insights      InsightSet         `json:"insights"`

	Execution ExecutionMeta `json:"execution"`
	CreatedAt time.Time     `json:"created_at"`
}

// LatestAnalyses returns the most recent result per kind, preserving the
// order of first appearance. Earlier attempts remain in Analyses as the
// audit trail.
func (r *InvestmentRecommendation) LatestAnalyses() []AnalysisResult {
	latest := make(map[AnalysisKind]int)
	order := []AnalysisKind{}
	for i, a := range r.Analyses {
		if _, seen := latest[a.Kind]; !seen {
			order = append(order, a.Kind)
		}
		latest[a.Kind] = i
	}

	results := make([]AnalysisResult, 0, len(order))
	for _, kind := range order {
		results = append(results, r.Analyses[latest[kind]])
	}
	return results
}

// AttemptCount returns how many attempts were made for the given kind
func (r *InvestmentRecommendation) AttemptCount(kind AnalysisKind) int {
	count := 0
	for _, a := range r.Analyses {
		if a.Kind == kind {
			count++
		}
	}
	return count
}
