// -----------------------------------------------------------------------
// Judgment - Cross-analyst synthesis into one scored recommendation
// -----------------------------------------------------------------------

package judgment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consilium/internal/models"
)

// ErrNoUsableResults is returned when a batch contains no succeeded or
// degraded result to synthesize from.
var ErrNoUsableResults = errors.New("no usable analysis results for synthesis")

// Service synthesizes a batch of analysis results into a single judgment.
// Synthesize is a pure function of (results, weights): the same inputs
// always produce the same judgment, including its rationale text.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a judgment service
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Synthesize computes the composite score, overall confidence, consistency
// and band over one batch of results (one result per kind, the latest
// attempt of the current iteration).
//
// Weights are renormalized to sum to 1 over the kinds that produced a
// usable result; a kind with no usable result contributes zero weight and
// is excluded from the denominator - it is never scored as zero. When the
// weights of all usable kinds sum to zero, equal weights apply.
func (s *Service) Synthesize(results []models.AnalysisResult, weights map[models.AnalysisKind]float64) (*models.Judgment, error) {
	usable := make([]models.AnalysisResult, 0, len(results))
	excluded := make([]models.ExcludedKind, 0)

	for _, r := range results {
		if r.Usable() {
			usable = append(usable, r)
			continue
		}
		excluded = append(excluded, models.ExcludedKind{
			Kind:   r.Kind,
			Reason: excludeReason(r),
		})
	}

	if len(usable) == 0 {
		return nil, ErrNoUsableResults
	}

	// Renormalize weights over usable kinds only
	totalWeight := 0.0
	for _, r := range usable {
		totalWeight += weights[r.Kind]
	}

	contributions := make([]models.KindContribution, 0, len(usable))
	composite := 0.0
	avgConfidence := 0.0
	minScore, maxScore := 1.0, 0.0

	for _, r := range usable {
		normWeight := 0.0
		if totalWeight > 0 {
			normWeight = weights[r.Kind] / totalWeight
		} else {
			// All usable kinds carry zero weight - fall back to equal weights
			normWeight = 1.0 / float64(len(usable))
		}

		score := models.Clamp01(r.Score)
		confidence := models.Clamp01(r.Confidence)

		composite += normWeight * score
		avgConfidence += normWeight * confidence

		if score < minScore {
			minScore = score
		}
		if score > maxScore {
			maxScore = score
		}

		contributions = append(contributions, models.KindContribution{
			Kind:       r.Kind,
			Score:      score,
			Weight:     normWeight,
			Confidence: confidence,
		})
	}

	// Consistency = 1 - spread between the extreme usable scores.
	// A single usable result has no basis for disagreement and is not penalized.
	consistency := 1.0
	if len(usable) > 1 {
		consistency = models.Clamp01(1.0 - (maxScore - minScore))
	}

	// Overall confidence couples per-analyst certainty with cross-analyst
	// agreement: full agreement keeps the averaged confidence, total
	// disagreement halves it.
	composite = models.Clamp01(composite)
	confidence := models.Clamp01(avgConfidence * (0.5 + 0.5*consistency))
	band := models.BandFromScore(composite)

	j := &models.Judgment{
		CompositeScore: composite,
		Confidence:     confidence,
		Consistency:    consistency,
		Band:           band,
		Rationale:      buildRationale(composite, confidence, consistency, band, contributions, excluded),
		Contributions:  contributions,
		ExcludedKinds:  excluded,
	}

	s.logger.Debug().
		Float64("composite", j.CompositeScore).
		Float64("confidence", j.Confidence).
		Float64("consistency", j.Consistency).
		Str("band", string(j.Band)).
		Int("usable", len(usable)).
		Int("excluded", len(excluded)).
		Msg("Synthesized judgment")

	return j, nil
}

// excludeReason summarizes why a result cannot contribute to synthesis
func excludeReason(r models.AnalysisResult) string {
	if r.ErrorKind != "" && r.Error != "" {
		return fmt.Sprintf("%s: %s", r.ErrorKind, r.Error)
	}
	if r.Error != "" {
		return r.Error
	}
	if r.ErrorKind != "" {
		return string(r.ErrorKind)
	}
	return "no usable result"
}

// buildRationale renders the deterministic summary of a synthesis pass.
// It lists the composite score, confidence, consistency, every kind's
// score/weight contribution, and names each excluded kind with its reason.
func buildRationale(composite, confidence, consistency float64, band models.RecommendationBand, contributions []models.KindContribution, excluded []models.ExcludedKind) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Composite score %.2f (%s) with confidence %.2f and consistency %.2f.", composite, band, confidence, consistency)

	for _, c := range contributions {
		fmt.Fprintf(&b, " %s: score %.2f x weight %.2f (confidence %.2f).", c.Kind, c.Score, c.Weight, c.Confidence)
	}

	for _, e := range excluded {
		fmt.Fprintf(&b, " Excluded %s (%s).", e.Kind, e.Reason)
	}

	return b.String()
}
