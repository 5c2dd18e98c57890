// -----------------------------------------------------------------------
// Refinement - per-kind parameter adjustment for re-requested analyses.
// Strategies live in a static table so refinement policy stays data, not
// controller branching
// -----------------------------------------------------------------------

package advisor

import (
	"fmt"
	"strings"

	"github.com/ternarybob/consilium/internal/models"
)

// RefineFunc adjusts request parameters for a retry, informed by the prior
// attempt's result
type RefineFunc func(params map[string]interface{}, prior *models.AnalysisResult)

// refinements maps each kind to its retry strategy: fundamental widens the
// statement window and asks for full detail, technical narrows the signal
// window, valuation adds comparables and scenario spread.
var refinements = map[models.AnalysisKind]RefineFunc{
	models.KindFundamental: refineFundamental,
	models.KindTechnical:   refineTechnical,
	models.KindValuation:   refineValuation,
}

func refineFundamental(params map[string]interface{}, _ *models.AnalysisResult) {
	params["lookback_years"] = 5
	params["require_detail"] = true
}

func refineTechnical(params map[string]interface{}, _ *models.AnalysisResult) {
	params["lookback_days"] = 90
}

func refineValuation(params map[string]interface{}, _ *models.AnalysisResult) {
	params["include_comparables"] = true
	params["scenario_count"] = 3
}

// BuildRefinedRequest produces the next attempt for a kind that triggered
// refinement. The clone gets the kind's strategy applied, the prior
// attempt's notes, and one-line summaries of what the other kinds
// concluded, so the analyst reworks its view with peer context.
func BuildRefinedRequest(req models.AnalysisRequest, prior *models.AnalysisResult, latest []models.AnalysisResult) models.AnalysisRequest {
	refined := req.Clone()
	refined.Attempt = req.Attempt + 1

	if strategy, ok := refinements[refined.Kind]; ok {
		strategy(refined.Parameters, prior)
	}

	if note := priorNote(prior); note != "" {
		refined.Parameters["prior_notes"] = note
	}
	if peers := peerContext(refined.Kind, latest); peers != "" {
		refined.Parameters["peer_context"] = peers
	}

	return refined
}

// priorNote extracts what the previous attempt reported about itself:
// data-quality notes when it was usable, the failure detail otherwise
func priorNote(prior *models.AnalysisResult) string {
	if prior == nil {
		return ""
	}
	if prior.Notes != "" {
		return prior.Notes
	}
	if prior.Error != "" {
		return "prior attempt failed: " + prior.Error
	}
	return ""
}

// peerContext summarizes the other kinds' latest usable results, one line
// per kind
func peerContext(kind models.AnalysisKind, latest []models.AnalysisResult) string {
	lines := make([]string, 0, len(latest))
	for _, peer := range latest {
		if peer.Kind == kind || !peer.Usable() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: score %.2f, confidence %.2f", peer.Kind, peer.Score, peer.Confidence))
	}
	return strings.Join(lines, "; ")
}
