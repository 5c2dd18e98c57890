// -----------------------------------------------------------------------
// FeedbackController - decides after each judged pass whether the loop
// stops or re-dispatches refined requests for the kinds that triggered.
// State machine per advisory:
//   DISPATCHING -> JUDGING -> {CONTINUE -> DISPATCHING |
//   STOP_FINAL | STOP_BEST_EFFORT | FAIL_INSUFFICIENT_DATA}
// -----------------------------------------------------------------------

package advisor

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consilium/internal/models"
)

// LoopState labels the phases of one advisory request's state machine
type LoopState string

const (
	StateDispatching          LoopState = "DISPATCHING"
	StateJudging              LoopState = "JUDGING"
	StateContinue             LoopState = "CONTINUE"
	StateStopFinal            LoopState = "STOP_FINAL"
	StateStopBestEffort       LoopState = "STOP_BEST_EFFORT"
	StateFailInsufficientData LoopState = "FAIL_INSUFFICIENT_DATA"
)

// Policy carries the loop thresholds resolved for one advisory request.
// MaxIterations counts refinement passes beyond the first dispatch, so the
// loop performs at most MaxIterations+1 dispatch rounds.
type Policy struct {
	ConfidenceThreshold float64
	MinKindConfidence   float64
	MaxIterations       int
}

// Decision is the controller's verdict on one completed pass
type Decision struct {
	State   LoopState
	Reasons []string                 // Trigger descriptions, in evaluation order
	Retry   []models.AnalysisRequest // Refined requests, set only for StateContinue
}

// Controller evaluates judged passes against the loop policy. It holds no
// per-request state; the orchestrator passes in the pass number and the
// latest request and result per kind.
type Controller struct {
	policy Policy
	logger arbor.ILogger
}

// NewController creates a feedback controller for one resolved policy
func NewController(policy Policy, logger arbor.ILogger) *Controller {
	return &Controller{
		policy: policy,
		logger: logger,
	}
}

// Decide inspects one pass's judgment and the latest result per kind.
// requests must hold the most recent request per kind in dispatch order;
// pass is the 1-based count of completed dispatch rounds. With no trigger
// the judgment is final; a trigger continues the loop until the refinement
// budget runs out, then yields the best-effort stop.
func (c *Controller) Decide(judgment *models.Judgment, latest []models.AnalysisResult, requests []models.AnalysisRequest, pass int) Decision {
	triggered, reasons := c.evaluateTriggers(judgment, latest, requests)
	if len(triggered) == 0 {
		return Decision{State: StateStopFinal}
	}

	if pass > c.policy.MaxIterations {
		reasons = append(reasons, fmt.Sprintf("refinement budget exhausted after %d dispatch passes", pass))
		c.logger.Info().
			Int("pass", pass).
			Strs("reasons", reasons).
			Msg("Stopping with best-effort judgment")
		return Decision{State: StateStopBestEffort, Reasons: reasons}
	}

	priors := make(map[models.AnalysisKind]*models.AnalysisResult, len(latest))
	for idx := range latest {
		priors[latest[idx].Kind] = &latest[idx]
	}

	retry := make([]models.AnalysisRequest, 0, len(triggered))
	for _, req := range requests {
		if !triggered[req.Kind] {
			continue
		}
		retry = append(retry, BuildRefinedRequest(req, priors[req.Kind], latest))
	}

	c.logger.Info().
		Int("pass", pass).
		Int("retry_kinds", len(retry)).
		Strs("reasons", reasons).
		Msg("Feedback triggered refinement")

	return Decision{State: StateContinue, Reasons: reasons, Retry: retry}
}

// evaluateTriggers returns the kinds responsible for another pass. Failed
// required kinds and low-confidence usable kinds re-run directly; a
// composite confidence shortfall re-runs only the weakest usable kind.
func (c *Controller) evaluateTriggers(judgment *models.Judgment, latest []models.AnalysisResult, requests []models.AnalysisRequest) (map[models.AnalysisKind]bool, []string) {
	triggered := make(map[models.AnalysisKind]bool)
	var reasons []string

	required := make(map[models.AnalysisKind]bool, len(requests))
	for _, req := range requests {
		if req.Required {
			required[req.Kind] = true
		}
	}

	for _, result := range latest {
		if result.Status == models.AnalysisFailed && required[result.Kind] && !triggered[result.Kind] {
			triggered[result.Kind] = true
			reasons = append(reasons, fmt.Sprintf("required kind %s failed: %s", result.Kind, result.Error))
		}
	}

	for _, result := range latest {
		if result.Usable() && result.Confidence < c.policy.MinKindConfidence && !triggered[result.Kind] {
			triggered[result.Kind] = true
			reasons = append(reasons, fmt.Sprintf("%s confidence %.2f below per-kind minimum %.2f",
				result.Kind, result.Confidence, c.policy.MinKindConfidence))
		}
	}

	if judgment.Confidence < c.policy.ConfidenceThreshold {
		reason := fmt.Sprintf("composite confidence %.2f below threshold %.2f",
			judgment.Confidence, c.policy.ConfidenceThreshold)
		if kind, ok := lowestConfidenceKind(latest); ok {
			triggered[kind] = true
			reason += fmt.Sprintf("; re-running weakest kind %s", kind)
		}
		reasons = append(reasons, reason)
	}

	return triggered, reasons
}

// lowestConfidenceKind picks the usable kind with the lowest confidence.
// Ties resolve to the earliest in batch order so the choice is
// deterministic.
func lowestConfidenceKind(latest []models.AnalysisResult) (models.AnalysisKind, bool) {
	var kind models.AnalysisKind
	lowest := 0.0
	found := false
	for _, result := range latest {
		if !result.Usable() {
			continue
		}
		if !found || result.Confidence < lowest {
			found = true
			lowest = result.Confidence
			kind = result.Kind
		}
	}
	return kind, found
}
