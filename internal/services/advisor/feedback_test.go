package advisor

import (
	"strings"
	"testing"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/models"
)

func usableAnalysis(kind models.AnalysisKind, score, confidence float64) models.AnalysisResult {
	return models.AnalysisResult{
		ID:         common.NewAnalysisID(),
		Ticker:     "ASX:BHP",
		Kind:       kind,
		Status:     models.AnalysisSucceeded,
		Score:      score,
		Confidence: confidence,
		Iteration:  1,
	}
}

func failedAnalysis(kind models.AnalysisKind, errKind models.ErrorKind, message string) models.AnalysisResult {
	return models.AnalysisResult{
		ID:        common.NewAnalysisID(),
		Ticker:    "ASX:BHP",
		Kind:      kind,
		Status:    models.AnalysisFailed,
		Error:     message,
		ErrorKind: errKind,
		Iteration: 1,
	}
}

func analysisRequest(kind models.AnalysisKind, required bool) models.AnalysisRequest {
	return models.AnalysisRequest{
		Ticker:     "ASX:BHP",
		Kind:       kind,
		Attempt:    1,
		Parameters: map[string]interface{}{},
		Required:   required,
	}
}

func testPolicy() Policy {
	return Policy{ConfidenceThreshold: 0.5, MinKindConfidence: 0.0, MaxIterations: 2}
}

func TestDecide_StopFinalWhenNoTriggers(t *testing.T) {
	controller := NewController(testPolicy(), common.GetLogger())

	latest := []models.AnalysisResult{
		usableAnalysis(models.KindFundamental, 0.8, 0.9),
		usableAnalysis(models.KindTechnical, 0.7, 0.8),
	}
	requests := []models.AnalysisRequest{
		analysisRequest(models.KindFundamental, true),
		analysisRequest(models.KindTechnical, false),
	}

	decision := controller.Decide(&models.Judgment{Confidence: 0.8}, latest, requests, 1)

	if decision.State != StateStopFinal {
		t.Fatalf("expected STOP_FINAL, got %s (reasons: %v)", decision.State, decision.Reasons)
	}
	if len(decision.Retry) != 0 {
		t.Errorf("final stop must not carry retries, got %d", len(decision.Retry))
	}
}

func TestDecide_CompositeShortfallRetriesWeakestOnly(t *testing.T) {
	policy := testPolicy()
	policy.ConfidenceThreshold = 0.75
	controller := NewController(policy, common.GetLogger())

	latest := []models.AnalysisResult{
		usableAnalysis(models.KindFundamental, 0.7, 0.9),
		usableAnalysis(models.KindTechnical, 0.7, 0.5),
		usableAnalysis(models.KindValuation, 0.7, 0.8),
	}
	requests := []models.AnalysisRequest{
		analysisRequest(models.KindFundamental, false),
		analysisRequest(models.KindTechnical, false),
		analysisRequest(models.KindValuation, false),
	}

	decision := controller.Decide(&models.Judgment{Confidence: 0.5}, latest, requests, 1)

	if decision.State != StateContinue {
		t.Fatalf("expected CONTINUE, got %s", decision.State)
	}
	if len(decision.Retry) != 1 {
		t.Fatalf("only the weakest kind should re-run, got %d retries", len(decision.Retry))
	}
	if decision.Retry[0].Kind != models.KindTechnical {
		t.Errorf("expected technical (lowest confidence), got %s", decision.Retry[0].Kind)
	}
	if decision.Retry[0].Attempt != 2 {
		t.Errorf("refined request should carry attempt 2, got %d", decision.Retry[0].Attempt)
	}
}

func TestDecide_PerKindConfidenceFloor(t *testing.T) {
	policy := testPolicy()
	policy.MinKindConfidence = 0.7
	controller := NewController(policy, common.GetLogger())

	latest := []models.AnalysisResult{
		usableAnalysis(models.KindFundamental, 0.8, 0.9),
		usableAnalysis(models.KindTechnical, 0.7, 0.65),
	}
	requests := []models.AnalysisRequest{
		analysisRequest(models.KindFundamental, false),
		analysisRequest(models.KindTechnical, false),
	}

	decision := controller.Decide(&models.Judgment{Confidence: 0.9}, latest, requests, 1)

	if decision.State != StateContinue {
		t.Fatalf("expected CONTINUE, got %s", decision.State)
	}
	if len(decision.Retry) != 1 || decision.Retry[0].Kind != models.KindTechnical {
		t.Errorf("expected only technical to re-run, got %v", decision.Retry)
	}
	if len(decision.Reasons) == 0 || !strings.Contains(decision.Reasons[0], "per-kind minimum") {
		t.Errorf("reason should name the per-kind floor, got %v", decision.Reasons)
	}
}

func TestDecide_RequiredKindFailureTriggers(t *testing.T) {
	controller := NewController(testPolicy(), common.GetLogger())

	latest := []models.AnalysisResult{
		failedAnalysis(models.KindFundamental, models.ErrTimeout, "timeout"),
		usableAnalysis(models.KindTechnical, 0.7, 0.9),
	}
	requests := []models.AnalysisRequest{
		analysisRequest(models.KindFundamental, true),
		analysisRequest(models.KindTechnical, false),
	}

	decision := controller.Decide(&models.Judgment{Confidence: 0.9}, latest, requests, 1)

	if decision.State != StateContinue {
		t.Fatalf("failed required kind must re-run, got %s", decision.State)
	}
	if len(decision.Retry) != 1 || decision.Retry[0].Kind != models.KindFundamental {
		t.Errorf("expected fundamental retry, got %v", decision.Retry)
	}
}

func TestDecide_OptionalKindFailureDoesNotTrigger(t *testing.T) {
	controller := NewController(testPolicy(), common.GetLogger())

	latest := []models.AnalysisResult{
		usableAnalysis(models.KindFundamental, 0.8, 0.9),
		failedAnalysis(models.KindTechnical, models.ErrSchemaInvalid, "missing required field: technical_score"),
	}
	requests := []models.AnalysisRequest{
		analysisRequest(models.KindFundamental, true),
		analysisRequest(models.KindTechnical, false),
	}

	decision := controller.Decide(&models.Judgment{Confidence: 0.9}, latest, requests, 1)

	if decision.State != StateStopFinal {
		t.Errorf("optional failure alone must not trigger a retry, got %s", decision.State)
	}
}

func TestDecide_BudgetExhaustedStopsBestEffort(t *testing.T) {
	policy := testPolicy()
	policy.ConfidenceThreshold = 0.75
	controller := NewController(policy, common.GetLogger())

	latest := []models.AnalysisResult{usableAnalysis(models.KindFundamental, 0.6, 0.4)}
	requests := []models.AnalysisRequest{analysisRequest(models.KindFundamental, false)}

	// Pass 3 exceeds the 2-retry budget
	decision := controller.Decide(&models.Judgment{Confidence: 0.4}, latest, requests, 3)

	if decision.State != StateStopBestEffort {
		t.Fatalf("expected STOP_BEST_EFFORT, got %s", decision.State)
	}
	if len(decision.Retry) != 0 {
		t.Errorf("best-effort stop must not carry retries")
	}
	found := false
	for _, reason := range decision.Reasons {
		if strings.Contains(reason, "budget exhausted") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons should mention the exhausted budget, got %v", decision.Reasons)
	}
}

func TestDecide_RefinedRequestCarriesContext(t *testing.T) {
	policy := testPolicy()
	policy.MinKindConfidence = 0.7
	controller := NewController(policy, common.GetLogger())

	weak := usableAnalysis(models.KindTechnical, 0.7, 0.5)
	weak.Notes = "confidence not reported; defaulted to 0.60"
	latest := []models.AnalysisResult{
		usableAnalysis(models.KindFundamental, 0.8, 0.9),
		weak,
	}
	requests := []models.AnalysisRequest{
		analysisRequest(models.KindFundamental, false),
		analysisRequest(models.KindTechnical, false),
	}

	decision := controller.Decide(&models.Judgment{Confidence: 0.9}, latest, requests, 1)

	if decision.State != StateContinue {
		t.Fatalf("expected CONTINUE, got %s", decision.State)
	}
	refined := decision.Retry[0]
	if refined.Parameters["lookback_days"] != 90 {
		t.Errorf("technical refinement should narrow the window, got %v", refined.Parameters["lookback_days"])
	}
	if refined.Parameters["prior_notes"] != weak.Notes {
		t.Errorf("prior notes should ride along, got %v", refined.Parameters["prior_notes"])
	}
	peers, _ := refined.Parameters["peer_context"].(string)
	if !strings.Contains(peers, "fundamental") {
		t.Errorf("peer context should summarize the other kinds, got %q", peers)
	}
}

func TestBuildRefinedRequest_PerKindStrategies(t *testing.T) {
	tests := []struct {
		kind     models.AnalysisKind
		expected map[string]interface{}
	}{
		{models.KindFundamental, map[string]interface{}{"lookback_years": 5, "require_detail": true}},
		{models.KindTechnical, map[string]interface{}{"lookback_days": 90}},
		{models.KindValuation, map[string]interface{}{"include_comparables": true, "scenario_count": 3}},
	}

	for _, tt := range tests {
		refined := BuildRefinedRequest(analysisRequest(tt.kind, false), nil, nil)
		if refined.Attempt != 2 {
			t.Errorf("%s: expected attempt 2, got %d", tt.kind, refined.Attempt)
		}
		for key, want := range tt.expected {
			if got := refined.Parameters[key]; got != want {
				t.Errorf("%s: expected %s=%v, got %v", tt.kind, key, want, got)
			}
		}
	}
}

func TestBuildRefinedRequest_DoesNotMutateOriginal(t *testing.T) {
	original := analysisRequest(models.KindValuation, true)
	original.Parameters["scenario_count"] = 1

	refined := BuildRefinedRequest(original, nil, nil)

	if original.Parameters["scenario_count"] != 1 {
		t.Error("refinement must not mutate the original request")
	}
	if original.Attempt != 1 {
		t.Errorf("original attempt changed to %d", original.Attempt)
	}
	if refined.Parameters["scenario_count"] != 3 {
		t.Errorf("refined request should override, got %v", refined.Parameters["scenario_count"])
	}
	if !refined.Required {
		t.Error("required flag must survive refinement")
	}
}

func TestBuildRefinedRequest_FailedPriorBecomesNote(t *testing.T) {
	prior := failedAnalysis(models.KindFundamental, models.ErrTimeout, "timeout")

	refined := BuildRefinedRequest(analysisRequest(models.KindFundamental, true), &prior, nil)

	note, _ := refined.Parameters["prior_notes"].(string)
	if !strings.Contains(note, "prior attempt failed") {
		t.Errorf("failed prior should surface in prior_notes, got %q", note)
	}
}
