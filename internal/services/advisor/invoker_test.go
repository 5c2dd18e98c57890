package advisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/models"
	"github.com/ternarybob/consilium/internal/services/analysts"
)

func fundamentalRequest() models.AnalysisRequest {
	return models.AnalysisRequest{
		Ticker:  "ASX:BHP",
		Kind:    models.KindFundamental,
		Attempt: 1,
	}
}

func TestInvoke_Success(t *testing.T) {
	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	analyst := &stubAnalyst{
		kind:    models.KindFundamental,
		analyze: returnsPayload(fundamentalPayload(0.72, 0.8)),
	}

	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
	}
	if result.Score != 0.72 {
		t.Errorf("expected score 0.72, got %v", result.Score)
	}
	if result.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", result.Confidence)
	}
	if !strings.HasPrefix(result.ID, "ana_") {
		t.Errorf("expected ana_ id prefix, got %q", result.ID)
	}
	if result.Analyst != "stub-fundamental" {
		t.Errorf("expected analyst name recorded, got %q", result.Analyst)
	}
	if result.Iteration != 1 {
		t.Errorf("expected iteration 1, got %d", result.Iteration)
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("completed_at precedes started_at")
	}
}

func TestInvoke_DefaultConfidenceNoted(t *testing.T) {
	payload := fundamentalPayload(0.5, 0)
	delete(payload, "confidence")

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	analyst := &stubAnalyst{kind: models.KindFundamental, analyze: returnsPayload(payload)}

	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Confidence != analysts.DefaultConfidence {
		t.Errorf("expected default confidence %v, got %v", analysts.DefaultConfidence, result.Confidence)
	}
	if !strings.Contains(result.Notes, "defaulted") {
		t.Errorf("default must be recorded in notes, got: %q", result.Notes)
	}
}

func TestInvoke_SchemaInvalid(t *testing.T) {
	payload := fundamentalPayload(0.5, 0.8)
	delete(payload, "health_score")

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	analyst := &stubAnalyst{kind: models.KindFundamental, analyze: returnsPayload(payload)}

	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.ErrorKind != models.ErrSchemaInvalid {
		t.Errorf("expected schema-invalid, got %s", result.ErrorKind)
	}
	if !strings.Contains(result.Error, "health_score") {
		t.Errorf("error should name the missing field, got: %q", result.Error)
	}
	if result.Payload == nil {
		t.Error("raw payload should be kept on schema failures for diagnosis")
	}
}

func TestInvoke_TransientRetryThenSuccess(t *testing.T) {
	calls := 0
	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(_ context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			calls++
			if calls < 3 {
				return nil, errors.New("rate limit exceeded, please slow down")
			}
			return fundamentalPayload(0.6, 0.9), nil
		},
	}

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisSucceeded {
		t.Fatalf("expected success after retries, got %s (%s)", result.Status, result.Error)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 retries), got %d", calls)
	}
}

func TestInvoke_TransientRetriesExhausted(t *testing.T) {
	calls := 0
	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(_ context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			calls++
			return nil, errors.New("upstream returned 429")
		},
	}

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.ErrorKind != models.ErrTransientCapability {
		t.Errorf("expected transient-capability-failure, got %s", result.ErrorKind)
	}
	if calls != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d calls", calls)
	}
}

func TestInvoke_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(_ context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			calls++
			return nil, errors.New("invalid api key")
		},
	}

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.ErrorKind != models.ErrCapabilityFailure {
		t.Errorf("expected capability-failure, got %s", result.ErrorKind)
	}
	if calls != 1 {
		t.Errorf("non-transient errors must not retry, got %d calls", calls)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	config := testAdvisorConfig()
	config.AnalystTimeout = "30ms"

	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(ctx context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	invoker := NewInvoker(config, common.GetLogger())
	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.ErrorKind != models.ErrTimeout {
		t.Errorf("expected timeout kind, got %s", result.ErrorKind)
	}
	if result.Error != "timeout" {
		t.Errorf("expected error detail %q, got %q", "timeout", result.Error)
	}
}

func TestInvoke_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(callCtx context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			cancel()
			<-callCtx.Done()
			return nil, callCtx.Err()
		},
	}

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	result := invoker.Invoke(ctx, analyst, fundamentalRequest(), 1)

	if result.ErrorKind != models.ErrCancelled {
		t.Errorf("expected cancelled kind, got %s", result.ErrorKind)
	}
	if result.Error != "cancelled" {
		t.Errorf("expected error detail %q, got %q", "cancelled", result.Error)
	}
}

func TestInvoke_ValuationScoreDerived(t *testing.T) {
	payload := valuationPayload(0, 0.7)
	delete(payload["valuation"].(map[string]interface{}), "score")

	analyst := &stubAnalyst{kind: models.KindValuation, analyze: returnsPayload(payload)}
	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())

	request := models.AnalysisRequest{Ticker: "ASX:BHP", Kind: models.KindValuation, Attempt: 1}
	result := invoker.Invoke(context.Background(), analyst, request, 1)

	if result.Status != models.AnalysisSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", result.Status, result.Error)
	}
	// upside 0.162 falls in the >=0.15 band
	if result.Score != 0.75 {
		t.Errorf("expected derived score 0.75, got %v", result.Score)
	}
	if !strings.Contains(result.Notes, "derived from upside_potential") {
		t.Errorf("derivation must be noted, got: %q", result.Notes)
	}
}

func TestInvoke_DegradedOnDataQualityFlag(t *testing.T) {
	payload := fundamentalPayload(0.6, 0.8)
	payload["data_quality"] = "partial"

	analyst := &stubAnalyst{kind: models.KindFundamental, analyze: returnsPayload(payload)}
	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())

	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisDegraded {
		t.Fatalf("expected degraded, got %s", result.Status)
	}
	if !result.Usable() {
		t.Error("degraded results must stay usable")
	}
	if !strings.Contains(result.Notes, "partial") {
		t.Errorf("notes should explain the downgrade, got: %q", result.Notes)
	}
}

func TestInvoke_DegradedOnBareMinimumPayload(t *testing.T) {
	analyst := &stubAnalyst{
		kind:    models.KindTechnical,
		analyze: returnsPayload(map[string]interface{}{"technical_score": 0.55}),
	}
	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())

	request := models.AnalysisRequest{Ticker: "ASX:BHP", Kind: models.KindTechnical, Attempt: 1}
	result := invoker.Invoke(context.Background(), analyst, request, 1)

	if result.Status != models.AnalysisDegraded {
		t.Fatalf("payload without enrichment should degrade, got %s", result.Status)
	}
}

func TestInvoke_PanickingAnalyst(t *testing.T) {
	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(_ context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			panic("nil map write")
		},
	}

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.Status != models.AnalysisFailed {
		t.Fatalf("a panicking analyst must become a failed result, got %s", result.Status)
	}
	if !strings.Contains(result.Error, "panic") {
		t.Errorf("error should mention the panic, got: %q", result.Error)
	}
}

func TestInvoke_LiftsTokenUsage(t *testing.T) {
	payload := fundamentalPayload(0.7, 0.8)
	payload["tokens_used"] = 2048.0

	analyst := &stubAnalyst{kind: models.KindFundamental, analyze: returnsPayload(payload)}
	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())

	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.TokensUsed != 2048 {
		t.Errorf("expected tokens lifted into metadata, got %d", result.TokensUsed)
	}
	if _, still := result.Payload["tokens_used"]; still {
		t.Error("tokens_used should be removed from the payload")
	}
}

func TestInvoke_DurationRecorded(t *testing.T) {
	analyst := &stubAnalyst{
		kind: models.KindFundamental,
		analyze: func(_ context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
			time.Sleep(5 * time.Millisecond)
			return fundamentalPayload(0.6, 0.9), nil
		},
	}

	invoker := NewInvoker(testAdvisorConfig(), common.GetLogger())
	result := invoker.Invoke(context.Background(), analyst, fundamentalRequest(), 1)

	if result.DurationMs < 5 {
		t.Errorf("expected duration of at least 5ms, got %d", result.DurationMs)
	}
}
