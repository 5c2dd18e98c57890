// -----------------------------------------------------------------------
// Invoker - runs a single analyst invocation end to end: per-call timeout,
// bounded transient retries, payload normalization, schema validation and
// quality assessment. Failures are values: every call yields an
// AnalysisResult, never an error or a panic
// -----------------------------------------------------------------------

package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
	"github.com/ternarybob/consilium/internal/services/analysts"
)

// transientMarkers classify capability errors worth an immediate retry.
// Anything else fails the invocation on first report.
var transientMarkers = []string{
	"rate limit",
	"429",
	"timeout",
	"connection",
	"temporary",
	"unavailable",
	"overloaded",
	"503",
}

// isTransientError checks whether a capability error is a retryable
// condition (rate limiting, connection trouble, temporary unavailability).
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// Invoker executes one analyst call under the advisory's invocation policy.
// Transient retries happen here and are invisible to the feedback loop's
// iteration budget.
type Invoker struct {
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	logger     arbor.ILogger
}

// NewInvoker creates an invoker from the advisor configuration
func NewInvoker(config *common.AdvisorConfig, logger arbor.ILogger) *Invoker {
	return &Invoker{
		timeout:    config.AnalystTimeoutDuration(),
		maxRetries: config.MaxRetries,
		backoff:    config.RetryBackoffDuration(),
		logger:     logger,
	}
}

// Invoke runs the request against the analyst and returns the attempt's
// immutable result. pass stamps which dispatch round produced it. The
// per-call timeout spans all transient retries.
func (i *Invoker) Invoke(ctx context.Context, analyst interfaces.Analyst, req models.AnalysisRequest, pass int) *models.AnalysisResult {
	started := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	payload, err := i.analyzeWithRetry(callCtx, analyst, req)
	if err != nil {
		kind, detail := classifyInvocationError(callCtx, err)
		i.logger.Warn().
			Str("ticker", req.Ticker).
			Str("kind", string(req.Kind)).
			Str("analyst", analyst.Name()).
			Str("error_kind", string(kind)).
			Err(err).
			Msg("Analyst invocation failed")
		return i.failed(req, analyst.Name(), pass, kind, detail, started)
	}

	// Token usage rides in the raw payload; lift it into execution metadata
	tokens := 0
	if v, ok := payload["tokens_used"].(float64); ok {
		tokens = int(v)
		delete(payload, "tokens_used")
	}

	var notes []string
	if req.Kind == models.KindValuation {
		if note := analysts.NormalizeValuation(payload); note != "" {
			notes = append(notes, note)
		}
	}

	score, confidence, evalErr := analysts.Evaluate(req.Kind, payload)
	if evalErr != nil {
		i.logger.Warn().
			Str("ticker", req.Ticker).
			Str("kind", string(req.Kind)).
			Str("analyst", analyst.Name()).
			Err(evalErr).
			Msg("Analyst output failed schema validation")
		result := i.failed(req, analyst.Name(), pass, models.ErrSchemaInvalid, evalErr.Error(), started)
		result.Payload = payload
		result.TokensUsed = tokens
		return result
	}

	if _, reported := payload["confidence"]; !reported {
		notes = append(notes, fmt.Sprintf("confidence not reported; defaulted to %.2f", analysts.DefaultConfidence))
	}

	status := models.AnalysisSucceeded
	if degraded, qualityNotes := analysts.AssessQuality(req.Kind, payload); degraded {
		status = models.AnalysisDegraded
		notes = append(notes, qualityNotes...)
	}

	completed := time.Now()
	result := &models.AnalysisResult{
		ID:          common.NewAnalysisID(),
		Ticker:      req.Ticker,
		Kind:        req.Kind,
		Analyst:     analyst.Name(),
		Iteration:   pass,
		Status:      status,
		Score:       score,
		Confidence:  confidence,
		Payload:     payload,
		Notes:       strings.Join(notes, "; "),
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
		TokensUsed:  tokens,
	}

	i.logger.Debug().
		Str("ticker", req.Ticker).
		Str("kind", string(req.Kind)).
		Str("analyst", analyst.Name()).
		Str("status", string(status)).
		Float64("score", score).
		Float64("confidence", confidence).
		Int64("duration_ms", result.DurationMs).
		Msg("Analysis completed")

	return result
}

// analyzeWithRetry calls the analyst, retrying transient failures up to
// maxRetries times with linear backoff. Context errors end the loop
// immediately so a dead request never burns retries.
func (i *Invoker) analyzeWithRetry(ctx context.Context, analyst interfaces.Analyst, req models.AnalysisRequest) (map[string]interface{}, error) {
	var lastErr error

	for attempt := 0; attempt <= i.maxRetries; attempt++ {
		if attempt > 0 {
			i.logger.Debug().
				Str("ticker", req.Ticker).
				Str("kind", string(req.Kind)).
				Int("retry", attempt).
				Err(lastErr).
				Msg("Retrying analyst call after transient failure")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(i.backoff * time.Duration(attempt)):
			}
		}

		payload, err := i.safeAnalyze(ctx, analyst, req)
		if err == nil {
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("transient failure persisted after %d retries: %w", i.maxRetries, lastErr)
}

// safeAnalyze shields the invoker from a panicking analyst. A panic becomes
// an ordinary capability error carried on the result.
func (i *Invoker) safeAnalyze(ctx context.Context, analyst interfaces.Analyst, req models.AnalysisRequest) (payload map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			i.logger.Error().
				Str("ticker", req.Ticker).
				Str("kind", string(req.Kind)).
				Str("analyst", analyst.Name()).
				Str("stack", common.GetStackTrace()).
				Msgf("Analyst panicked: %v", r)
			err = fmt.Errorf("analyst panic: %v", r)
		}
	}()
	return analyst.Analyze(ctx, req)
}

// classifyInvocationError maps an invocation error to its taxonomy kind and
// the error detail recorded on the result. Deadline and cancellation beat
// text matching: an analyst that wraps ctx.Err in its own message still
// classifies by the context state.
func classifyInvocationError(ctx context.Context, err error) (models.ErrorKind, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return models.ErrTimeout, "timeout"
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return models.ErrCancelled, "cancelled"
	case isTransientError(err):
		return models.ErrTransientCapability, err.Error()
	default:
		return models.ErrCapabilityFailure, err.Error()
	}
}

// failed builds a fully stamped failed result for this invocation
func (i *Invoker) failed(req models.AnalysisRequest, analyst string, pass int, kind models.ErrorKind, detail string, started time.Time) *models.AnalysisResult {
	result := models.NewFailedAnalysis(req, analyst, pass, kind, detail)
	result.ID = common.NewAnalysisID()
	result.StartedAt = started
	result.CompletedAt = time.Now()
	result.DurationMs = result.CompletedAt.Sub(started).Milliseconds()
	return result
}
