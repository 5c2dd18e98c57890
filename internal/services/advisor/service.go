// -----------------------------------------------------------------------
// AdvisorService - owns one advisory request end to end: dispatch passes,
// judgment, feedback-driven refinement, terminal recommendation. No state
// crosses requests; everything per-request lives on the stack of Advise
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
	"github.com/ternarybob/consilium/internal/services/judgment"
)

// ErrInsufficientData is returned when no analysis produced a usable
// result, so nothing can be synthesized into a recommendation
var ErrInsufficientData = errors.New("insufficient-data: no usable analysis results")

// Service implements interfaces.AdvisorService
type Service struct {
	config   *common.AdvisorConfig
	registry interfaces.AnalystRegistry
	judgment *judgment.Service
	events   interfaces.EventService
	storage  interfaces.AdvisoryStorage
	logger   arbor.ILogger
}

// NewService creates the advisor service. events and storage may be nil
// for embedded use; lifecycle events and persistence are skipped then.
func NewService(config *common.AdvisorConfig, registry interfaces.AnalystRegistry, judgmentService *judgment.Service, events interfaces.EventService, storage interfaces.AdvisoryStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:   config,
		registry: registry,
		judgment: judgmentService,
		events:   events,
		storage:  storage,
		logger:   logger,
	}
}

// Advise runs the full feedback loop for one request and returns the
// terminal recommendation
func (s *Service) Advise(ctx context.Context, request models.AdvisoryRequest) (*models.InvestmentRecommendation, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid advisory request: %w", err)
	}
	return s.advise(ctx, s.logger, request)
}

// advise is the loop body shared by Advise and RunAdvisory; the logger
// carries the advisory correlation ID when one exists
func (s *Service) advise(ctx context.Context, logger arbor.ILogger, request models.AdvisoryRequest) (*models.InvestmentRecommendation, error) {
	started := time.Now()
	policy := s.resolvePolicy(request)
	weights := s.resolveWeights(request)
	parallel := s.resolveParallel(request)

	invoker := NewInvoker(s.config, logger)
	dispatcher := NewDispatcher(invoker, s.registry, logger)
	controller := NewController(policy, logger)

	kinds := request.RequestedKinds()
	requests := s.initialRequests(request, kinds)
	lastRequests := make(map[models.AnalysisKind]models.AnalysisRequest, len(requests))
	for _, req := range requests {
		lastRequests[req.Kind] = req
	}

	mode := "sequential"
	if parallel {
		mode = "parallel"
	}
	logger.Info().
		Str("ticker", request.Ticker).
		Str("mode", mode).
		Int("kinds", len(kinds)).
		Float64("confidence_threshold", policy.ConfidenceThreshold).
		Int("max_iterations", policy.MaxIterations).
		Msg("Starting advisory")

	trail := make([]models.AnalysisResult, 0, len(requests)*(policy.MaxIterations+1))
	totalTokens := 0

	for pass := 1; ; pass++ {
		logger.Info().
			Str("ticker", request.Ticker).
			Str("state", string(StateDispatching)).
			Int("pass", pass).
			Int("requests", len(requests)).
			Msg("Dispatching analysis batch")

		batch := dispatcher.Run(ctx, requests, parallel, pass)
		trail = append(trail, batch...)
		for idx := range batch {
			totalTokens += batch[idx].TokensUsed
			s.publishAnalysis(ctx, &batch[idx])
		}

		if err := ctx.Err(); err != nil {
			logger.Warn().
				Str("ticker", request.Ticker).
				Int("pass", pass).
				Msg("Advisory cancelled")
			return nil, fmt.Errorf("advisory cancelled: %w", err)
		}

		latest := latestPerKind(kinds, trail)
		judged, err := s.judgment.Synthesize(latest, weights)
		if err != nil {
			if errors.Is(err, judgment.ErrNoUsableResults) {
				logger.Warn().
					Str("ticker", request.Ticker).
					Str("state", string(StateFailInsufficientData)).
					Int("pass", pass).
					Msg("No usable analysis results; advisory failed")
				return nil, fmt.Errorf("advisory for %s: %w", request.Ticker, ErrInsufficientData)
			}
			return nil, fmt.Errorf("judgment synthesis failed: %w", err)
		}

		ordered := make([]models.AnalysisRequest, 0, len(kinds))
		for _, kind := range kinds {
			ordered = append(ordered, lastRequests[kind])
		}
		decision := controller.Decide(judged, latest, ordered, pass)
		s.publishIteration(ctx, request.Ticker, pass, judged, decision)

		switch decision.State {
		case StateContinue:
			for _, req := range decision.Retry {
				lastRequests[req.Kind] = req
			}
			requests = decision.Retry

		default:
			recommendation := s.buildRecommendation(request, judged, latest, trail, decision, pass, mode, totalTokens, started)
			logger.Info().
				Str("ticker", request.Ticker).
				Str("state", string(decision.State)).
				Str("band", string(recommendation.Band)).
				Float64("composite_score", recommendation.CompositeScore).
				Float64("confidence", recommendation.Confidence).
				Int("iterations", pass).
				Bool("best_effort", recommendation.BestEffort).
				Int64("duration_ms", recommendation.Execution.DurationMs).
				Msg("Advisory completed")
			return recommendation, nil
		}
	}
}

// RunAdvisory validates, persists and runs an advisory, returning the
// stored record in its terminal state. Domain failures (insufficient data,
// cancellation) are recorded on the record, not returned as errors.
func (s *Service) RunAdvisory(ctx context.Context, request models.AdvisoryRequest) (*models.AdvisoryRecord, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid advisory request: %w", err)
	}

	record := models.NewAdvisoryRecord(common.NewAdvisoryID(), request)
	logger := s.logger.WithCorrelationId(record.ID)

	if err := s.saveRecord(ctx, logger, record); err != nil {
		return nil, err
	}
	record.MarkRunning()
	if err := s.saveRecord(ctx, logger, record); err != nil {
		return nil, err
	}

	s.publish(ctx, interfaces.EventAdvisoryStarted, map[string]interface{}{
		"advisory_id": record.ID,
		"ticker":      record.Ticker,
		"kinds":       kindNames(request.RequestedKinds()),
		"trigger":     string(record.Trigger),
	})

	recommendation, err := s.advise(ctx, logger, request)
	if err != nil {
		kind := classifyAdvisoryError(err)
		record.MarkFailed(kind, err.Error())
		if saveErr := s.saveRecord(ctx, logger, record); saveErr != nil {
			return nil, saveErr
		}
		s.publish(ctx, interfaces.EventAdvisoryFailed, map[string]interface{}{
			"advisory_id": record.ID,
			"ticker":      record.Ticker,
			"error_kind":  string(kind),
			"error":       err.Error(),
		})
		return record, nil
	}

	record.MarkCompleted(recommendation)
	if err := s.saveRecord(ctx, logger, record); err != nil {
		return nil, err
	}
	s.publish(ctx, interfaces.EventAdvisoryCompleted, map[string]interface{}{
		"advisory_id":     record.ID,
		"ticker":          record.Ticker,
		"band":            string(recommendation.Band),
		"composite_score": recommendation.CompositeScore,
		"confidence":      recommendation.Confidence,
		"best_effort":     recommendation.BestEffort,
		"iterations":      recommendation.Iterations,
	})
	return record, nil
}

// buildRecommendation assembles the terminal artifact from the last
// judgment and the full audit trail
func (s *Service) buildRecommendation(request models.AdvisoryRequest, judged *models.Judgment, latest []models.AnalysisResult, trail []models.AnalysisResult, decision Decision, passes int, mode string, totalTokens int, started time.Time) *models.InvestmentRecommendation {
	rationale := judged.Rationale
	bestEffort := decision.State == StateStopBestEffort
	if bestEffort {
		rationale += fmt.Sprintf(" Best-effort result (%s): %s.",
			models.ErrExceededIterations, strings.Join(decision.Reasons, "; "))
	}

	completed := time.Now()
	return &models.InvestmentRecommendation{
		ID:             common.NewRecommendationID(),
		Ticker:         request.Ticker,
		CompositeScore: judged.CompositeScore,
		Confidence:     judged.Confidence,
		Consistency:    judged.Consistency,
		Band:           judged.Band,
		Rationale:      rationale,
		BestEffort:     bestEffort,
		Iterations:     passes,
		Contributions:  judged.Contributions,
		ExcludedKinds:  judged.ExcludedKinds,
		Analyses:       trail,
		Insights:       judgment.BuildInsights(latest),
		Execution: models.ExecutionMeta{
			Mode:       mode,
			DurationMs: completed.Sub(started).Milliseconds(),
			TokensUsed: totalTokens,
			Analysts:   analystsConsulted(trail),
		},
		CreatedAt: completed,
	}
}

// initialRequests expands the advisory into one first-attempt analysis
// request per requested kind, in canonical kind order
func (s *Service) initialRequests(request models.AdvisoryRequest, kinds []models.AnalysisKind) []models.AnalysisRequest {
	requests := make([]models.AnalysisRequest, 0, len(kinds))
	for _, kind := range kinds {
		requests = append(requests, models.AnalysisRequest{
			Ticker:     request.Ticker,
			Kind:       kind,
			Attempt:    1,
			Parameters: cloneParameters(request.Parameters[kind]),
			Required:   request.IsRequired(kind),
		})
	}
	return requests
}

// resolvePolicy folds per-request overrides over the configured defaults
func (s *Service) resolvePolicy(request models.AdvisoryRequest) Policy {
	policy := Policy{
		ConfidenceThreshold: s.config.ConfidenceThreshold,
		MinKindConfidence:   s.config.MinKindConfidence,
		MaxIterations:       s.config.MaxIterations,
	}
	if request.ConfidenceThreshold != nil {
		policy.ConfidenceThreshold = *request.ConfidenceThreshold
	}
	if request.MinKindConfidence != nil {
		policy.MinKindConfidence = *request.MinKindConfidence
	}
	if request.MaxIterations != nil {
		policy.MaxIterations = *request.MaxIterations
	}
	return policy
}

// resolveWeights prefers request weights over configured defaults. The
// returned map is always a private copy; weights are read-only for the
// rest of the request.
func (s *Service) resolveWeights(request models.AdvisoryRequest) map[models.AnalysisKind]float64 {
	if len(request.Weights) > 0 {
		weights := make(map[models.AnalysisKind]float64, len(request.Weights))
		for kind, weight := range request.Weights {
			weights[kind] = weight
		}
		return weights
	}

	weights := make(map[models.AnalysisKind]float64, len(s.config.Weights))
	for name, weight := range s.config.Weights {
		if kind, err := models.ParseAnalysisKind(name); err == nil {
			weights[kind] = weight
		}
	}
	return weights
}

func (s *Service) resolveParallel(request models.AdvisoryRequest) bool {
	switch strings.ToLower(request.Execution) {
	case "sequential":
		return false
	case "parallel":
		return true
	}
	return s.config.ParallelExecution()
}

func (s *Service) saveRecord(ctx context.Context, logger arbor.ILogger, record *models.AdvisoryRecord) error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.SaveAdvisory(ctx, record); err != nil {
		logger.Error().
			Str("advisory_id", record.ID).
			Err(err).
			Msg("Failed to persist advisory record")
		return fmt.Errorf("failed to persist advisory record: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload})
}

func (s *Service) publishAnalysis(ctx context.Context, result *models.AnalysisResult) {
	s.publish(ctx, interfaces.EventAnalysisCompleted, map[string]interface{}{
		"ticker":      result.Ticker,
		"kind":        string(result.Kind),
		"analyst":     result.Analyst,
		"iteration":   result.Iteration,
		"status":      string(result.Status),
		"score":       result.Score,
		"confidence":  result.Confidence,
		"duration_ms": result.DurationMs,
	})
}

func (s *Service) publishIteration(ctx context.Context, ticker string, pass int, judged *models.Judgment, decision Decision) {
	s.publish(ctx, interfaces.EventIterationCompleted, map[string]interface{}{
		"ticker":          ticker,
		"iteration":       pass,
		"composite_score": judged.CompositeScore,
		"confidence":      judged.Confidence,
		"consistency":     judged.Consistency,
		"band":            string(judged.Band),
		"state":           string(decision.State),
		"reasons":         decision.Reasons,
	})
}

// latestPerKind returns the newest result per requested kind in kind
// order. Superseded attempts stay in the audit trail; only the latest view
// is judged.
func latestPerKind(kinds []models.AnalysisKind, trail []models.AnalysisResult) []models.AnalysisResult {
	byKind := make(map[models.AnalysisKind]models.AnalysisResult, len(kinds))
	for _, result := range trail {
		byKind[result.Kind] = result
	}

	latest := make([]models.AnalysisResult, 0, len(kinds))
	for _, kind := range kinds {
		if result, ok := byKind[kind]; ok {
			latest = append(latest, result)
		}
	}
	return latest
}

// analystsConsulted lists the distinct analyst implementations that
// produced results, in first-appearance order
func analystsConsulted(trail []models.AnalysisResult) []string {
	seen := make(map[string]bool, len(trail))
	names := make([]string, 0, len(trail))
	for _, result := range trail {
		if result.Analyst == "" || seen[result.Analyst] {
			continue
		}
		seen[result.Analyst] = true
		names = append(names, result.Analyst)
	}
	return names
}

// classifyAdvisoryError maps a loop error to the taxonomy kind recorded on
// the advisory
func classifyAdvisoryError(err error) models.ErrorKind {
	switch {
	case errors.Is(err, ErrInsufficientData):
		return models.ErrInsufficientData
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.ErrCancelled
	default:
		return models.ErrCapabilityFailure
	}
}

func kindNames(kinds []models.AnalysisKind) []string {
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return names
}

func cloneParameters(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(params))
	for k, v := range params {
		clone[k] = v
	}
	return clone
}
