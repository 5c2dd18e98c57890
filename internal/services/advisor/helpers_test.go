package advisor

import (
	"context"
	"sync"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
)

// stubAnalyst is a scriptable analyst for exercising the dispatch path
type stubAnalyst struct {
	kind    models.AnalysisKind
	name    string
	analyze func(ctx context.Context, req models.AnalysisRequest) (map[string]interface{}, error)
}

func (a *stubAnalyst) Kind() models.AnalysisKind { return a.kind }

func (a *stubAnalyst) Name() string {
	if a.name != "" {
		return a.name
	}
	return "stub-" + string(a.kind)
}

func (a *stubAnalyst) Analyze(ctx context.Context, req models.AnalysisRequest) (map[string]interface{}, error) {
	return a.analyze(ctx, req)
}

func (a *stubAnalyst) HealthCheck(ctx context.Context) error { return nil }

// stubRegistry resolves stub analysts by kind
type stubRegistry struct {
	analysts map[models.AnalysisKind]interfaces.Analyst
}

func newStubRegistry(analysts ...*stubAnalyst) *stubRegistry {
	registry := &stubRegistry{analysts: make(map[models.AnalysisKind]interfaces.Analyst)}
	for _, analyst := range analysts {
		registry.analysts[analyst.kind] = analyst
	}
	return registry
}

func (r *stubRegistry) Get(kind models.AnalysisKind) (interfaces.Analyst, bool) {
	analyst, ok := r.analysts[kind]
	return analyst, ok
}

func (r *stubRegistry) Kinds() []models.AnalysisKind {
	kinds := make([]models.AnalysisKind, 0, len(r.analysts))
	for _, kind := range models.AllAnalysisKinds() {
		if _, ok := r.analysts[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// stubStorage is an in-memory AdvisoryStorage recording the status of every
// save so tests can assert the record lifecycle
type stubStorage struct {
	mu       sync.Mutex
	records  map[string]*models.AdvisoryRecord
	statuses []models.AdvisoryStatus
}

func newStubStorage() *stubStorage {
	return &stubStorage{records: make(map[string]*models.AdvisoryRecord)}
}

func (s *stubStorage) SaveAdvisory(_ context.Context, record *models.AdvisoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := *record
	s.records[record.ID] = &saved
	s.statuses = append(s.statuses, record.Status)
	return nil
}

func (s *stubStorage) GetAdvisory(_ context.Context, id string) (*models.AdvisoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func (s *stubStorage) DeleteAdvisory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *stubStorage) ListAdvisories(_ context.Context, _ interfaces.AdvisoryListOptions) ([]*models.AdvisoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*models.AdvisoryRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

func (s *stubStorage) GetLatestForTicker(_ context.Context, _ string) (*models.AdvisoryRecord, error) {
	return nil, nil
}

func (s *stubStorage) CountAdvisories(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *stubStorage) CountAdvisoriesByStatus(_ context.Context, status models.AdvisoryStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.records {
		if record.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *stubStorage) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.AdvisoryRecord)
	return nil
}

// testAdvisorConfig returns loop defaults tuned for fast tests: tiny retry
// backoff, per-kind minimum disabled unless a test opts in
func testAdvisorConfig() *common.AdvisorConfig {
	return &common.AdvisorConfig{
		Weights: map[string]float64{
			"fundamental": 0.50,
			"technical":   0.30,
			"valuation":   0.20,
		},
		ConfidenceThreshold: 0.5,
		MinKindConfidence:   0.0,
		MaxIterations:       2,
		Execution:           "parallel",
		AnalystTimeout:      "2s",
		MaxRetries:          2,
		RetryBackoff:        "1ms",
	}
}

// Schema-complete payload builders with controlled score and confidence

func fundamentalPayload(score, confidence float64) map[string]interface{} {
	return map[string]interface{}{
		"health_score": score,
		"key_metrics":  map[string]interface{}{"net_margin": 0.14},
		"strengths":    []string{"Margins expanding"},
		"concerns":     []string{"Debt rising"},
		"confidence":   confidence,
	}
}

func technicalPayload(score, confidence float64) map[string]interface{} {
	return map[string]interface{}{
		"technical_score": score,
		"signals":         []string{"golden cross"},
		"indicators":      map[string]interface{}{"rsi_14": 52.0},
		"confidence":      confidence,
	}
}

func valuationPayload(score, confidence float64) map[string]interface{} {
	return map[string]interface{}{
		"valuation": map[string]interface{}{
			"dcf_fair_value":   52.40,
			"current_price":    45.10,
			"upside_potential": 0.162,
			"score":            score,
		},
		"dcf_model":   map[string]interface{}{"terminal_value": 18400.0},
		"assumptions": map[string]interface{}{"discount_rate": 0.09},
		"confidence":  confidence,
	}
}

// returnsPayload scripts an analyst that always succeeds with the payload
func returnsPayload(payload map[string]interface{}) func(context.Context, models.AnalysisRequest) (map[string]interface{}, error) {
	return func(_ context.Context, _ models.AnalysisRequest) (map[string]interface{}, error) {
		result := make(map[string]interface{}, len(payload))
		for k, v := range payload {
			result[k] = v
		}
		return result, nil
	}
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
