package interfaces

import (
	"context"

	"github.com/ternarybob/consilium/internal/models"
)

// Analyst is a specialist analysis capability for one analysis kind.
// Implementations are stateless across calls: each Analyze invocation is
// independent, takes its full input from the request, and returns the raw
// kind-specific output map. Schema validation, scoring and retry policy
// live in the invoker, not in the analyst.
type Analyst interface {
	// Kind returns the analysis kind this analyst serves
	Kind() models.AnalysisKind

	// Name identifies the implementation (e.g., "claude-fundamental")
	Name() string

	// Analyze runs one analysis. The returned map is the analyst's raw
	// output; it must honor ctx cancellation and deadlines.
	Analyze(ctx context.Context, request models.AnalysisRequest) (map[string]interface{}, error)

	// HealthCheck verifies the analyst can serve requests
	HealthCheck(ctx context.Context) error
}

// AnalystRegistry resolves analysts by kind
type AnalystRegistry interface {
	// Get returns the analyst registered for a kind
	Get(kind models.AnalysisKind) (Analyst, bool)

	// Kinds lists kinds with a registered analyst, in canonical order
	Kinds() []models.AnalysisKind
}
