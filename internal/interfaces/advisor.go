package interfaces

import (
	"context"

	"github.com/ternarybob/consilium/internal/models"
)

// AdvisorService orchestrates multi-analyst advisory runs
type AdvisorService interface {
	// Advise runs the full feedback loop for one request and returns the
	// terminal recommendation. The recommendation is immutable once
	// returned. Failures that prevent any synthesis (insufficient data,
	// cancellation) surface as errors.
	Advise(ctx context.Context, request models.AdvisoryRequest) (*models.InvestmentRecommendation, error)

	// RunAdvisory validates, persists and runs an advisory, returning the
	// stored record in its terminal state. Events are published at each
	// lifecycle transition.
	RunAdvisory(ctx context.Context, request models.AdvisoryRequest) (*models.AdvisoryRecord, error)
}
