// -----------------------------------------------------------------------
// Dispatcher - fans one batch of analysis requests out to registered
// analysts. The returned batch always carries one result per request, in
// request order; a per-item failure never fails or cancels the batch
// -----------------------------------------------------------------------

package advisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
)

// Dispatcher resolves analysts and executes one dispatch pass
type Dispatcher struct {
	invoker  *Invoker
	registry interfaces.AnalystRegistry
	logger   arbor.ILogger
}

// NewDispatcher creates a dispatcher over the given registry
func NewDispatcher(invoker *Invoker, registry interfaces.AnalystRegistry, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		invoker:  invoker,
		registry: registry,
		logger:   logger,
	}
}

// Run executes every request and returns results in request order.
// Parallel mode runs all invocations concurrently and waits for every one
// to reach a terminal state; results land in an index-addressed slice so
// completion order cannot reshuffle the batch. Sequential mode runs the
// full batch one at a time; requests reached after cancellation are failed
// as cancelled without being invoked.
func (d *Dispatcher) Run(ctx context.Context, requests []models.AnalysisRequest, parallel bool, pass int) []models.AnalysisResult {
	results := make([]models.AnalysisResult, len(requests))

	if parallel {
		var wg sync.WaitGroup
		for idx, req := range requests {
			wg.Add(1)
			go func(idx int, req models.AnalysisRequest) {
				defer wg.Done()
				results[idx] = *d.dispatchOne(ctx, req, pass)
			}(idx, req)
		}
		wg.Wait()
		return results
	}

	for idx, req := range requests {
		if ctx.Err() != nil {
			results[idx] = *d.skipped(req, pass)
			continue
		}
		results[idx] = *d.dispatchOne(ctx, req, pass)
	}
	return results
}

// dispatchOne resolves the analyst for a request and invokes it. A kind
// with no registered analyst fails the item, not the batch.
func (d *Dispatcher) dispatchOne(ctx context.Context, req models.AnalysisRequest, pass int) *models.AnalysisResult {
	analyst, ok := d.registry.Get(req.Kind)
	if !ok {
		d.logger.Error().
			Str("ticker", req.Ticker).
			Str("kind", string(req.Kind)).
			Msg("No analyst registered for kind")

		result := models.NewFailedAnalysis(req, "", pass, models.ErrCapabilityFailure,
			fmt.Sprintf("no analyst registered for kind %q", req.Kind))
		result.ID = common.NewAnalysisID()
		now := time.Now()
		result.StartedAt = now
		result.CompletedAt = now
		return result
	}

	return d.invoker.Invoke(ctx, analyst, req, pass)
}

// skipped records a request that was never invoked because the advisory
// was cancelled first
func (d *Dispatcher) skipped(req models.AnalysisRequest, pass int) *models.AnalysisResult {
	result := models.NewFailedAnalysis(req, "", pass, models.ErrCancelled, "cancelled")
	result.ID = common.NewAnalysisID()
	now := time.Now()
	result.StartedAt = now
	result.CompletedAt = now
	return result
}
