package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
)

// Service implements SchedulerService: it runs the configured watchlist
// through the advisor on a cron schedule
type Service struct {
	config  *common.Config
	advisor interfaces.AdvisorService
	events  interfaces.EventService
	cron    *cron.Cron
	entryID cron.EntryID
	logger  arbor.ILogger

	mu          sync.Mutex
	running     bool
	isExecuting bool // A batch is in flight; cron ticks that overlap are skipped
	lastRun     *time.Time
	lastError   string
	wg          sync.WaitGroup
}

// NewService creates a new watchlist scheduler service
func NewService(config *common.Config, advisor interfaces.AdvisorService, events interfaces.EventService, logger arbor.ILogger) interfaces.SchedulerService {
	return &Service{
		config:  config,
		advisor: advisor,
		events:  events,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start begins cron scheduling; no-op when the watchlist is disabled
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("watchlist scheduler already running")
	}

	if !s.config.Watchlist.Enabled {
		s.logger.Info().Msg("Watchlist scheduler disabled")
		return nil
	}

	if len(s.config.Watchlist.Tickers) == 0 {
		s.logger.Warn().Msg("Watchlist enabled but has no tickers; scheduler not started")
		return nil
	}

	schedule := s.config.Watchlist.Schedule
	entryID, err := s.cron.AddFunc(schedule, func() {
		s.runBatch(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid watchlist schedule %q: %w", schedule, err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Strs("tickers", s.config.Watchlist.Tickers).
		Msg("Watchlist scheduler started")

	return nil
}

// Stop halts scheduling and waits for an in-flight batch to finish
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	// Wait for cron-launched batches, then for manually triggered ones
	<-s.cron.Stop().Done()
	s.wg.Wait()

	s.logger.Info().Msg("Watchlist scheduler stopped")
	return nil
}

// TriggerNow runs the watchlist batch immediately
func (s *Service) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	if s.isExecuting {
		s.mu.Unlock()
		return fmt.Errorf("watchlist batch already running")
	}
	s.mu.Unlock()

	if len(s.config.Watchlist.Tickers) == 0 {
		return fmt.Errorf("watchlist has no tickers configured")
	}

	s.logger.Info().Msg("Manual watchlist trigger requested")
	s.runBatch(ctx)
	return nil
}

// Status returns the current scheduler state
func (s *Service) Status() *interfaces.WatchlistStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &interfaces.WatchlistStatus{
		Enabled:   s.config.Watchlist.Enabled,
		Schedule:  s.config.Watchlist.Schedule,
		Tickers:   s.config.Watchlist.Tickers,
		LastRun:   s.lastRun,
		IsRunning: s.isExecuting,
		LastError: s.lastError,
	}

	if s.running {
		entry := s.cron.Entry(s.entryID)
		if !entry.Next.IsZero() {
			next := entry.Next
			status.NextRun = &next
		}
	}

	return status
}

// runBatch runs one advisory per watchlist ticker. Ticker failures are
// isolated: one failed advisory never stops the rest of the batch.
func (s *Service) runBatch(ctx context.Context) {
	s.mu.Lock()
	if s.isExecuting {
		s.mu.Unlock()
		s.logger.Warn().Msg("Watchlist batch already in flight, skipping this cycle")
		return
	}
	s.isExecuting = true
	s.mu.Unlock()
	s.wg.Add(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", common.GetStackTrace()).
				Msg("Panic recovered in watchlist batch")
			s.setResult(fmt.Sprintf("panic: %v", r))
		}
		s.mu.Lock()
		s.isExecuting = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	tickers := s.config.Watchlist.Tickers
	kinds := s.watchlistKinds()
	started := time.Now()

	s.logger.Info().
		Int("ticker_count", len(tickers)).
		Msg("Watchlist batch started")

	if s.events != nil {
		_ = s.events.Publish(ctx, interfaces.Event{
			Type: interfaces.EventWatchlistTriggered,
			Payload: map[string]interface{}{
				"tickers": tickers,
				"count":   len(tickers),
			},
		})
	}

	var failures int
	var lastErr string
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Watchlist batch cancelled")
			s.setResult(fmt.Sprintf("cancelled: %v", err))
			return
		}

		request := models.AdvisoryRequest{
			Ticker:  ticker,
			Kinds:   kinds,
			Trigger: models.TriggerWatchlist,
		}

		record, err := s.advisor.RunAdvisory(ctx, request)
		if err != nil {
			failures++
			lastErr = fmt.Sprintf("%s: %v", ticker, err)
			s.logger.Error().Err(err).Str("ticker", ticker).Msg("Watchlist advisory failed")
			continue
		}
		if record.Status == models.AdvisoryStatusFailed {
			failures++
			lastErr = fmt.Sprintf("%s: %s", ticker, record.Error)
		}
	}

	s.setResult(lastErr)

	s.logger.Info().
		Int("ticker_count", len(tickers)).
		Int("failures", failures).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("Watchlist batch completed")
}

// watchlistKinds parses configured kinds, skipping unknown entries
func (s *Service) watchlistKinds() []models.AnalysisKind {
	var kinds []models.AnalysisKind
	for _, raw := range s.config.Watchlist.Kinds {
		kind, err := models.ParseAnalysisKind(raw)
		if err != nil {
			s.logger.Warn().Str("kind", raw).Msg("Ignoring unknown watchlist analysis kind")
			continue
		}
		kinds = append(kinds, kind)
	}
	return kinds
}

func (s *Service) setResult(lastErr string) {
	now := time.Now()
	s.mu.Lock()
	s.lastRun = &now
	s.lastError = lastErr
	s.mu.Unlock()
}
