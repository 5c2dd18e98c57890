package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
)

// WatchlistHandler handles watchlist scheduler API requests
type WatchlistHandler struct {
	schedulerService interfaces.SchedulerService
	logger           arbor.ILogger
}

// NewWatchlistHandler creates a new watchlist handler
func NewWatchlistHandler(schedulerService interfaces.SchedulerService, logger arbor.ILogger) *WatchlistHandler {
	return &WatchlistHandler{
		schedulerService: schedulerService,
		logger:           logger,
	}
}

// TriggerWatchlistHandler starts a watchlist batch run in the background
// POST /api/watchlist/run
func (h *WatchlistHandler) TriggerWatchlistHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.schedulerService.Status().IsRunning {
		WriteError(w, http.StatusConflict, "Watchlist batch already running")
		return
	}

	// Detached context: the batch outlives the HTTP request. TriggerNow
	// rejects overlap itself, so a race with the cron schedule only logs.
	common.SafeGo(h.logger, "watchlist-trigger", func() {
		if err := h.schedulerService.TriggerNow(context.Background()); err != nil {
			h.logger.Error().Err(err).Msg("Watchlist batch trigger failed")
		}
	})

	h.logger.Info().Msg("Watchlist batch triggered via API")
	WriteStarted(w, "Watchlist batch started")
}

// GetWatchlistStatusHandler returns the watchlist scheduler status
// GET /api/watchlist/status
func (h *WatchlistHandler) GetWatchlistStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, h.schedulerService.Status())
}
