package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/services/status"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	statusService    *status.Service
	analystRegistry  interfaces.AnalystRegistry
	advisoryStorage  interfaces.AdvisoryStorage
	schedulerService interfaces.SchedulerService
	logger           arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(statusService *status.Service, analystRegistry interfaces.AnalystRegistry, advisoryStorage interfaces.AdvisoryStorage, schedulerService interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		statusService:    statusService,
		analystRegistry:  analystRegistry,
		advisoryStorage:  advisoryStorage,
		schedulerService: schedulerService,
		logger:           logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	appStatus := h.statusService.GetStatus()
	appStatus["version"] = common.GetVersion()
	appStatus["background_tasks"] = common.GetGoroutineCount()

	// Registered analysts by kind. Liveness probes run at startup, not per
	// status poll; a poll must not hit provider APIs.
	analysts := make(map[string]string)
	for _, kind := range h.analystRegistry.Kinds() {
		if analyst, ok := h.analystRegistry.Get(kind); ok {
			analysts[string(kind)] = analyst.Name()
		}
	}
	appStatus["analysts"] = analysts

	if totalCount, err := h.advisoryStorage.CountAdvisories(ctx); err == nil {
		appStatus["total_advisories"] = totalCount
	} else {
		h.logger.Warn().Err(err).Msg("Failed to count advisories for status")
	}

	if h.schedulerService != nil {
		appStatus["watchlist"] = h.schedulerService.Status()
	}

	WriteJSON(w, http.StatusOK, appStatus)
}
