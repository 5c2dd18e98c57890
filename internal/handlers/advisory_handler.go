package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
)

// AdvisoryHandler handles advisory-related API requests
type AdvisoryHandler struct {
	advisorService  interfaces.AdvisorService
	advisoryStorage interfaces.AdvisoryStorage
	logger          arbor.ILogger
}

// NewAdvisoryHandler creates a new advisory handler
func NewAdvisoryHandler(advisorService interfaces.AdvisorService, advisoryStorage interfaces.AdvisoryStorage, logger arbor.ILogger) *AdvisoryHandler {
	return &AdvisoryHandler{
		advisorService:  advisorService,
		advisoryStorage: advisoryStorage,
		logger:          logger,
	}
}

// AdviseHandler runs an advisory for a ticker and returns the terminal record
// POST /api/advise
func (h *AdvisoryHandler) AdviseHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var request models.AdvisoryRequest
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return
	}
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse advisory request")
		WriteError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	if err := request.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.advisorService.RunAdvisory(r.Context(), request)
	if err != nil {
		h.logger.Error().Err(err).Str("ticker", request.Ticker).Msg("Failed to run advisory")
		WriteError(w, http.StatusInternalServerError, "Failed to run advisory")
		return
	}

	// Domain failures (insufficient data, exhausted analysts) land on the
	// record, not the error. 422 tells the caller the request was sound but
	// no recommendation could be produced.
	if record.Status == models.AdvisoryStatusFailed {
		WriteJSON(w, http.StatusUnprocessableEntity, record)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// ListAdvisoriesHandler returns a paginated list of advisory records
// GET /api/advisories?limit=50&offset=0&status=completed&ticker=ASX:BHP
func (h *AdvisoryHandler) ListAdvisoriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	limit, offset := GetListParams(r, 50)
	ticker := r.URL.Query().Get("ticker")
	status := r.URL.Query().Get("status")

	opts := interfaces.AdvisoryListOptions{
		Ticker: ticker,
		Status: models.AdvisoryStatus(status),
		Limit:  limit,
		Offset: offset,
	}

	records, err := h.advisoryStorage.ListAdvisories(ctx, opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list advisories")
		http.Error(w, "Failed to list advisories", http.StatusInternalServerError)
		return
	}

	totalCount, err := h.advisoryStorage.CountAdvisories(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count advisories")
		totalCount = len(records)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"advisories":  records,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetAdvisoryHandler returns a single advisory record by ID
// GET /api/advisories/{id}
func (h *AdvisoryHandler) GetAdvisoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	advisoryID := advisoryIDFromPath(r.URL.Path)
	if advisoryID == "" {
		http.Error(w, "Advisory ID is required", http.StatusBadRequest)
		return
	}

	record, err := h.advisoryStorage.GetAdvisory(ctx, advisoryID)
	if err != nil {
		h.logger.Error().Err(err).Str("advisory_id", advisoryID).Msg("Failed to get advisory")
		http.Error(w, "Failed to get advisory", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Advisory not found", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// GetLatestAdvisoryHandler returns the most recent advisory for a ticker
// GET /api/advisories/latest?ticker=ASX:BHP
func (h *AdvisoryHandler) GetLatestAdvisoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "Ticker is required", http.StatusBadRequest)
		return
	}

	record, err := h.advisoryStorage.GetLatestForTicker(ctx, ticker)
	if err != nil {
		h.logger.Error().Err(err).Str("ticker", ticker).Msg("Failed to get latest advisory")
		http.Error(w, "Failed to get latest advisory", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "No advisories for ticker", http.StatusNotFound)
		return
	}

	WriteJSON(w, http.StatusOK, record)
}

// DeleteAdvisoryHandler deletes an advisory record
// DELETE /api/advisories/{id}
func (h *AdvisoryHandler) DeleteAdvisoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	advisoryID := advisoryIDFromPath(r.URL.Path)
	if advisoryID == "" {
		http.Error(w, "Advisory ID is required", http.StatusBadRequest)
		return
	}

	record, err := h.advisoryStorage.GetAdvisory(ctx, advisoryID)
	if err == nil && record != nil && record.Status == models.AdvisoryStatusRunning {
		http.Error(w, "Cannot delete a running advisory", http.StatusBadRequest)
		return
	}

	if err := h.advisoryStorage.DeleteAdvisory(ctx, advisoryID); err != nil {
		h.logger.Error().Err(err).Str("advisory_id", advisoryID).Msg("Failed to delete advisory")
		http.Error(w, "Failed to delete advisory", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("advisory_id", advisoryID).Msg("Advisory deleted")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"advisory_id": advisoryID,
		"message":     "Advisory deleted successfully",
	})
}

// GetAdvisoryStatsHandler returns statistics about advisory records
// GET /api/advisories/stats
func (h *AdvisoryHandler) GetAdvisoryStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	ctx := r.Context()

	totalCount, err := h.advisoryStorage.CountAdvisories(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count advisories")
		totalCount = 0
	}

	pendingCount, _ := h.advisoryStorage.CountAdvisoriesByStatus(ctx, models.AdvisoryStatusPending)
	runningCount, _ := h.advisoryStorage.CountAdvisoriesByStatus(ctx, models.AdvisoryStatusRunning)
	completedCount, _ := h.advisoryStorage.CountAdvisoriesByStatus(ctx, models.AdvisoryStatusCompleted)
	failedCount, _ := h.advisoryStorage.CountAdvisoriesByStatus(ctx, models.AdvisoryStatusFailed)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"total_advisories":     totalCount,
		"pending_advisories":   pendingCount,
		"running_advisories":   runningCount,
		"completed_advisories": completedCount,
		"failed_advisories":    failedCount,
	})
}

// advisoryIDFromPath extracts the record ID from /api/advisories/{id}
func advisoryIDFromPath(path string) string {
	pathParts := strings.Split(strings.Trim(path, "/"), "/")
	if len(pathParts) < 3 {
		return ""
	}
	return pathParts[2]
}
