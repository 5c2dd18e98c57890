package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (events + log streaming)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Advisory
	mux.HandleFunc("/api/advise", s.app.AdvisoryHandler.AdviseHandler)   // POST - run an advisory
	mux.HandleFunc("/api/advisories", s.handleAdvisoriesRoute)           // GET - list records
	mux.HandleFunc("/api/advisories/", s.handleAdvisoryRoutes)           // GET/DELETE /{id}, /latest, /stats
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)  // GET - application status

	// API routes - Watchlist
	mux.HandleFunc("/api/watchlist/run", s.app.WatchlistHandler.TriggerWatchlistHandler)    // POST - run sweep now
	mux.HandleFunc("/api/watchlist/status", s.app.WatchlistHandler.GetWatchlistStatusHandler) // GET

	// API routes - Logs
	mux.HandleFunc("/api/logs/recent", s.app.WSHandler.GetRecentLogsHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleAdvisoriesRoute routes /api/advisories (list only)
func (s *Server) handleAdvisoriesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.AdvisoryHandler.ListAdvisoriesHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAdvisoryRoutes routes /api/advisories/{id} and its fixed subpaths
func (s *Server) handleAdvisoryRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// Fixed subpaths take precedence over {id} matching
	if path == "/api/advisories/latest" {
		s.app.AdvisoryHandler.GetLatestAdvisoryHandler(w, r)
		return
	}
	if path == "/api/advisories/stats" {
		s.app.AdvisoryHandler.GetAdvisoryStatsHandler(w, r)
		return
	}

	if !strings.HasPrefix(path, "/api/advisories/") || len(path) <= len("/api/advisories/") {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.AdvisoryHandler.GetAdvisoryHandler(w, r)
	case http.MethodDelete:
		s.app.AdvisoryHandler.DeleteAdvisoryHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
