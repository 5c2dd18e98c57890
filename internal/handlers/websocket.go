package handlers

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler manages client connections and fans broadcast messages
// out to them. Event filtering and throttling live in EventSubscriber.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

// NewWebSocketHandler creates a WebSocket handler
func NewWebSocketHandler(logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		serverInstanceID: uuid.New().String(),
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")

	return h
}

// WSMessage is the envelope for all WebSocket messages
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is the periodic connection status message
type StatusUpdate struct {
	Service          string `json:"service"`
	Status           string `json:"status"`
	Database         string `json:"database"`
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
}

// LogEntry is a log line broadcast to WebSocket clients
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// AdvisoryUpdate reports an advisory lifecycle transition
type AdvisoryUpdate struct {
	Status         string    `json:"status"` // "started", "completed", "failed"
	AdvisoryID     string    `json:"advisory_id"`
	Ticker         string    `json:"ticker"`
	Trigger        string    `json:"trigger,omitempty"`
	Kinds          []string  `json:"kinds,omitempty"`
	Band           string    `json:"band,omitempty"`
	CompositeScore float64   `json:"composite_score,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	BestEffort     bool      `json:"best_effort,omitempty"`
	Iterations     int       `json:"iterations,omitempty"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AnalysisUpdate reports a single analyst invocation finishing
type AnalysisUpdate struct {
	Ticker     string    `json:"ticker"`
	Kind       string    `json:"kind"`
	Analyst    string    `json:"analyst"`
	Iteration  int       `json:"iteration"`
	Status     string    `json:"status"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// IterationUpdate reports a judgment pass and the controller's decision
type IterationUpdate struct {
	Ticker         string    `json:"ticker"`
	Iteration      int       `json:"iteration"`
	CompositeScore float64   `json:"composite_score"`
	Confidence     float64   `json:"confidence"`
	Consistency    float64   `json:"consistency"`
	Band           string    `json:"band"`
	State          string    `json:"state"`
	Reasons        []string  `json:"reasons,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AppStatusUpdate reports application state transitions
type AppStatusUpdate struct {
	State     string                 `json:"state"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// WatchlistRunUpdate reports a watchlist batch starting
type WatchlistRunUpdate struct {
	Tickers   []string  `json:"tickers"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	// Send initial status
	h.sendStatus(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// broadcast marshals a message and writes it to every connected client.
// Each connection has its own write mutex so concurrent broadcasts never
// interleave frames on a single connection.
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}

// BroadcastStatus sends status updates to all connected clients
func (h *WebSocketHandler) BroadcastStatus(status StatusUpdate) {
	h.broadcast(WSMessage{Type: "status", Payload: status})
}

// BroadcastLog sends a log entry to all connected clients
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.broadcast(WSMessage{Type: "log", Payload: entry})
}

// SendLog broadcasts a log line with the current timestamp
func (h *WebSocketHandler) SendLog(level, message string) {
	h.BroadcastLog(LogEntry{
		Timestamp: time.Now().Format("15:04:05"),
		Level:     normalizeLogLevel(level),
		Message:   message,
	})
}

// BroadcastAdvisoryUpdate sends an advisory lifecycle update to all clients
func (h *WebSocketHandler) BroadcastAdvisoryUpdate(update AdvisoryUpdate) {
	h.broadcast(WSMessage{Type: "advisory_update", Payload: update})
}

// BroadcastAnalysisUpdate sends an analyst invocation result to all clients
func (h *WebSocketHandler) BroadcastAnalysisUpdate(update AnalysisUpdate) {
	h.broadcast(WSMessage{Type: "analysis_update", Payload: update})
}

// BroadcastIterationUpdate sends a judgment pass summary to all clients
func (h *WebSocketHandler) BroadcastIterationUpdate(update IterationUpdate) {
	h.broadcast(WSMessage{Type: "iteration_update", Payload: update})
}

// BroadcastAppStatus sends application state updates to all clients
func (h *WebSocketHandler) BroadcastAppStatus(update AppStatusUpdate) {
	h.broadcast(WSMessage{Type: "app_status", Payload: update})
}

// BroadcastWatchlistRun announces a watchlist batch to all clients
func (h *WebSocketHandler) BroadcastWatchlistRun(update WatchlistRunUpdate) {
	h.broadcast(WSMessage{Type: "watchlist_run", Payload: update})
}

// sendStatus sends current status to a specific client
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	msg := WSMessage{
		Type:    "status",
		Payload: h.currentStatus(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal initial status")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send initial status")
		}
	}
}

func (h *WebSocketHandler) currentStatus() StatusUpdate {
	return StatusUpdate{
		Service:          "ONLINE",
		Status:           "ONLINE",
		Database:         "CONNECTED",
		ServerInstanceID: h.serverInstanceID,
	}
}

// StartStatusBroadcaster starts periodic status updates
func (h *WebSocketHandler) StartStatusBroadcaster() {
	ticker := time.NewTicker(5 * time.Second)

	go func() {
		for range ticker.C {
			h.mu.RLock()
			clientCount := len(h.clients)
			h.mu.RUnlock()

			if clientCount > 0 {
				h.BroadcastStatus(h.currentStatus())
			}
		}
	}()
}

func normalizeLogLevel(level string) string {
	switch level {
	case "ERR", "ERROR", "error":
		return "error"
	case "WRN", "WARN", "warn":
		return "warn"
	case "DBG", "DEBUG", "debug":
		return "debug"
	default:
		return "info"
	}
}

// GetRecentLogsHandler returns recent service logs as JSON
// GET /api/logs/recent
func (h *WebSocketHandler) GetRecentLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	logs := []LogEntry{}

	if memWriter != nil {
		entries, err := memWriter.GetEntriesWithLimit(100)
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to get log entries")
			http.Error(w, "Failed to retrieve logs", http.StatusInternalServerError)
			return
		}

		// Keys are timestamps; sorting them gives chronological order
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			logLine := entries[key]
			if strings.Contains(logLine, "WebSocket client connected") ||
				strings.Contains(logLine, "WebSocket client disconnected") ||
				strings.Contains(logLine, "HTTP request") ||
				strings.Contains(logLine, "HTTP response") ||
				strings.Contains(logLine, "Publishing event") {
				continue
			}

			parts := strings.SplitN(logLine, "|", 3)
			if len(parts) != 3 {
				continue
			}

			levelStr := strings.TrimSpace(parts[0])
			dateTime := strings.TrimSpace(parts[1])
			message := strings.TrimSpace(parts[2])

			// Timestamp field of "Oct  2 16:27:13" style lines is the last token
			timeParts := strings.Fields(dateTime)
			var timestamp string
			if len(timeParts) >= 3 {
				timestamp = timeParts[len(timeParts)-1]
			} else {
				timestamp = time.Now().Format("15:04:05")
			}

			logs = append(logs, LogEntry{
				Timestamp: timestamp,
				Level:     normalizeLogLevel(levelStr),
				Message:   message,
			})
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}
