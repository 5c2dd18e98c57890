package handlers

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
	"golang.org/x/time/rate"
)

// EventSubscriber bridges advisory lifecycle events to WebSocket broadcasts
// with config-driven filtering and throttling
type EventSubscriber struct {
	handler       *WebSocketHandler
	eventService  interfaces.EventService
	logger        arbor.ILogger
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
	config        *common.WebSocketConfig
}

// NewEventSubscriber creates and initializes an event subscriber.
// Automatically subscribes to all advisory lifecycle events.
func NewEventSubscriber(handler *WebSocketHandler, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *EventSubscriber {
	s := &EventSubscriber{
		handler:      handler,
		eventService: eventService,
		logger:       logger,
		config:       config,
	}

	// Empty whitelist means allow all events
	s.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			s.allowedEvents[eventType] = true
		}
	}

	// Throttlers for high-frequency events (one event per interval)
	s.throttlers = make(map[string]*rate.Limiter)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		for eventType, intervalStr := range config.ThrottleIntervals {
			if duration, err := time.ParseDuration(intervalStr); err == nil {
				s.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
				logger.Debug().
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Throttler initialized for event type")
			} else {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
			}
		}
	}

	if eventService == nil {
		logger.Warn().Msg("EventSubscriber created with nil eventService - subscriptions will be skipped")
		return s
	}

	s.SubscribeAll()

	return s
}

// SubscribeAll registers subscriptions for all advisory lifecycle events
func (s *EventSubscriber) SubscribeAll() {
	if s.eventService == nil {
		s.logger.Warn().Msg("Cannot subscribe to events - eventService is nil")
		return
	}

	s.eventService.Subscribe(interfaces.EventAdvisoryStarted, s.handleAdvisoryStarted)
	s.eventService.Subscribe(interfaces.EventAnalysisCompleted, s.handleAnalysisCompleted)
	s.eventService.Subscribe(interfaces.EventIterationCompleted, s.handleIterationCompleted)
	s.eventService.Subscribe(interfaces.EventAdvisoryCompleted, s.handleAdvisoryCompleted)
	s.eventService.Subscribe(interfaces.EventAdvisoryFailed, s.handleAdvisoryFailed)
	s.eventService.Subscribe(interfaces.EventWatchlistTriggered, s.handleWatchlistTriggered)
	s.eventService.Subscribe(interfaces.EventStatusChanged, s.handleStatusChanged)

	s.logger.Info().Msg("EventSubscriber registered for advisory lifecycle events (started, analysis, iteration, completed, failed, watchlist, status)")
}

// shouldBroadcastEvent checks whitelist membership and throttling for an event type
func (s *EventSubscriber) shouldBroadcastEvent(eventType string) bool {
	if len(s.allowedEvents) > 0 && !s.allowedEvents[eventType] {
		return false
	}

	if limiter, ok := s.throttlers[eventType]; ok {
		if !limiter.Allow() {
			s.logger.Debug().
				Str("event_type", eventType).
				Msg("Event throttled - rate limit exceeded")
			return false
		}
	}

	return true
}

func (s *EventSubscriber) handleAdvisoryStarted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventAdvisoryStarted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid advisory started event payload type")
		return nil
	}

	s.handler.BroadcastAdvisoryUpdate(AdvisoryUpdate{
		Status:     "started",
		AdvisoryID: getString(payload, "advisory_id"),
		Ticker:     getString(payload, "ticker"),
		Trigger:    getString(payload, "trigger"),
		Kinds:      getStringSlice(payload, "kinds"),
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *EventSubscriber) handleAdvisoryCompleted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventAdvisoryCompleted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid advisory completed event payload type")
		return nil
	}

	s.handler.BroadcastAdvisoryUpdate(AdvisoryUpdate{
		Status:         "completed",
		AdvisoryID:     getString(payload, "advisory_id"),
		Ticker:         getString(payload, "ticker"),
		Band:           getString(payload, "band"),
		CompositeScore: getFloat64(payload, "composite_score"),
		Confidence:     getFloat64(payload, "confidence"),
		BestEffort:     getBool(payload, "best_effort"),
		Iterations:     getInt(payload, "iterations"),
		Timestamp:      time.Now(),
	})
	return nil
}

func (s *EventSubscriber) handleAdvisoryFailed(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventAdvisoryFailed)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid advisory failed event payload type")
		return nil
	}

	s.handler.BroadcastAdvisoryUpdate(AdvisoryUpdate{
		Status:     "failed",
		AdvisoryID: getString(payload, "advisory_id"),
		Ticker:     getString(payload, "ticker"),
		ErrorKind:  getString(payload, "error_kind"),
		Error:      getString(payload, "error"),
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *EventSubscriber) handleAnalysisCompleted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventAnalysisCompleted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid analysis completed event payload type")
		return nil
	}

	s.handler.BroadcastAnalysisUpdate(AnalysisUpdate{
		Ticker:     getString(payload, "ticker"),
		Kind:       getString(payload, "kind"),
		Analyst:    getString(payload, "analyst"),
		Iteration:  getInt(payload, "iteration"),
		Status:     getString(payload, "status"),
		Score:      getFloat64(payload, "score"),
		Confidence: getFloat64(payload, "confidence"),
		DurationMs: getInt64(payload, "duration_ms"),
		Timestamp:  time.Now(),
	})
	return nil
}

func (s *EventSubscriber) handleIterationCompleted(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventIterationCompleted)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid iteration completed event payload type")
		return nil
	}

	s.handler.BroadcastIterationUpdate(IterationUpdate{
		Ticker:         getString(payload, "ticker"),
		Iteration:      getInt(payload, "iteration"),
		CompositeScore: getFloat64(payload, "composite_score"),
		Confidence:     getFloat64(payload, "confidence"),
		Consistency:    getFloat64(payload, "consistency"),
		Band:           getString(payload, "band"),
		State:          getString(payload, "state"),
		Reasons:        getStringSlice(payload, "reasons"),
		Timestamp:      time.Now(),
	})
	return nil
}

func (s *EventSubscriber) handleWatchlistTriggered(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventWatchlistTriggered)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid watchlist triggered event payload type")
		return nil
	}

	s.handler.BroadcastWatchlistRun(WatchlistRunUpdate{
		Tickers:   getStringSlice(payload, "tickers"),
		Count:     getInt(payload, "count"),
		Timestamp: time.Now(),
	})
	return nil
}

func (s *EventSubscriber) handleStatusChanged(ctx context.Context, event interfaces.Event) error {
	if !s.shouldBroadcastEvent(string(interfaces.EventStatusChanged)) {
		return nil
	}

	payload, ok := event.Payload.(map[string]interface{})
	if !ok {
		s.logger.Warn().Msg("Invalid status changed event payload type")
		return nil
	}

	update := AppStatusUpdate{
		State:     getString(payload, "state"),
		Metadata:  make(map[string]interface{}),
		Timestamp: time.Now(),
	}
	if metadata, ok := payload["metadata"].(map[string]interface{}); ok {
		update.Metadata = metadata
	}
	if ts, ok := payload["timestamp"].(time.Time); ok {
		update.Timestamp = ts
	}

	s.handler.BroadcastAppStatus(update)
	return nil
}

// Helper functions for safe type conversion from map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

func getInt64(m map[string]interface{}, key string) int64 {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

func getFloat64(m map[string]interface{}, key string) float64 {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0.0
}

func getBool(m map[string]interface{}, key string) bool {
	if val, ok := m[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

func getStringSlice(m map[string]interface{}, key string) []string {
	if val, ok := m[key]; ok {
		if arr, ok := val.([]string); ok {
			return arr
		}
		// JSON-decoded payloads carry arrays as []interface{}
		if arr, ok := val.([]interface{}); ok {
			result := make([]string, 0, len(arr))
			for _, item := range arr {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			return result
		}
	}
	return nil
}
