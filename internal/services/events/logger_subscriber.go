package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Extract common fields from payload if available
		var advisoryID, ticker, kind, band string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["advisory_id"].(string); ok {
				advisoryID = id
			}
			if t, ok := payload["ticker"].(string); ok {
				ticker = t
			}
			if k, ok := payload["kind"].(string); ok {
				kind = k
			}
			if b, ok := payload["band"].(string); ok {
				band = b
			}
		}

		// Log event with structured fields
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if advisoryID != "" {
			logEvent = logEvent.Str("advisory_id", advisoryID)
		}
		if ticker != "" {
			logEvent = logEvent.Str("ticker", ticker)
		}
		if kind != "" {
			logEvent = logEvent.Str("kind", kind)
		}
		if band != "" {
			logEvent = logEvent.Str("band", band)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventAdvisoryStarted,
		interfaces.EventAnalysisCompleted,
		interfaces.EventIterationCompleted,
		interfaces.EventAdvisoryCompleted,
		interfaces.EventAdvisoryFailed,
		interfaces.EventWatchlistTriggered,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
