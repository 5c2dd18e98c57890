package status

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/interfaces"
)

// AppState represents the application state
type AppState string

const (
	StateIdle     AppState = "idle"
	StateAdvising AppState = "advising"
	StateOffline  AppState = "offline"
)

// Service manages application status
type Service struct {
	state        AppState
	mu           sync.RWMutex
	eventService interfaces.EventService
	logger       arbor.ILogger
	metadata     map[string]interface{}
}

// NewService creates a new StatusService
func NewService(eventService interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		state:        StateIdle,
		eventService: eventService,
		logger:       logger,
		metadata:     make(map[string]interface{}),
	}
}

// GetState returns the current application state (thread-safe)
func (s *Service) GetState() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState updates the application state and broadcasts the change
func (s *Service) SetState(state AppState, metadata map[string]interface{}) {
	s.mu.Lock()
	oldState := s.state
	s.state = state
	if metadata != nil {
		s.metadata = metadata
	} else {
		s.metadata = make(map[string]interface{})
	}
	s.mu.Unlock()

	if oldState != state {
		s.logger.Debug().
			Str("old_state", string(oldState)).
			Str("new_state", string(state)).
			Msg("Application state changed")
	}

	payload := map[string]interface{}{
		"state":     string(state),
		"metadata":  metadata,
		"timestamp": time.Now(),
	}
	s.eventService.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventStatusChanged,
		Payload: payload,
	})
}

// GetStatus returns the full status including state, metadata, and timestamp
func (s *Service) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Copy metadata to avoid concurrent modification
	metadataCopy := make(map[string]interface{})
	for k, v := range s.metadata {
		metadataCopy[k] = v
	}

	return map[string]interface{}{
		"state":     string(s.state),
		"metadata":  metadataCopy,
		"timestamp": time.Now(),
	}
}

// SubscribeToAdvisoryEvents tracks advisory lifecycle events so the state
// reflects whether an advisory is in flight
func (s *Service) SubscribeToAdvisoryEvents() {
	s.eventService.Subscribe(interfaces.EventAdvisoryStarted, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			return nil
		}

		metadata := map[string]interface{}{}
		if advisoryID, ok := payload["advisory_id"].(string); ok {
			metadata["active_advisory_id"] = advisoryID
		}
		if ticker, ok := payload["ticker"].(string); ok {
			metadata["ticker"] = ticker
		}
		s.SetState(StateAdvising, metadata)
		return nil
	})

	toIdle := func(ctx context.Context, event interfaces.Event) error {
		s.SetState(StateIdle, nil)
		return nil
	}
	s.eventService.Subscribe(interfaces.EventAdvisoryCompleted, toIdle)
	s.eventService.Subscribe(interfaces.EventAdvisoryFailed, toIdle)

	s.logger.Info().Msg("StatusService subscribed to advisory events")
}
