package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
)

// TestNewLoggerSubscriber verifies that the logger subscriber logs events
func TestNewLoggerSubscriber(t *testing.T) {
	logger := common.GetLogger()

	subscriber := NewLoggerSubscriber(logger)

	// Event carrying the usual advisory payload fields
	ctx := context.Background()
	event := interfaces.Event{
		Type: interfaces.EventAdvisoryCompleted,
		Payload: map[string]interface{}{
			"advisory_id": "adv_test-123",
			"ticker":      "ASX:BHP",
			"band":        "BUY",
		},
	}

	if err := subscriber(ctx, event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	// Event without a payload
	event2 := interfaces.Event{
		Type:    interfaces.EventWatchlistTriggered,
		Payload: nil,
	}

	if err := subscriber(ctx, event2); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
}

// TestSubscribeLoggerToAllEvents verifies logger is subscribed to all event types
func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := common.GetLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("Failed to subscribe logger: %v", err)
	}

	ctx := context.Background()
	eventTypes := []interfaces.EventType{
		interfaces.EventAdvisoryStarted,
		interfaces.EventAnalysisCompleted,
		interfaces.EventIterationCompleted,
		interfaces.EventAdvisoryCompleted,
		interfaces.EventAdvisoryFailed,
		interfaces.EventWatchlistTriggered,
	}

	for _, eventType := range eventTypes {
		event := interfaces.Event{
			Type:    eventType,
			Payload: map[string]interface{}{"ticker": "ASX:BHP"},
		}

		if err := eventService.PublishSync(ctx, event); err != nil {
			t.Errorf("Expected no error publishing %s event, got: %v", eventType, err)
		}
	}
}

// TestLoggerSubscriberDoesNotInterfere verifies logger subscriber doesn't interfere with other handlers
func TestLoggerSubscriberDoesNotInterfere(t *testing.T) {
	logger := common.GetLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("Failed to subscribe logger: %v", err)
	}

	callCount := 0
	customHandler := func(ctx context.Context, event interfaces.Event) error {
		callCount++
		return nil
	}

	if err := eventService.Subscribe(interfaces.EventAdvisoryStarted, customHandler); err != nil {
		t.Fatalf("Failed to subscribe custom handler: %v", err)
	}

	ctx := context.Background()
	event := interfaces.Event{
		Type: interfaces.EventAdvisoryStarted,
		Payload: map[string]interface{}{
			"advisory_id": "adv_test-456",
		},
	}

	if err := eventService.PublishSync(ctx, event); err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}

	if callCount != 1 {
		t.Errorf("Expected custom handler to be called once, got: %d", callCount)
	}
}

// TestPublishSyncReportsHandlerErrors verifies failing handlers surface through PublishSync
func TestPublishSyncReportsHandlerErrors(t *testing.T) {
	logger := common.GetLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	failing := func(ctx context.Context, event interfaces.Event) error {
		return errors.New("subscriber broke")
	}
	if err := eventService.Subscribe(interfaces.EventAdvisoryFailed, failing); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventAdvisoryFailed,
	})
	if err == nil {
		t.Error("Expected handler error to propagate through PublishSync")
	}
}

// TestPublishFansOutToAllSubscribers verifies every subscriber sees the event
func TestPublishFansOutToAllSubscribers(t *testing.T) {
	logger := common.GetLogger()

	eventService := NewService(logger)
	defer eventService.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0
	for i := 0; i < 3; i++ {
		wg.Add(1)
		handler := func(ctx context.Context, event interfaces.Event) error {
			mu.Lock()
			seen++
			mu.Unlock()
			wg.Done()
			return nil
		}
		if err := eventService.Subscribe(interfaces.EventAnalysisCompleted, handler); err != nil {
			t.Fatalf("Failed to subscribe handler %d: %v", i, err)
		}
	}

	err := eventService.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventAnalysisCompleted,
		Payload: map[string]interface{}{"kind": "technical"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	if seen != 3 {
		t.Errorf("Expected 3 handler invocations, got: %d", seen)
	}
}

// TestSubscribeRejectsNilHandler verifies nil handlers are refused
func TestSubscribeRejectsNilHandler(t *testing.T) {
	eventService := NewService(common.GetLogger())
	defer eventService.Close()

	if err := eventService.Subscribe(interfaces.EventAdvisoryStarted, nil); err == nil {
		t.Error("Expected error subscribing a nil handler")
	}
}
