package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/models"
)

type stubAdvisor struct {
	mu       sync.Mutex
	requests []models.AdvisoryRequest
	run      func(ctx context.Context, req models.AdvisoryRequest) (*models.AdvisoryRecord, error)
}

func (s *stubAdvisor) Advise(ctx context.Context, request models.AdvisoryRequest) (*models.InvestmentRecommendation, error) {
	return nil, errors.New("not used in scheduler tests")
}

func (s *stubAdvisor) RunAdvisory(ctx context.Context, request models.AdvisoryRequest) (*models.AdvisoryRecord, error) {
	s.mu.Lock()
	s.requests = append(s.requests, request)
	s.mu.Unlock()

	if s.run != nil {
		return s.run(ctx, request)
	}
	record := models.NewAdvisoryRecord("adv_stub", request)
	record.MarkCompleted(&models.InvestmentRecommendation{Ticker: request.Ticker})
	return record, nil
}

func (s *stubAdvisor) recorded() []models.AdvisoryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AdvisoryRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func watchlistConfig(tickers ...string) *common.Config {
	config := common.NewDefaultConfig()
	config.Watchlist.Enabled = true
	config.Watchlist.Tickers = tickers
	return config
}

func TestTriggerNowRunsEachTicker(t *testing.T) {
	advisor := &stubAdvisor{}
	service := NewService(watchlistConfig("ASX:BHP", "ASX:CBA", "ASX:WDS"), advisor, nil, common.GetLogger())

	if err := service.TriggerNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	requests := advisor.recorded()
	if len(requests) != 3 {
		t.Fatalf("expected 3 advisories, got %d", len(requests))
	}
	for _, req := range requests {
		if req.Trigger != models.TriggerWatchlist {
			t.Errorf("expected watchlist trigger, got %q", req.Trigger)
		}
		if len(req.Kinds) != 3 {
			t.Errorf("expected all configured kinds, got %v", req.Kinds)
		}
	}

	status := service.Status()
	if status.LastRun == nil {
		t.Error("batch completion should record last run time")
	}
	if status.LastError != "" {
		t.Errorf("clean batch should leave no error, got %q", status.LastError)
	}
}

func TestTriggerNowIsolatesTickerFailures(t *testing.T) {
	advisor := &stubAdvisor{
		run: func(ctx context.Context, req models.AdvisoryRequest) (*models.AdvisoryRecord, error) {
			if req.Ticker == "ASX:CBA" {
				return nil, errors.New("storage offline")
			}
			record := models.NewAdvisoryRecord("adv_stub", req)
			record.MarkCompleted(&models.InvestmentRecommendation{Ticker: req.Ticker})
			return record, nil
		},
	}
	service := NewService(watchlistConfig("ASX:BHP", "ASX:CBA", "ASX:WDS"), advisor, nil, common.GetLogger())

	if err := service.TriggerNow(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(advisor.recorded()); got != 3 {
		t.Errorf("one failure should not stop the batch, got %d advisories", got)
	}

	status := service.Status()
	if !strings.Contains(status.LastError, "ASX:CBA") {
		t.Errorf("last error should name the failed ticker, got %q", status.LastError)
	}
}

func TestTriggerNowWithoutTickers(t *testing.T) {
	config := common.NewDefaultConfig()
	service := NewService(config, &stubAdvisor{}, nil, common.GetLogger())

	if err := service.TriggerNow(context.Background()); err == nil {
		t.Fatal("expected error for empty watchlist")
	}
}

func TestTriggerNowCancelledContext(t *testing.T) {
	advisor := &stubAdvisor{}
	service := NewService(watchlistConfig("ASX:BHP"), advisor, nil, common.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := service.TriggerNow(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(advisor.recorded()); got != 0 {
		t.Errorf("cancelled batch should not run advisories, got %d", got)
	}
	if status := service.Status(); !strings.Contains(status.LastError, "cancelled") {
		t.Errorf("expected cancellation recorded, got %q", status.LastError)
	}
}

func TestTriggerNowRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	advisor := &stubAdvisor{
		run: func(ctx context.Context, req models.AdvisoryRequest) (*models.AdvisoryRecord, error) {
			close(started)
			<-release
			record := models.NewAdvisoryRecord("adv_stub", req)
			record.MarkCompleted(&models.InvestmentRecommendation{Ticker: req.Ticker})
			return record, nil
		},
	}
	service := NewService(watchlistConfig("ASX:BHP"), advisor, nil, common.GetLogger())

	done := make(chan error, 1)
	go func() {
		done <- service.TriggerNow(context.Background())
	}()

	<-started
	if err := service.TriggerNow(context.Background()); err == nil {
		t.Error("expected overlap rejection while batch in flight")
	}
	if !service.Status().IsRunning {
		t.Error("status should report the in-flight batch")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first trigger failed: %v", err)
	}
	if service.Status().IsRunning {
		t.Error("status should clear after the batch finishes")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Watchlist.Tickers = []string{"ASX:BHP"}
	service := NewService(config, &stubAdvisor{}, nil, common.GetLogger())

	if err := service.Start(); err != nil {
		t.Fatalf("disabled watchlist should start as no-op: %v", err)
	}
	if status := service.Status(); status.NextRun != nil {
		t.Error("disabled scheduler should have no next run")
	}
	if err := service.Stop(); err != nil {
		t.Fatalf("stop after no-op start: %v", err)
	}
}

func TestStartInvalidSchedule(t *testing.T) {
	config := watchlistConfig("ASX:BHP")
	config.Watchlist.Schedule = "not a cron expression"
	service := NewService(config, &stubAdvisor{}, nil, common.GetLogger())

	if err := service.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartSchedulesNextRun(t *testing.T) {
	service := NewService(watchlistConfig("ASX:BHP"), &stubAdvisor{}, nil, common.GetLogger())

	if err := service.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer service.Stop()

	status := service.Status()
	if status.NextRun == nil {
		t.Fatal("running scheduler should report the next run")
	}
	if !status.NextRun.After(time.Now().Add(-time.Minute)) {
		t.Errorf("next run should be in the future, got %v", status.NextRun)
	}
}
