package interfaces

import (
	"context"
	"time"
)

// WatchlistStatus reports the state of the watchlist scheduler
type WatchlistStatus struct {
	Enabled   bool
	Schedule  string
	Tickers   []string
	LastRun   *time.Time
	NextRun   *time.Time
	IsRunning bool // An advisory batch is currently executing
	LastError string
}

// SchedulerService runs watchlist advisories on a cron schedule
type SchedulerService interface {
	// Start begins cron scheduling; no-op when the watchlist is disabled
	Start() error

	// Stop halts scheduling and waits for an in-flight run to finish
	Stop() error

	// TriggerNow runs the watchlist batch immediately
	TriggerNow(ctx context.Context) error

	// Status returns the current scheduler state
	Status() *WatchlistStatus
}
