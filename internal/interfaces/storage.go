package interfaces

import (
	"context"

	"github.com/ternarybob/consilium/internal/models"
)

// AdvisoryListOptions filters and pages advisory listings
type AdvisoryListOptions struct {
	Ticker string                // Filter by exchange-qualified ticker ("" = all)
	Status models.AdvisoryStatus // Filter by status ("" = all)
	Limit  int                   // Max records to return (0 = no limit)
	Offset int                   // Records to skip
}

// AdvisoryStorage - interface for advisory record persistence
type AdvisoryStorage interface {
	// CRUD operations. GetAdvisory returns (nil, nil) when no record has
	// the given ID; DeleteAdvisory of a missing record is a no-op.
	SaveAdvisory(ctx context.Context, record *models.AdvisoryRecord) error
	GetAdvisory(ctx context.Context, id string) (*models.AdvisoryRecord, error)
	DeleteAdvisory(ctx context.Context, id string) error

	// List operations (newest first). GetLatestForTicker returns
	// (nil, nil) when the ticker has no advisories.
	ListAdvisories(ctx context.Context, opts AdvisoryListOptions) ([]*models.AdvisoryRecord, error)
	GetLatestForTicker(ctx context.Context, ticker string) (*models.AdvisoryRecord, error)

	// Stats operations
	CountAdvisories(ctx context.Context) (int, error)
	CountAdvisoriesByStatus(ctx context.Context, status models.AdvisoryStatus) (int, error)

	// Bulk operations
	ClearAll(ctx context.Context) error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	AdvisoryStorage() AdvisoryStorage
	DB() interface{}
	Close() error
}
