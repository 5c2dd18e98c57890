package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/interfaces"
	"github.com/ternarybob/consilium/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AdvisoryStorage implements the AdvisoryStorage interface for Badger
type AdvisoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAdvisoryStorage creates a new AdvisoryStorage instance
func NewAdvisoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AdvisoryStorage {
	return &AdvisoryStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AdvisoryStorage) SaveAdvisory(ctx context.Context, record *models.AdvisoryRecord) error {
	if record == nil {
		return fmt.Errorf("advisory record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("advisory ID is required")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save advisory: %w", err)
	}
	return nil
}

// GetAdvisory returns the stored record, or nil when no record has that ID
func (s *AdvisoryStorage) GetAdvisory(ctx context.Context, id string) (*models.AdvisoryRecord, error) {
	var record models.AdvisoryRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get advisory: %w", err)
	}
	return &record, nil
}

func (s *AdvisoryStorage) DeleteAdvisory(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.AdvisoryRecord{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete advisory: %w", err)
	}
	return nil
}

func (s *AdvisoryStorage) ListAdvisories(ctx context.Context, opts interfaces.AdvisoryListOptions) ([]*models.AdvisoryRecord, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts.Ticker != "" {
		query = query.And("Ticker").Eq(opts.Ticker)
	}
	if opts.Status != "" {
		query = query.And("Status").Eq(opts.Status)
	}

	query = query.SortBy("CreatedAt").Reverse()

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Skip(opts.Offset)
	}

	var records []models.AdvisoryRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list advisories: %w", err)
	}

	result := make([]*models.AdvisoryRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// GetLatestForTicker returns the most recent advisory for a ticker, or nil when none exists
func (s *AdvisoryStorage) GetLatestForTicker(ctx context.Context, ticker string) (*models.AdvisoryRecord, error) {
	var records []models.AdvisoryRecord
	query := badgerhold.Where("Ticker").Eq(ticker).SortBy("CreatedAt").Reverse().Limit(1)
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to get latest advisory for %s: %w", ticker, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *AdvisoryStorage) CountAdvisories(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.AdvisoryRecord{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *AdvisoryStorage) CountAdvisoriesByStatus(ctx context.Context, status models.AdvisoryStatus) (int, error) {
	count, err := s.db.Store().Count(&models.AdvisoryRecord{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *AdvisoryStorage) ClearAll(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.AdvisoryRecord{}, nil); err != nil {
		return fmt.Errorf("failed to clear advisories: %w", err)
	}
	s.logger.Info().Msg("All advisory records cleared")
	return nil
}
