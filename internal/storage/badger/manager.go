package badger

import (
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/consilium/internal/common"
	"github.com/ternarybob/consilium/internal/interfaces"
)

// gcInterval controls how often the value log garbage collector runs.
// Badger never reclaims value log space on its own.
const gcInterval = 10 * time.Minute

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	advisory interfaces.AdvisoryStorage
	logger   arbor.ILogger
	gcStop   chan struct{}
	gcDone   chan struct{}
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		advisory: NewAdvisoryStorage(db, logger),
		logger:   logger,
		gcStop:   make(chan struct{}),
		gcDone:   make(chan struct{}),
	}

	common.SafeGo(logger, "badger-gc", func() {
		manager.runValueLogGC(db.Store().Badger())
	})

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// runValueLogGC periodically compacts the value log until Close is called.
func (m *Manager) runValueLogGC(db *badgerdb.DB) {
	defer close(m.gcDone)

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC rewrites at most one log file per call;
			// loop until there is nothing left to reclaim.
			for {
				err := db.RunValueLogGC(0.5)
				if err == badgerdb.ErrNoRewrite {
					break
				}
				if err != nil {
					m.logger.Warn().Err(err).Msg("Badger value log GC failed")
					break
				}
			}
		}
	}
}

// AdvisoryStorage returns the Advisory storage interface
func (m *Manager) AdvisoryStorage() interfaces.AdvisoryStorage {
	return m.advisory
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close stops background maintenance and closes the database connection
func (m *Manager) Close() error {
	close(m.gcStop)
	<-m.gcDone

	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
