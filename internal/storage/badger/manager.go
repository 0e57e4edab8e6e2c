package badger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/metrics"
	"github.com/ternarybob/pactum/internal/models"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	job        interfaces.JobStorage
	contract   interfaces.ContractStorage
	commitment interfaces.CommitmentStorage
	agent      interfaces.AgentStorage
	logger     arbor.ILogger
	metrics    *metrics.Metrics

	retryAttempts int
	retryBase     time.Duration
}

// NewManager creates a new Badger storage manager. metrics may be nil.
func NewManager(logger arbor.ILogger, config *common.Config, m *metrics.Metrics) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:            db,
		job:           NewJobStorage(db, logger),
		contract:      NewContractStorage(db, logger),
		commitment:    NewCommitmentStorage(db, logger),
		agent:         NewAgentStorage(db, logger),
		logger:        logger,
		metrics:       m,
		retryAttempts: config.Engine.ClaimRetryAttempts,
		retryBase:     config.Engine.ClaimRetryInterval(),
	}
	if manager.retryAttempts <= 0 {
		manager.retryAttempts = 8
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// Atomically runs fn inside one read-write transaction. A commit that loses
// a conflict is retried with exponential backoff up to the configured
// attempt budget; every other error aborts immediately and passes through
// unchanged.
func (m *Manager) Atomically(ctx context.Context, fn func(tx interfaces.Txn) error) error {
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		err := m.db.Store().Badger().Update(func(btx *badgerdb.Txn) error {
			return fn(newTxn(m.db.Store(), btx))
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, badgerdb.ErrConflict) {
			if m.metrics != nil {
				m.metrics.TxnRetry()
			}
			m.logger.Debug().Msg("Transaction conflict, retrying")
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retryBase
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 0 // bounded by attempt count, not wall clock

	err := backoff.Retry(op, backoff.WithMaxRetries(bo, uint64(m.retryAttempts)))
	if err == nil {
		return nil
	}
	if errors.Is(err, badgerdb.ErrConflict) {
		return models.Internalf("transaction kept conflicting after %d attempts", m.retryAttempts+1)
	}
	return err
}

// View runs fn inside one read-only transaction. Read-only transactions
// never conflict, so there is no retry.
func (m *Manager) View(ctx context.Context, fn func(tx interfaces.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.Store().Badger().View(func(btx *badgerdb.Txn) error {
		return fn(newTxn(m.db.Store(), btx))
	})
}

// JobStorage returns the job read surface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// ContractStorage returns the contract read surface
func (m *Manager) ContractStorage() interfaces.ContractStorage {
	return m.contract
}

// CommitmentStorage returns the commitment read surface
func (m *Manager) CommitmentStorage() interfaces.CommitmentStorage {
	return m.commitment
}

// AgentStorage returns the agent read surface
func (m *Manager) AgentStorage() interfaces.AgentStorage {
	return m.agent
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
