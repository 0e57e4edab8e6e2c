package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ContractStorage answers contract queries outside a write transaction.
type ContractStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewContractStorage creates a new contract storage
func NewContractStorage(db *BadgerDB, logger arbor.ILogger) *ContractStorage {
	return &ContractStorage{
		db:     db,
		logger: logger,
	}
}

// QueryContracts returns contracts with the given outcome, optionally
// narrowed to jobs of one type, oldest first.
func (s *ContractStorage) QueryContracts(ctx context.Context, outcome models.Outcome, jobType string) ([]*models.Contract, error) {
	var contracts []models.Contract
	query := badgerhold.Where("Outcome").Eq(outcome).SortBy("CreatedAt")
	if err := s.db.Store().Find(&contracts, query); err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}

	result := make([]*models.Contract, 0, len(contracts))
	for i := range contracts {
		contract := &contracts[i]
		if jobType != "" {
			var job models.Job
			if err := s.db.Store().Get(contract.JobID, &job); err != nil {
				return nil, fmt.Errorf("failed to get job for contract: %w", err)
			}
			if job.JobType != jobType {
				continue
			}
		}
		result = append(result, contract)
	}
	return result, nil
}

// CountByOutcome counts contracts per outcome across the store.
func (s *ContractStorage) CountByOutcome(ctx context.Context) (map[models.Outcome]int, error) {
	outcomes := []models.Outcome{
		models.OutcomeWaiting,
		models.OutcomeRunning,
		models.OutcomeSuccess,
		models.OutcomeError,
		models.OutcomeCancelled,
		models.OutcomeTryLater,
	}

	counts := make(map[models.Outcome]int, len(outcomes))
	for _, outcome := range outcomes {
		count, err := s.db.Store().Count(&models.Contract{}, badgerhold.Where("Outcome").Eq(outcome))
		if err != nil {
			return nil, fmt.Errorf("failed to count contracts by outcome: %w", err)
		}
		counts[outcome] = int(count)
	}
	return counts, nil
}
