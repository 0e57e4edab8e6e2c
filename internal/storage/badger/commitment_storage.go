package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// CommitmentStorage answers commitment queries; the reaper scans it for
// commitments that have gone silent.
type CommitmentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCommitmentStorage creates a new commitment storage
func NewCommitmentStorage(db *BadgerDB, logger arbor.ILogger) *CommitmentStorage {
	return &CommitmentStorage{
		db:     db,
		logger: logger,
	}
}

// ActiveCommitments returns all commitments that still own their contract.
func (s *CommitmentStorage) ActiveCommitments(ctx context.Context) ([]*models.Commitment, error) {
	var commitments []models.Commitment
	if err := s.db.Store().Find(&commitments, badgerhold.Where("FinishedAt").IsNil()); err != nil {
		return nil, fmt.Errorf("failed to find active commitments: %w", err)
	}

	result := make([]*models.Commitment, len(commitments))
	for i := range commitments {
		result[i] = &commitments[i]
	}
	return result, nil
}

// CountActive returns the number of unfinished commitments.
func (s *CommitmentStorage) CountActive(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Commitment{}, badgerhold.Where("FinishedAt").IsNil())
	if err != nil {
		return 0, fmt.Errorf("failed to count active commitments: %w", err)
	}
	return int(count), nil
}
