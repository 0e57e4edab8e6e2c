package commitments

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/models"
)

// Service tracks commitments between claim and completion. Its single
// runtime operation is the heartbeat, which doubles as the cancellation
// channel back to the worker.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new commitment tracker
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Heartbeat records a liveness signal and tells the worker whether to keep
// going. last_heartbeat only ever moves forward; clock regressions are
// ignored. The cancel instruction is returned for as long as the contract
// is cancelled, whether or not the commitment has been finished, so a
// paused worker always learns it should stop.
func (s *Service) Heartbeat(tx interfaces.Txn, commitmentID string, now time.Time) (models.Instruction, *models.Commitment, error) {
	commitment, err := tx.GetCommitment(commitmentID)
	if err != nil {
		if models.IsKind(err, models.ErrKindNotFound) {
			return "", nil, models.StaleCommitmentf("unknown commitment %s", commitmentID)
		}
		return "", nil, err
	}

	contract, err := tx.GetContract(commitment.ContractID)
	if err != nil {
		return "", nil, err
	}

	switch contract.Outcome {
	case models.OutcomeCancelled:
		return models.InstructionCancel, commitment, nil

	case models.OutcomeRunning:
		if commitment.Beat(now) {
			if err := tx.UpdateCommitment(commitment); err != nil {
				return "", nil, err
			}
		}
		return models.InstructionContinue, commitment, nil

	default:
		return "", nil, models.StaleCommitmentf("contract %s is %s, not running", contract.ID, contract.Outcome)
	}
}
