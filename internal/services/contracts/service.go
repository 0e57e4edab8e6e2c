package contracts

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/ternarybob/pactum/internal/services/graph"
)

// Service is the contract engine: claiming work out of the pool and
// applying completion results. Methods operate inside the caller's
// transaction; claim serialisation comes from the store's conflict
// detection, not from locks here.
type Service struct {
	graph  *graph.Service
	logger arbor.ILogger
}

// NewService creates a new contract engine
func NewService(graphService *graph.Service, logger arbor.ILogger) *Service {
	return &Service{
		graph:  graphService,
		logger: logger,
	}
}

// RequestWork claims the first eligible contract for the filter: waiting,
// due, dependencies satisfied, tags matching, oldest job first. Returns nil
// when nothing qualifies. A commitment id that already exists returns the
// prior claim's view idempotently.
func (s *Service) RequestWork(tx interfaces.Txn, commitmentID string, filter models.WorkFilter, agentID string, now time.Time) (*models.ContractView, error) {
	existing, err := tx.GetCommitment(commitmentID)
	if err == nil {
		contract, err := tx.GetContract(existing.ContractID)
		if err != nil {
			return nil, err
		}
		job, err := tx.GetJob(contract.JobID)
		if err != nil {
			return nil, err
		}
		return s.buildView(tx, commitmentID, job, contract)
	}
	if !models.IsKind(err, models.ErrKindNotFound) {
		return nil, err
	}

	var chosen *models.Contract
	var chosenJob *models.Job
	err = tx.ScanClaimPool(filter.JobType, func(contractID string) (bool, error) {
		contract, err := tx.GetContract(contractID)
		if err != nil {
			if models.IsKind(err, models.ErrKindNotFound) {
				return false, nil
			}
			return false, err
		}
		if !contract.Claimable(now) {
			return false, nil
		}

		job, err := tx.GetJob(contract.JobID)
		if err != nil {
			return false, err
		}
		if !job.HasTags(filter.Tags) {
			return false, nil
		}

		ready, err := s.graph.DependenciesSatisfied(tx, job.ID)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}

		chosen = contract
		chosenJob = job
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if chosen == nil {
		return nil, nil
	}

	from := chosen.Outcome
	chosen.MarkClaimed(now)
	if err := tx.TransitionContract(chosenJob, chosen, from, now); err != nil {
		return nil, err
	}

	commitment := &models.Commitment{
		ID:            commitmentID,
		ContractID:    chosen.ID,
		AgentID:       agentID,
		ClaimedAt:     now,
		LastHeartbeat: now,
	}
	if err := tx.InsertCommitment(commitment); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("job_id", chosenJob.ID).
		Str("contract_id", chosen.ID).
		Str("commitment_id", commitmentID).
		Msg("Contract claimed")

	return s.buildView(tx, commitmentID, chosenJob, chosen)
}

// CompleteWork applies a completion result to the commitment's contract.
// Returns the affected job and contract; applied is false for the
// idempotent repeat of an already-recorded outcome.
func (s *Service) CompleteWork(tx interfaces.Txn, commitmentID string, result *models.WorkResult, now time.Time) (applied bool, job *models.Job, contract *models.Contract, err error) {
	commitment, err := tx.GetCommitment(commitmentID)
	if err != nil {
		if models.IsKind(err, models.ErrKindNotFound) {
			return false, nil, nil, models.StaleCommitmentf("unknown commitment %s", commitmentID)
		}
		return false, nil, nil, err
	}

	contract, err = tx.GetContract(commitment.ContractID)
	if err != nil {
		return false, nil, nil, err
	}
	job, err = tx.GetJob(contract.JobID)
	if err != nil {
		return false, nil, nil, err
	}

	if contract.Outcome != models.OutcomeRunning {
		// A repeat of the recorded outcome is a no-op: a success retried
		// after its commit, or a cancelled acknowledging a pause.
		if contract.Outcome == result.ContractOutcome() {
			return false, job, contract, nil
		}
		return false, nil, nil, models.StaleCommitmentf("contract %s is %s, not running", contract.ID, contract.Outcome)
	}

	from := contract.Outcome

	switch result.Kind {
	case models.ResultSuccess:
		contract.ResultBody = result.ResultBody
		contract.MarkFinished(models.OutcomeSuccess, now)
		if err := tx.TransitionContract(job, contract, from, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.finishCommitment(tx, commitment, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.graph.OnDependencySuccess(tx, job.ID, now); err != nil {
			return false, nil, nil, err
		}

	case models.ResultError:
		contract.Error = result.Message
		contract.MarkFinished(models.OutcomeError, now)
		if err := tx.TransitionContract(job, contract, from, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.finishCommitment(tx, commitment, now); err != nil {
			return false, nil, nil, err
		}

	case models.ResultCancelled:
		contract.MarkFinished(models.OutcomeCancelled, now)
		if err := tx.TransitionContract(job, contract, from, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.finishCommitment(tx, commitment, now); err != nil {
			return false, nil, nil, err
		}

	case models.ResultTryLater:
		contract.Error = result.Reason
		contract.MarkFinished(models.OutcomeTryLater, now)
		if err := tx.TransitionContract(job, contract, from, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.finishCommitment(tx, commitment, now); err != nil {
			return false, nil, nil, err
		}
		// The deferral runs on a fresh contract due at the requested time.
		if _, err := tx.OpenContract(job, *result.Due, now); err != nil {
			return false, nil, nil, err
		}

	case models.ResultAddDependencies:
		// The same contract returns to the pool; it stays unclaimable
		// until the new children succeed.
		contract.Outcome = models.OutcomeWaiting
		if err := tx.TransitionContract(job, contract, from, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.finishCommitment(tx, commitment, now); err != nil {
			return false, nil, nil, err
		}
		if err := s.graph.AddDependencies(tx, job, result.Dependencies, now); err != nil {
			return false, nil, nil, err
		}

	default:
		return false, nil, nil, models.InvalidPayloadf("unknown result kind %q", result.Kind)
	}

	s.logger.Debug().
		Str("job_id", job.ID).
		Str("contract_id", contract.ID).
		Str("kind", string(result.Kind)).
		Msg("Contract completed")

	return true, job, contract, nil
}

func (s *Service) finishCommitment(tx interfaces.Txn, commitment *models.Commitment, now time.Time) error {
	commitment.MarkFinished(now)
	return tx.UpdateCommitment(commitment)
}

// buildView renders the contract view handed to a worker, with each
// dependency resolved to its latest result body.
func (s *Service) buildView(tx interfaces.Txn, commitmentID string, job *models.Job, contract *models.Contract) (*models.ContractView, error) {
	children, err := tx.ChildrenOf(job.ID)
	if err != nil {
		return nil, err
	}

	deps := make([]models.DependencyResult, 0, len(children))
	for _, childID := range children {
		child, err := tx.GetJob(childID)
		if err != nil {
			return nil, err
		}
		dep := models.DependencyResult{
			JobType:     child.JobType,
			RequestBody: child.RequestBody,
		}

		state, err := tx.GetJobState(childID)
		if err == nil && state.LatestContractID != "" {
			latest, err := tx.GetContract(state.LatestContractID)
			if err != nil {
				return nil, err
			}
			dep.ResultBody = latest.ResultBody
		} else if err != nil && !models.IsKind(err, models.ErrKindNotFound) {
			return nil, err
		}

		deps = append(deps, dep)
	}

	return &models.ContractView{
		CommitmentID: commitmentID,
		Contract: models.ContractWork{
			JobID:        job.ID,
			ContractID:   contract.ID,
			JobType:      job.JobType,
			Tags:         job.Tags,
			RequestBody:  job.RequestBody,
			Dependencies: deps,
		},
	}, nil
}
