package dispatch

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/metrics"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/ternarybob/pactum/internal/services/agents"
	"github.com/ternarybob/pactum/internal/services/commitments"
	"github.com/ternarybob/pactum/internal/services/contracts"
	"github.com/ternarybob/pactum/internal/services/graph"
)

// Service is the API facade over the engines. It owns the transaction
// boundary (one store transaction per operation), validates payloads,
// publishes lifecycle events after commit, and records metrics. Transport
// adapters call nothing below this.
type Service struct {
	store       interfaces.StorageManager
	events      interfaces.EventService
	metrics     *metrics.Metrics
	agents      *agents.Service
	graph       *graph.Service
	contracts   *contracts.Service
	commitments *commitments.Service
	validate    *validator.Validate
	logger      arbor.ILogger
}

// NewService creates the dispatch facade. metrics may be nil.
func NewService(store interfaces.StorageManager, events interfaces.EventService, m *metrics.Metrics, logger arbor.ILogger) *Service {
	graphService := graph.NewService(logger)
	return &Service{
		store:       store,
		events:      events,
		metrics:     m,
		agents:      agents.NewService(logger),
		graph:       graphService,
		contracts:   contracts.NewService(graphService, logger),
		commitments: commitments.NewService(logger),
		validate:    validator.New(),
		logger:      logger,
	}
}

// PutJob inserts a job (with nested dependencies) under the given id.
// Resubmission with an identical body is a no-op; a differing body fails
// with conflict.
func (s *Service) PutJob(ctx context.Context, jobID string, sub *models.JobSubmission) error {
	if sub == nil {
		return models.InvalidPayloadf("missing job payload")
	}
	if sub.JobID != "" && sub.JobID != jobID {
		return models.InvalidPayloadf("payload job_id %s does not match path id %s", sub.JobID, jobID)
	}
	if err := s.validate.Struct(sub); err != nil {
		return models.InvalidPayloadf("invalid job payload: %v", err)
	}

	now := time.Now().UTC()
	var created bool
	err := s.store.Atomically(ctx, func(tx interfaces.Txn) error {
		var err error
		created, err = s.graph.PutJob(tx, jobID, sub, now)
		return err
	})
	if err != nil {
		return err
	}

	if created {
		if s.metrics != nil {
			s.metrics.JobSubmitted(sub.JobType)
		}
		s.publish(ctx, interfaces.EventJobCreated, models.JobEvent{
			JobID:     jobID,
			JobType:   sub.JobType,
			Timestamp: now,
		})
	}
	return nil
}

// GetJob returns the job view with nested dependencies, or nil when the id
// is unknown.
func (s *Service) GetJob(ctx context.Context, jobID string) (*models.JobView, error) {
	var view *models.JobView
	err := s.store.View(ctx, func(tx interfaces.Txn) error {
		v, err := s.graph.BuildJobView(tx, jobID)
		if err != nil {
			if models.IsKind(err, models.ErrKindNotFound) {
				return nil
			}
			return err
		}
		view = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// ListJobs returns one page of job summaries, newest first.
func (s *Service) ListJobs(ctx context.Context, opts models.ListOptions) (*models.JobPage, error) {
	jobs, total, err := s.store.JobStorage().ListJobs(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &models.JobPage{
		Jobs:   jobs,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}, nil
}

// PauseJob cancels the job's non-terminal contract and those of all its
// descendants.
func (s *Service) PauseJob(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	var jobType string
	err := s.store.Atomically(ctx, func(tx interfaces.Txn) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		jobType = job.JobType
		return s.graph.CascadePause(tx, jobID, now)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, interfaces.EventJobPaused, models.JobEvent{
		JobID:     jobID,
		JobType:   jobType,
		Timestamp: now,
	})
	return nil
}

// RetryJob reopens contracts for every cancelled or errored job in the
// subtree.
func (s *Service) RetryJob(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	var jobType string
	err := s.store.Atomically(ctx, func(tx interfaces.Txn) error {
		job, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		jobType = job.JobType
		return s.graph.CascadeRetry(tx, jobID, now)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, interfaces.EventJobRetried, models.JobEvent{
		JobID:     jobID,
		JobType:   jobType,
		Timestamp: now,
	})
	return nil
}

// RequestWork registers the agent and claims the first eligible contract
// for the filter. Returns nil when nothing qualifies.
func (s *Service) RequestWork(ctx context.Context, req *models.ClaimRequest) (*models.ContractView, error) {
	if req == nil {
		return nil, models.InvalidPayloadf("missing claim payload")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, models.InvalidPayloadf("invalid claim payload: %v", err)
	}

	now := time.Now().UTC()
	var view *models.ContractView
	var agentID string
	err := s.store.Atomically(ctx, func(tx interfaces.Txn) error {
		var err error
		agentID, err = s.agents.Upsert(tx, req.Agent, now)
		if err != nil {
			return err
		}
		view, err = s.contracts.RequestWork(tx, req.CommitmentID, req.Filter, agentID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if view == nil {
		if s.metrics != nil {
			s.metrics.ClaimEmpty(req.Filter.JobType)
		}
		return nil, nil
	}

	if s.metrics != nil {
		s.metrics.ClaimGranted(req.Filter.JobType)
	}
	s.publish(ctx, interfaces.EventContractClaimed, models.ContractEvent{
		JobID:      view.Contract.JobID,
		ContractID: view.Contract.ContractID,
		JobType:    view.Contract.JobType,
		Outcome:    models.OutcomeRunning,
		AgentID:    agentID,
		Timestamp:  now,
	})
	return view, nil
}

// Heartbeat records worker liveness and returns the continue-or-cancel
// instruction.
func (s *Service) Heartbeat(ctx context.Context, commitmentID string) (models.Instruction, error) {
	now := time.Now().UTC()
	var instruction models.Instruction
	var commitment *models.Commitment
	err := s.store.Atomically(ctx, func(tx interfaces.Txn) error {
		var err error
		instruction, commitment, err = s.commitments.Heartbeat(tx, commitmentID, now)
		return err
	})
	if err != nil {
		return "", err
	}

	if s.metrics != nil {
		s.metrics.Heartbeat(string(instruction))
	}
	s.publish(ctx, interfaces.EventHeartbeat, models.HeartbeatEvent{
		CommitmentID: commitmentID,
		ContractID:   commitment.ContractID,
		Instruction:  instruction,
		Timestamp:    now,
	})
	return instruction, nil
}

// CompleteWork applies a completion result to the commitment's contract.
func (s *Service) CompleteWork(ctx context.Context, commitmentID string, result *models.WorkResult) error {
	if result == nil {
		return models.InvalidPayloadf("missing completion payload")
	}
	if err := result.Validate(); err != nil {
		return models.InvalidPayloadf("invalid completion payload: %v", err)
	}
	if !common.IsUUID(commitmentID) {
		return models.InvalidPayloadf("commitment id must be a UUID, got %q", commitmentID)
	}

	now := time.Now().UTC()
	var applied bool
	var job *models.Job
	var contract *models.Contract
	err := s.store.Atomically(ctx, func(tx interfaces.Txn) error {
		var err error
		applied, job, contract, err = s.contracts.CompleteWork(tx, commitmentID, result, now)
		return err
	})
	if err != nil {
		return err
	}

	if applied {
		if s.metrics != nil {
			s.metrics.Completion(string(result.Kind))
		}
		s.publish(ctx, interfaces.EventContractCompleted, models.ContractEvent{
			JobID:      job.ID,
			ContractID: contract.ID,
			JobType:    job.JobType,
			Outcome:    contract.Outcome,
			Timestamp:  now,
		})
	}
	return nil
}

// Stats aggregates store-wide counts for the status surface.
func (s *Service) Stats(ctx context.Context) (*models.DispatchStats, error) {
	jobs, err := s.store.JobStorage().CountJobs(ctx)
	if err != nil {
		return nil, err
	}
	jobsByOutcome, err := s.store.JobStorage().CountByOutcome(ctx)
	if err != nil {
		return nil, err
	}
	contractCounts, err := s.store.ContractStorage().CountByOutcome(ctx)
	if err != nil {
		return nil, err
	}
	activeCommitments, err := s.store.CommitmentStorage().CountActive(ctx)
	if err != nil {
		return nil, err
	}
	agentCount, err := s.store.AgentStorage().CountAgents(ctx)
	if err != nil {
		return nil, err
	}

	return &models.DispatchStats{
		Jobs:              jobs,
		JobsByOutcome:     jobsByOutcome,
		WaitingContracts:  contractCounts[models.OutcomeWaiting],
		RunningContracts:  contractCounts[models.OutcomeRunning],
		ActiveCommitments: activeCommitments,
		Agents:            agentCount,
		GeneratedAt:       time.Now().UTC(),
	}, nil
}

// ExpireStaleCommitments errors out running contracts whose commitment has
// not heartbeat within staleAfter. Used by the reaper; contracts that
// terminated in the meantime are skipped.
func (s *Service) ExpireStaleCommitments(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-staleAfter)

	active, err := s.store.CommitmentStorage().ActiveCommitments(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, commitment := range active {
		if commitment.LastHeartbeat.After(cutoff) {
			continue
		}

		result := &models.WorkResult{Kind: models.ResultError, Message: "heartbeat expired"}
		if err := s.CompleteWork(ctx, commitment.ID, result); err != nil {
			if models.IsKind(err, models.ErrKindStaleCommitment) {
				continue
			}
			return expired, err
		}

		s.logger.Warn().
			Str("commitment_id", commitment.ID).
			Str("contract_id", commitment.ContractID).
			Str("last_heartbeat", commitment.LastHeartbeat.Format(time.RFC3339)).
			Msg("Commitment expired for missing heartbeats")
		expired++
	}
	return expired, nil
}

// publish fans an event out on the bus; dispatch itself never blocks on
// subscribers.
func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
