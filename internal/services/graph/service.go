package graph

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/models"
)

// Service is the job graph engine: job insertion with nested dependencies,
// readiness propagation, and the pause/retry cascades. Methods operate
// inside the caller's transaction; the dispatch facade owns the boundary.
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new job graph engine
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// PutJob inserts a job and, recursively, its declared dependencies. Jobs
// that are ready at insert time get a waiting contract. Re-submitting an
// existing job id with an identical request body is a no-op; a differing
// body is a conflict. Returns true when the job row was created.
func (s *Service) PutJob(tx interfaces.Txn, jobID string, sub *models.JobSubmission, now time.Time) (bool, error) {
	return s.putJob(tx, jobID, sub, nil, now)
}

func (s *Service) putJob(tx interfaces.Txn, jobID string, sub *models.JobSubmission, parentID *string, now time.Time) (bool, error) {
	if jobID == "" || !common.IsUUID(jobID) {
		return false, models.InvalidPayloadf("job id must be a UUID, got %q", jobID)
	}
	if sub.JobType == "" {
		return false, models.InvalidPayloadf("job %s missing job_type", jobID)
	}

	hash, err := common.HashRequestBody(sub.RequestBody)
	if err != nil {
		return false, models.InvalidPayloadf("job %s request_body is not valid JSON: %v", jobID, err)
	}

	existing, err := tx.GetJob(jobID)
	if err == nil {
		if existing.RequestHash == hash {
			// Idempotent resubmission
			return false, nil
		}
		return false, models.Conflictf("job %s already exists with a different request body", jobID)
	}
	if !models.IsKind(err, models.ErrKindNotFound) {
		return false, err
	}

	fungibility := sub.FungibilityGroupID
	if fungibility == "" {
		fungibility = jobID
	}

	job := &models.Job{
		ID:                 jobID,
		JobType:            sub.JobType,
		RequestBody:        sub.RequestBody,
		RequestHash:        hash,
		Tags:               sub.Tags,
		Notes:              sub.Notes,
		JobName:            sub.JobName,
		FungibilityGroupID: fungibility,
		ParentJobID:        parentID,
		CreatedAt:          now,
	}
	if err := tx.InsertJob(job); err != nil {
		return false, err
	}

	if err := s.addEdges(tx, job, sub.Dependencies, now); err != nil {
		return false, err
	}

	ready, err := s.DependenciesSatisfied(tx, jobID)
	if err != nil {
		return false, err
	}
	if ready {
		if _, err := tx.OpenContract(job, now.Add(models.DefaultDueOffset), now); err != nil {
			return false, err
		}
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("job_type", sub.JobType).
		Bool("ready", ready).
		Msg("Job created")

	return true, nil
}

// AddDependencies attaches new dependencies to an existing job, inserting
// child jobs or referencing existing ones exactly as PutJob would.
func (s *Service) AddDependencies(tx interfaces.Txn, job *models.Job, deps []*models.JobSubmission, now time.Time) error {
	return s.addEdges(tx, job, deps, now)
}

// addEdges resolves each dependency submission to a child job id, guards
// against cycles, and records the edge. Each child is either a reference to
// an existing job or a full submission inserted recursively.
func (s *Service) addEdges(tx interfaces.Txn, job *models.Job, deps []*models.JobSubmission, now time.Time) error {
	for _, dep := range deps {
		if dep == nil {
			return models.InvalidPayloadf("job %s has a null dependency entry", job.ID)
		}
		if dep.JobID == "" {
			return models.InvalidPayloadf("dependency of job %s missing job_id", job.ID)
		}

		if dep.IsReference() {
			exists, err := tx.JobExists(dep.JobID)
			if err != nil {
				return err
			}
			if !exists {
				return models.InvalidPayloadf("dependency reference %s does not exist", dep.JobID)
			}
		} else {
			if _, err := s.putJob(tx, dep.JobID, dep, &job.ID, now); err != nil {
				return err
			}
		}

		if err := s.checkCycle(tx, job.ID, dep.JobID); err != nil {
			return err
		}
		if err := tx.InsertDependency(models.NewDependency(job.ID, dep.JobID, now)); err != nil {
			return err
		}
	}
	return nil
}

// checkCycle rejects an edge parent -> child when parent is reachable from
// child through existing dependency edges.
func (s *Service) checkCycle(tx interfaces.Txn, parentID, childID string) error {
	if parentID == childID {
		return models.InvalidPayloadf("job %s cannot depend on itself", parentID)
	}

	visited := map[string]bool{}
	stack := []string{childID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true

		children, err := tx.ChildrenOf(id)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c == parentID {
				return models.InvalidPayloadf("dependency %s -> %s would create a cycle", parentID, childID)
			}
			stack = append(stack, c)
		}
	}
	return nil
}

// DependenciesSatisfied reports whether every dependency of the job has a
// latest contract with outcome success.
func (s *Service) DependenciesSatisfied(tx interfaces.Txn, jobID string) (bool, error) {
	children, err := tx.ChildrenOf(jobID)
	if err != nil {
		return false, err
	}
	for _, childID := range children {
		state, err := tx.GetJobState(childID)
		if err != nil {
			if models.IsKind(err, models.ErrKindNotFound) {
				return false, nil
			}
			return false, err
		}
		if !state.Succeeded() {
			return false, nil
		}
	}
	return true, nil
}

// OnDependencySuccess re-evaluates readiness for the parents of a job whose
// contract just succeeded. A parent receives its first waiting contract once
// every dependency has succeeded; jobs that already ran are re-opened only
// through retry.
func (s *Service) OnDependencySuccess(tx interfaces.Txn, childID string, now time.Time) error {
	parents, err := tx.ParentsOf(childID)
	if err != nil {
		return err
	}

	for _, parentID := range parents {
		state, err := tx.GetJobState(parentID)
		if err != nil && !models.IsKind(err, models.ErrKindNotFound) {
			return err
		}
		if state != nil && state.ContractCount > 0 {
			continue
		}

		ready, err := s.DependenciesSatisfied(tx, parentID)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}

		parent, err := tx.GetJob(parentID)
		if err != nil {
			return err
		}
		if _, err := tx.OpenContract(parent, now.Add(models.DefaultDueOffset), now); err != nil {
			return err
		}

		s.logger.Debug().
			Str("job_id", parentID).
			Str("unblocked_by", childID).
			Msg("Parent job became ready")
	}
	return nil
}

// CascadePause cancels the non-terminal contract of the job and of every
// descendant that has one. Terminal contracts and jobs without contracts
// are left untouched. Active commitments on cancelled contracts are
// finished so the cancel instruction reaches the worker via heartbeat.
func (s *Service) CascadePause(tx interfaces.Txn, jobID string, now time.Time) error {
	visited := map[string]bool{}
	queue := []string{jobID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		if err := s.pauseOne(tx, id, now); err != nil {
			return err
		}

		children, err := tx.ChildrenOf(id)
		if err != nil {
			return err
		}
		queue = append(queue, children...)
	}
	return nil
}

func (s *Service) pauseOne(tx interfaces.Txn, jobID string, now time.Time) error {
	state, err := tx.GetJobState(jobID)
	if err != nil {
		if models.IsKind(err, models.ErrKindNotFound) {
			return nil
		}
		return err
	}
	if state.ActiveContractID == "" {
		return nil
	}

	contract, err := tx.GetContract(state.ActiveContractID)
	if err != nil {
		return err
	}
	if contract.Outcome.IsTerminal() {
		return nil
	}

	job, err := tx.GetJob(jobID)
	if err != nil {
		return err
	}

	from := contract.Outcome
	contract.MarkFinished(models.OutcomeCancelled, now)
	if err := tx.TransitionContract(job, contract, from, now); err != nil {
		return err
	}

	commitment, err := tx.ActiveCommitmentForContract(contract.ID)
	if err == nil {
		commitment.MarkFinished(now)
		if err := tx.UpdateCommitment(commitment); err != nil {
			return err
		}
	} else if !models.IsKind(err, models.ErrKindNotFound) {
		return err
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("contract_id", contract.ID).
		Msg("Contract cancelled by pause")

	return nil
}

// CascadeRetry opens a fresh waiting contract for every job in the subtree
// whose latest contract ended cancelled or error. Successful and in-flight
// jobs are not re-executed; jobs that never ran will be opened by
// OnDependencySuccess once their dependencies succeed.
func (s *Service) CascadeRetry(tx interfaces.Txn, jobID string, now time.Time) error {
	visited := map[string]bool{}
	queue := []string{jobID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		if err := s.retryOne(tx, id, now); err != nil {
			return err
		}

		children, err := tx.ChildrenOf(id)
		if err != nil {
			return err
		}
		queue = append(queue, children...)
	}
	return nil
}

func (s *Service) retryOne(tx interfaces.Txn, jobID string, now time.Time) error {
	state, err := tx.GetJobState(jobID)
	if err != nil {
		if models.IsKind(err, models.ErrKindNotFound) {
			return nil
		}
		return err
	}
	if state.ActiveContractID != "" {
		return nil
	}
	if state.LatestOutcome != models.OutcomeCancelled && state.LatestOutcome != models.OutcomeError {
		return nil
	}

	job, err := tx.GetJob(jobID)
	if err != nil {
		return err
	}
	contract, err := tx.OpenContract(job, now.Add(models.DefaultDueOffset), now)
	if err != nil {
		return err
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("contract_id", contract.ID).
		Int("contract_number", contract.ContractNumber).
		Msg("Contract reopened by retry")

	return nil
}

// BuildJobView renders a job with its contract history and nested
// dependency views.
func (s *Service) BuildJobView(tx interfaces.Txn, jobID string) (*models.JobView, error) {
	job, err := tx.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	view := &models.JobView{
		JobID:              job.ID,
		JobType:            job.JobType,
		JobName:            job.JobName,
		Notes:              job.Notes,
		Tags:               job.Tags,
		FungibilityGroupID: job.FungibilityGroupID,
		ParentJobID:        job.ParentJobID,
		RequestBody:        job.RequestBody,
		RequestHash:        job.RequestHash,
		CreatedAt:          job.CreatedAt,
	}

	state, err := tx.GetJobState(jobID)
	if err == nil {
		view.Outcome = state.LatestOutcome
	} else if !models.IsKind(err, models.ErrKindNotFound) {
		return nil, err
	}

	contracts, err := tx.ContractsForJob(jobID)
	if err != nil {
		return nil, err
	}
	view.Contracts = contracts

	children, err := tx.ChildrenOf(jobID)
	if err != nil {
		return nil, err
	}
	for _, childID := range children {
		child, err := s.BuildJobView(tx, childID)
		if err != nil {
			return nil, err
		}
		view.Dependencies = append(view.Dependencies, child)
	}

	return view, nil
}
