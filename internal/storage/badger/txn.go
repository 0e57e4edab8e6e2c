package badger

import (
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// Txn implements the transactional storage surface over one Badger
// read-write transaction. Record reads go through badgerhold so typed gets
// register read marks; concurrent transactions that touched the same
// records lose their commit with badger.ErrConflict and the manager
// retries the whole function.
type Txn struct {
	store *badgerhold.Store
	tx    *badgerdb.Txn
}

func newTxn(store *badgerhold.Store, tx *badgerdb.Txn) *Txn {
	return &Txn{store: store, tx: tx}
}

// --- Jobs ---

func (t *Txn) InsertJob(job *models.Job) error {
	if err := t.store.TxInsert(t.tx, job.ID, job); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return models.Conflictf("job %s already exists", job.ID)
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (t *Txn) GetJob(jobID string) (*models.Job, error) {
	var job models.Job
	if err := t.store.TxGet(t.tx, jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NotFoundf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (t *Txn) JobExists(jobID string) (bool, error) {
	var job models.Job
	err := t.store.TxGet(t.tx, jobID, &job)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check job existence: %w", err)
}

// --- Job state ---

func (t *Txn) GetJobState(jobID string) (*models.JobState, error) {
	var state models.JobState
	if err := t.store.TxGet(t.tx, jobID, &state); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NotFoundf("job state %s not found", jobID)
		}
		return nil, fmt.Errorf("failed to get job state: %w", err)
	}
	return &state, nil
}

func (t *Txn) PutJobState(state *models.JobState) error {
	if err := t.store.TxUpsert(t.tx, state.JobID, state); err != nil {
		return fmt.Errorf("failed to put job state: %w", err)
	}
	return nil
}

// --- Dependency edges ---

func (t *Txn) InsertDependency(dep *models.Dependency) error {
	// Upsert keeps edge addition idempotent; the key encodes the pair.
	if err := t.store.TxUpsert(t.tx, dep.Key, dep); err != nil {
		return fmt.Errorf("failed to insert dependency: %w", err)
	}
	return nil
}

func (t *Txn) DependencyExists(parentID, childID string) (bool, error) {
	var dep models.Dependency
	err := t.store.TxGet(t.tx, models.DependencyKey(parentID, childID), &dep)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check dependency: %w", err)
}

func (t *Txn) ParentsOf(childID string) ([]string, error) {
	var deps []models.Dependency
	if err := t.store.TxFind(t.tx, &deps, badgerhold.Where("ChildJobID").Eq(childID)); err != nil {
		return nil, fmt.Errorf("failed to find parents: %w", err)
	}
	parents := make([]string, 0, len(deps))
	for _, d := range deps {
		parents = append(parents, d.ParentJobID)
	}
	return parents, nil
}

func (t *Txn) ChildrenOf(parentID string) ([]string, error) {
	var deps []models.Dependency
	if err := t.store.TxFind(t.tx, &deps, badgerhold.Where("ParentJobID").Eq(parentID)); err != nil {
		return nil, fmt.Errorf("failed to find children: %w", err)
	}
	children := make([]string, 0, len(deps))
	for _, d := range deps {
		children = append(children, d.ChildJobID)
	}
	return children, nil
}

// --- Contracts ---

// OpenContract creates the next waiting contract for a job, points the job
// state at it and registers it in the claim pool. The job must not already
// have an active contract; the caller enforces that.
func (t *Txn) OpenContract(job *models.Job, due, now time.Time) (*models.Contract, error) {
	state, err := t.GetJobState(job.ID)
	if err != nil {
		if !models.IsKind(err, models.ErrKindNotFound) {
			return nil, err
		}
		state = &models.JobState{JobID: job.ID}
	}

	contract := &models.Contract{
		ID:             common.NewContractID(),
		JobID:          job.ID,
		ContractNumber: state.ContractCount + 1,
		CreatedAt:      now,
		Due:            due,
		Outcome:        models.OutcomeWaiting,
	}

	if err := t.store.TxInsert(t.tx, contract.ID, contract); err != nil {
		return nil, fmt.Errorf("failed to insert contract: %w", err)
	}

	state.ActiveContractID = contract.ID
	state.LatestContractID = contract.ID
	state.LatestOutcome = models.OutcomeWaiting
	state.ContractCount = contract.ContractNumber
	state.UpdatedAt = now
	if err := t.PutJobState(state); err != nil {
		return nil, err
	}

	if err := t.tx.Set(claimKey(job.JobType, job.CreatedAt, job.ID), []byte(contract.ID)); err != nil {
		return nil, fmt.Errorf("failed to register claim entry: %w", err)
	}

	return contract, nil
}

// TransitionContract persists an outcome change already applied to the
// contract value and keeps the job state and claim pool in step. from is
// the outcome the contract held before the change.
func (t *Txn) TransitionContract(job *models.Job, contract *models.Contract, from models.Outcome, now time.Time) error {
	if err := t.store.TxUpdate(t.tx, contract.ID, contract); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return models.NotFoundf("contract %s not found", contract.ID)
		}
		return fmt.Errorf("failed to update contract: %w", err)
	}

	state, err := t.GetJobState(job.ID)
	if err != nil {
		return err
	}
	if state.LatestContractID == contract.ID {
		state.LatestOutcome = contract.Outcome
	}
	if contract.Outcome.IsTerminal() && state.ActiveContractID == contract.ID {
		state.ActiveContractID = ""
	}
	state.UpdatedAt = now
	if err := t.PutJobState(state); err != nil {
		return err
	}

	// Claim pool membership tracks the waiting outcome exactly.
	key := claimKey(job.JobType, job.CreatedAt, job.ID)
	switch {
	case from == models.OutcomeWaiting && contract.Outcome != models.OutcomeWaiting:
		if err := t.tx.Delete(key); err != nil {
			return fmt.Errorf("failed to remove claim entry: %w", err)
		}
	case from != models.OutcomeWaiting && contract.Outcome == models.OutcomeWaiting:
		if err := t.tx.Set(key, []byte(contract.ID)); err != nil {
			return fmt.Errorf("failed to re-register claim entry: %w", err)
		}
	}

	return nil
}

func (t *Txn) GetContract(contractID string) (*models.Contract, error) {
	var contract models.Contract
	if err := t.store.TxGet(t.tx, contractID, &contract); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NotFoundf("contract %s not found", contractID)
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return &contract, nil
}

func (t *Txn) ContractsForJob(jobID string) ([]*models.Contract, error) {
	var contracts []models.Contract
	query := badgerhold.Where("JobID").Eq(jobID).SortBy("ContractNumber")
	if err := t.store.TxFind(t.tx, &contracts, query); err != nil {
		return nil, fmt.Errorf("failed to find contracts: %w", err)
	}
	result := make([]*models.Contract, len(contracts))
	for i := range contracts {
		result[i] = &contracts[i]
	}
	return result, nil
}

// --- Commitments ---

func (t *Txn) InsertCommitment(c *models.Commitment) error {
	if err := t.store.TxInsert(t.tx, c.ID, c); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return models.Conflictf("commitment %s already exists", c.ID)
		}
		return fmt.Errorf("failed to insert commitment: %w", err)
	}
	return nil
}

func (t *Txn) GetCommitment(commitmentID string) (*models.Commitment, error) {
	var c models.Commitment
	if err := t.store.TxGet(t.tx, commitmentID, &c); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NotFoundf("commitment %s not found", commitmentID)
		}
		return nil, fmt.Errorf("failed to get commitment: %w", err)
	}
	return &c, nil
}

func (t *Txn) UpdateCommitment(c *models.Commitment) error {
	if err := t.store.TxUpdate(t.tx, c.ID, c); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return models.NotFoundf("commitment %s not found", c.ID)
		}
		return fmt.Errorf("failed to update commitment: %w", err)
	}
	return nil
}

func (t *Txn) ActiveCommitmentForContract(contractID string) (*models.Commitment, error) {
	var commitments []models.Commitment
	if err := t.store.TxFind(t.tx, &commitments, badgerhold.Where("ContractID").Eq(contractID)); err != nil {
		return nil, fmt.Errorf("failed to find commitments: %w", err)
	}
	for i := range commitments {
		if commitments[i].Active() {
			return &commitments[i], nil
		}
	}
	return nil, models.NotFoundf("no active commitment for contract %s", contractID)
}

// --- Claim pool ---

// ScanClaimPool walks the claim pool for one job type in FIFO order. fn
// receives each contract id and returns stop=true to end the scan.
func (t *Txn) ScanClaimPool(jobType string, fn func(contractID string) (bool, error)) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	prefix := claimPrefix(jobType)
	it := t.tx.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()

		var contractID string
		if err := item.Value(func(val []byte) error {
			contractID = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to read claim entry: %w", err)
		}

		stop, err := fn(contractID)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// --- Agents ---

func (t *Txn) GetAgentIDByIdentity(key string) (string, error) {
	var identity models.AgentIdentity
	if err := t.store.TxGet(t.tx, key, &identity); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return "", models.NotFoundf("agent identity %s not found", key)
		}
		return "", fmt.Errorf("failed to get agent identity: %w", err)
	}
	return identity.AgentID, nil
}

func (t *Txn) PutAgentIdentity(identity *models.AgentIdentity) error {
	if err := t.store.TxUpsert(t.tx, identity.Key, identity); err != nil {
		return fmt.Errorf("failed to put agent identity: %w", err)
	}
	return nil
}

func (t *Txn) InsertAgent(agent *models.Agent) error {
	if err := t.store.TxInsert(t.tx, agent.ID, agent); err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

func (t *Txn) GetAgent(agentID string) (*models.Agent, error) {
	var agent models.Agent
	if err := t.store.TxGet(t.tx, agentID, &agent); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NotFoundf("agent %s not found", agentID)
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}
