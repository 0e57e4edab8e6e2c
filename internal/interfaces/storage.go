package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/pactum/internal/models"
)

// Txn is a transaction-scoped view over the store. Every read and write made
// through it commits or rolls back together; engines compose inside one Txn
// so multi-row mutations stay atomic.
type Txn interface {
	// Job operations
	InsertJob(job *models.Job) error
	GetJob(jobID string) (*models.Job, error)
	JobExists(jobID string) (bool, error)

	// Job state operations
	GetJobState(jobID string) (*models.JobState, error)
	PutJobState(state *models.JobState) error

	// Dependency edge operations
	InsertDependency(dep *models.Dependency) error
	DependencyExists(parentID, childID string) (bool, error)
	ParentsOf(childID string) ([]string, error)
	ChildrenOf(parentID string) ([]string, error)

	// Contract operations. OpenContract assigns the next contract number,
	// points the job state at the new contract, and registers it in the
	// claim pool. TransitionContract persists an outcome change and keeps
	// the job state and claim pool in step.
	OpenContract(job *models.Job, due, now time.Time) (*models.Contract, error)
	TransitionContract(job *models.Job, contract *models.Contract, from models.Outcome, now time.Time) error
	GetContract(contractID string) (*models.Contract, error)
	ContractsForJob(jobID string) ([]*models.Contract, error)

	// Commitment operations
	InsertCommitment(c *models.Commitment) error
	GetCommitment(commitmentID string) (*models.Commitment, error)
	UpdateCommitment(c *models.Commitment) error
	ActiveCommitmentForContract(contractID string) (*models.Commitment, error)

	// ScanClaimPool walks the waiting contracts of one job type in FIFO
	// order (ascending job created_at, ties broken by job id). fn returns
	// stop=true to end the scan early.
	ScanClaimPool(jobType string, fn func(contractID string) (stop bool, err error)) error

	// Agent operations
	GetAgentIDByIdentity(key string) (string, error)
	PutAgentIdentity(identity *models.AgentIdentity) error
	InsertAgent(agent *models.Agent) error
	GetAgent(agentID string) (*models.Agent, error)
}

// JobStorage is the non-transactional read surface for listings.
type JobStorage interface {
	ListJobs(ctx context.Context, opts models.ListOptions) ([]*models.JobSummary, int, error)
	CountJobs(ctx context.Context) (int, error)
	CountByOutcome(ctx context.Context) (map[models.Outcome]int, error)
}

// ContractStorage answers contract queries outside a write transaction.
type ContractStorage interface {
	QueryContracts(ctx context.Context, outcome models.Outcome, jobType string) ([]*models.Contract, error)
	CountByOutcome(ctx context.Context) (map[models.Outcome]int, error)
}

// CommitmentStorage answers commitment queries; the reaper scans it for
// long-silent commitments.
type CommitmentStorage interface {
	ActiveCommitments(ctx context.Context) ([]*models.Commitment, error)
	CountActive(ctx context.Context) (int, error)
}

// AgentStorage is the read surface over registered agents.
type AgentStorage interface {
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	CountAgents(ctx context.Context) (int, error)
}

// StorageManager is the composite storage surface. Atomically runs fn inside
// one read-write transaction, retrying bounded-many times when the commit
// loses a conflict; View runs fn read-only.
type StorageManager interface {
	Atomically(ctx context.Context, fn func(tx Txn) error) error
	View(ctx context.Context, fn func(tx Txn) error) error

	JobStorage() JobStorage
	ContractStorage() ContractStorage
	CommitmentStorage() CommitmentStorage
	AgentStorage() AgentStorage

	DB() interface{}
	Close() error
}
