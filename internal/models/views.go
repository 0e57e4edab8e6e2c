// -----------------------------------------------------------------------
// Views - Wire-facing renderings of jobs and claimed contracts
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"
)

// ContractView is handed to a worker on a successful claim (and returned
// again for idempotent re-claims of the same commitment id).
type ContractView struct {
	CommitmentID string       `json:"commitment_id"`
	Contract     ContractWork `json:"contract"`
}

// ContractWork carries everything a worker needs to execute a contract,
// including resolved dependency results.
type ContractWork struct {
	JobID        string             `json:"job_id"`
	ContractID   string             `json:"contract_id"`
	JobType      string             `json:"job_type"`
	Tags         []string           `json:"tags,omitempty"`
	RequestBody  json.RawMessage    `json:"request_body,omitempty"`
	Dependencies []DependencyResult `json:"dependencies"`
}

// DependencyResult renders one dependency of a claimed job. Consumers treat
// the collection as a set; ordering is not significant.
type DependencyResult struct {
	JobType     string          `json:"job_type"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	ResultBody  json.RawMessage `json:"result_body,omitempty"`
}

// JobView is the client-facing rendering of a job with its contract history
// and nested dependencies. Outcome mirrors the latest contract and stays
// empty until the job receives its first contract.
type JobView struct {
	JobID              string          `json:"job_id"`
	JobType            string          `json:"job_type"`
	JobName            string          `json:"job_name,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	FungibilityGroupID string          `json:"fungibility_group_id"`
	ParentJobID        *string         `json:"parent_job_id,omitempty"`
	RequestBody        json.RawMessage `json:"request_body,omitempty"`
	RequestHash        string          `json:"request_hash"`
	CreatedAt          time.Time       `json:"created_at"`
	Outcome            Outcome         `json:"outcome,omitempty"`
	Contracts          []*Contract     `json:"contracts,omitempty"`
	Dependencies       []*JobView      `json:"dependencies,omitempty"`
}

// JobSummary is one row of the paged job listing.
type JobSummary struct {
	JobID         string    `json:"job_id"`
	JobType       string    `json:"job_type"`
	JobName       string    `json:"job_name,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	ParentJobID   *string   `json:"parent_job_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Outcome       Outcome   `json:"outcome,omitempty"`
	ContractCount int       `json:"contract_count"`
}

// JobPage is a page of the job listing plus the unpaged total.
type JobPage struct {
	Jobs   []*JobSummary `json:"jobs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// WorkFilter narrows which waiting contracts a claim may take. JobType is
// required; Tags, when present, must all appear on the job.
type WorkFilter struct {
	JobType string   `json:"job_type" validate:"required"`
	Tags    []string `json:"tags,omitempty"`
}

// ClaimRequest is the claim payload: the worker picks its commitment id so
// the claim can be retried idempotently.
type ClaimRequest struct {
	CommitmentID string       `json:"commitment_id" validate:"required,uuid"`
	Filter       WorkFilter   `json:"filter" validate:"required"`
	Agent        AgentDetails `json:"agent" validate:"required"`
}

// DispatchStats aggregates store-wide counts for the status surface.
type DispatchStats struct {
	Jobs              int             `json:"jobs"`
	JobsByOutcome     map[Outcome]int `json:"jobs_by_outcome"`
	WaitingContracts  int             `json:"waiting_contracts"`
	RunningContracts  int             `json:"running_contracts"`
	ActiveCommitments int             `json:"active_commitments"`
	Agents            int             `json:"agents"`
	GeneratedAt       time.Time       `json:"generated_at"`
}
