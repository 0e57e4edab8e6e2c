// -----------------------------------------------------------------------
// Job - Immutable job row, submission payload, and per-job runtime state
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"
)

// Job is the logical unit of work a client submitted. The row is immutable
// once created; everything that changes over time lives on contracts and the
// per-job JobState record.
type Job struct {
	ID                 string          `json:"job_id" badgerhold:"key"`
	JobType            string          `json:"job_type" badgerhold:"index"`
	RequestBody        json.RawMessage `json:"request_body,omitempty"`
	RequestHash        string          `json:"request_hash"`
	Tags               []string        `json:"tags,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	JobName            string          `json:"job_name,omitempty"`
	FungibilityGroupID string          `json:"fungibility_group_id"`
	ParentJobID        *string         `json:"parent_job_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// HasTags reports whether the job carries every tag in want.
func (j *Job) HasTags(want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]bool, len(j.Tags))
	for _, t := range j.Tags {
		have[t] = true
	}
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}

// JobSubmission is the client payload for job submission. A submission
// either describes a new job (job_type required) or references an existing
// one by id alone. Dependencies nest recursively.
type JobSubmission struct {
	JobID              string           `json:"job_id,omitempty" validate:"omitempty,uuid"`
	JobType            string           `json:"job_type,omitempty"`
	RequestBody        json.RawMessage  `json:"request_body,omitempty"`
	Tags               []string         `json:"tags,omitempty"`
	Notes              string           `json:"notes,omitempty"`
	JobName            string           `json:"job_name,omitempty"`
	FungibilityGroupID string           `json:"fungibility_group_id,omitempty"`
	Dependencies       []*JobSubmission `json:"dependencies,omitempty"`
}

// IsReference reports whether the submission merely points at an existing
// job instead of describing a new one.
func (s *JobSubmission) IsReference() bool {
	return s.JobID != "" && s.JobType == "" && len(s.RequestBody) == 0 && len(s.Dependencies) == 0
}

// Dependency is a directed edge parent -> child: the parent cannot be
// claimed until the child's latest contract succeeds.
type Dependency struct {
	Key         string    `json:"-" badgerhold:"key"`
	ParentJobID string    `json:"parent_job_id" badgerhold:"index"`
	ChildJobID  string    `json:"child_job_id" badgerhold:"index"`
	CreatedAt   time.Time `json:"created_at"`
}

// DependencyKey builds the composite storage key for an edge, making the
// pair unique by construction.
func DependencyKey(parentID, childID string) string {
	return parentID + "|" + childID
}

// NewDependency creates an edge record for parent -> child.
func NewDependency(parentID, childID string, now time.Time) *Dependency {
	return &Dependency{
		Key:         DependencyKey(parentID, childID),
		ParentJobID: parentID,
		ChildJobID:  childID,
		CreatedAt:   now,
	}
}

// JobState is the one mutable record per job: which contract is active,
// which was issued last and with what outcome. It stands in for the
// relational partial index "at most one non-terminal contract per job" and
// keeps readiness checks O(1).
type JobState struct {
	JobID            string    `json:"job_id" badgerhold:"key"`
	ActiveContractID string    `json:"active_contract_id,omitempty"`
	LatestContractID string    `json:"latest_contract_id,omitempty"`
	LatestOutcome    Outcome   `json:"latest_outcome,omitempty" badgerhold:"index"`
	ContractCount    int       `json:"contract_count"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Succeeded reports whether the job's latest contract finished successfully.
func (s *JobState) Succeeded() bool {
	return s != nil && s.LatestOutcome == OutcomeSuccess
}

// ListOptions filters and pages the job listing.
type ListOptions struct {
	JobType string
	Outcome Outcome
	Limit   int
	Offset  int
}
