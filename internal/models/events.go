// -----------------------------------------------------------------------
// Events - Payloads carried on the lifecycle event bus
// -----------------------------------------------------------------------

package models

import "time"

// JobEvent is published when a job is created, paused, or retried. For
// pause/retry the payload describes the root of the cascade.
type JobEvent struct {
	JobID     string    `json:"job_id"`
	JobType   string    `json:"job_type"`
	ParentID  string    `json:"parent_job_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ContractEvent is published when a contract is claimed or completed.
type ContractEvent struct {
	JobID      string    `json:"job_id"`
	ContractID string    `json:"contract_id"`
	JobType    string    `json:"job_type"`
	Outcome    Outcome   `json:"outcome,omitempty"`
	AgentID    string    `json:"agent_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// HeartbeatEvent is published on every accepted heartbeat. Subscribers that
// fan out to dashboards are expected to throttle these.
type HeartbeatEvent struct {
	CommitmentID string      `json:"commitment_id"`
	ContractID   string      `json:"contract_id"`
	Instruction  Instruction `json:"instruction"`
	Timestamp    time.Time   `json:"timestamp"`
}
