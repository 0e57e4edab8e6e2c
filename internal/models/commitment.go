// -----------------------------------------------------------------------
// Commitment - A worker's claim on a contract
// -----------------------------------------------------------------------

package models

import "time"

// Instruction is the heartbeat reply telling a worker to keep going or to
// stop. The heartbeat response is the only channel that carries it.
type Instruction string

const (
	InstructionContinue Instruction = "continue"
	InstructionCancel   Instruction = "cancel"
)

// Commitment binds an agent to a contract. The id is client-supplied so a
// worker can retry its claim idempotently.
type Commitment struct {
	ID            string     `json:"commitment_id" badgerhold:"key"`
	ContractID    string     `json:"contract_id" badgerhold:"index"`
	AgentID       string     `json:"agent_id"`
	ClaimedAt     time.Time  `json:"claimed_at"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// Active reports whether the commitment still owns its contract.
func (c *Commitment) Active() bool {
	return c.FinishedAt == nil
}

// Beat advances last_heartbeat, never backwards. Returns true when the
// stored value moved.
func (c *Commitment) Beat(now time.Time) bool {
	if now.After(c.LastHeartbeat) {
		c.LastHeartbeat = now
		return true
	}
	return false
}

// MarkFinished terminates the commitment.
func (c *Commitment) MarkFinished(now time.Time) {
	c.FinishedAt = &now
}
