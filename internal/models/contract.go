// -----------------------------------------------------------------------
// Contract - One attempt to execute a job, with its outcome lifecycle
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"time"
)

// Outcome is the lifecycle state of a contract.
type Outcome string

const (
	OutcomeWaiting   Outcome = "waiting"
	OutcomeRunning   Outcome = "running"
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeTryLater  Outcome = "try-later"
)

// IsTerminal reports whether the outcome ends the contract. try-later is
// terminal for the contract that returned it; the deferral runs on a fresh
// contract.
func (o Outcome) IsTerminal() bool {
	switch o {
	case OutcomeSuccess, OutcomeError, OutcomeCancelled, OutcomeTryLater:
		return true
	}
	return false
}

// Valid reports whether o is one of the defined outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWaiting, OutcomeRunning, OutcomeSuccess, OutcomeError, OutcomeCancelled, OutcomeTryLater:
		return true
	}
	return false
}

// DefaultDueOffset is added to a contract's creation time to form its
// default due timestamp. It is negative so fresh contracts are immediately
// eligible even across small clock skews.
const DefaultDueOffset = -5 * time.Second

// Contract is one attempt to execute a job. Contract numbers are 1-based;
// a job accrues more than one contract only through retry or try-later.
type Contract struct {
	ID             string          `json:"contract_id" badgerhold:"key"`
	JobID          string          `json:"job_id" badgerhold:"index"`
	ContractNumber int             `json:"contract_number"`
	CreatedAt      time.Time       `json:"created_at"`
	Due            time.Time       `json:"due"`
	ClaimedAt      *time.Time      `json:"claimed_at,omitempty"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
	Outcome        Outcome         `json:"outcome" badgerhold:"index"`
	ResultBody     json.RawMessage `json:"result_body,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Claimable reports whether the contract itself is eligible at now.
// Dependency readiness is checked separately against the job graph.
func (c *Contract) Claimable(now time.Time) bool {
	return c.Outcome == OutcomeWaiting && !c.Due.After(now)
}

// MarkClaimed transitions the contract to running.
func (c *Contract) MarkClaimed(now time.Time) {
	c.Outcome = OutcomeRunning
	c.ClaimedAt = &now
}

// MarkFinished stamps the terminal transition. The caller sets the outcome
// and any result fields.
func (c *Contract) MarkFinished(outcome Outcome, now time.Time) {
	c.Outcome = outcome
	c.FinishedAt = &now
}
