// -----------------------------------------------------------------------
// Agent - Registered worker identities
// -----------------------------------------------------------------------

package models

import "time"

// AgentDetails is the identity a worker presents when claiming work.
type AgentDetails struct {
	Hostname      string `json:"hostname" validate:"required"`
	SystemName    string `json:"system_name" validate:"required"`
	SystemVersion string `json:"system_version" validate:"required"`
}

// IdentityKey is the upsert key: one agent row per distinct
// (hostname, system_name, system_version) triple.
func (d AgentDetails) IdentityKey() string {
	return d.Hostname + "|" + d.SystemName + "|" + d.SystemVersion
}

// Agent is a registered worker identity. Agents are never deleted.
type Agent struct {
	ID            string    `json:"agent_id" badgerhold:"key"`
	Hostname      string    `json:"hostname"`
	SystemName    string    `json:"system_name"`
	SystemVersion string    `json:"system_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// AgentIdentity maps an identity triple to its agent id. Key uniqueness is
// what makes the upsert idempotent under concurrent registration.
type AgentIdentity struct {
	Key     string `badgerhold:"key"`
	AgentID string
}
