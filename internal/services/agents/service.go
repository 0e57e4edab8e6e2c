package agents

import (
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/common"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/models"
)

// Service is the agent registry. Agents are upserted on every claim and
// never deleted; one row exists per distinct
// (hostname, system_name, system_version).
type Service struct {
	logger arbor.ILogger
}

// NewService creates a new agent registry
func NewService(logger arbor.ILogger) *Service {
	return &Service{logger: logger}
}

// Upsert resolves agent details to an agent id inside the caller's
// transaction. Concurrent registration of the same identity is safe: both
// callers read the identity key, both try to write it, the commit conflict
// aborts one, and the retried transaction finds the winner's row.
func (s *Service) Upsert(tx interfaces.Txn, details models.AgentDetails, now time.Time) (string, error) {
	key := details.IdentityKey()

	agentID, err := tx.GetAgentIDByIdentity(key)
	if err == nil {
		return agentID, nil
	}
	if !models.IsKind(err, models.ErrKindNotFound) {
		return "", err
	}

	agent := &models.Agent{
		ID:            common.NewAgentID(),
		Hostname:      details.Hostname,
		SystemName:    details.SystemName,
		SystemVersion: details.SystemVersion,
		CreatedAt:     now,
	}
	if err := tx.InsertAgent(agent); err != nil {
		return "", err
	}
	if err := tx.PutAgentIdentity(&models.AgentIdentity{Key: key, AgentID: agent.ID}); err != nil {
		return "", err
	}

	s.logger.Debug().
		Str("agent_id", agent.ID).
		Str("hostname", details.Hostname).
		Msg("Agent registered")

	return agent.ID, nil
}
