package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// AgentStorage is the read surface over registered agents.
type AgentStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAgentStorage creates a new agent storage
func NewAgentStorage(db *BadgerDB, logger arbor.ILogger) *AgentStorage {
	return &AgentStorage{
		db:     db,
		logger: logger,
	}
}

// GetAgent returns one agent by id.
func (s *AgentStorage) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	var agent models.Agent
	if err := s.db.Store().Get(agentID, &agent); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, models.NotFoundf("agent %s not found", agentID)
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return &agent, nil
}

// CountAgents returns the number of registered agents.
func (s *AgentStorage) CountAgents(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Agent{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count agents: %w", err)
	}
	return int(count), nil
}
