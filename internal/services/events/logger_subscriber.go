package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/interfaces"
	"github.com/ternarybob/pactum/internal/models"
)

// NewLoggerSubscriber returns a handler that writes a debug line per event,
// pulling out the identifying fields each payload type carries.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		entry := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case models.JobEvent:
			entry = entry.
				Str("job_id", payload.JobID).
				Str("job_type", payload.JobType)
		case models.ContractEvent:
			entry = entry.
				Str("job_id", payload.JobID).
				Str("contract_id", payload.ContractID).
				Str("outcome", string(payload.Outcome))
		case models.HeartbeatEvent:
			entry = entry.
				Str("commitment_id", payload.CommitmentID).
				Str("instruction", string(payload.Instruction))
		}

		entry.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents attaches the debug subscriber to every lifecycle
// event type, so activity shows up in logs even with no dashboard connected.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventContractClaimed,
		interfaces.EventContractCompleted,
		interfaces.EventJobPaused,
		interfaces.EventJobRetried,
		interfaces.EventHeartbeat,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_types", len(eventTypes)).
		Msg("Log subscriber attached")

	return nil
}
