package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs lifecycle events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		var jobID, status, previous, reason string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["job_id"].(string); ok {
				jobID = id
			}
			if s, ok := payload["status"].(string); ok {
				status = s
			}
			if p, ok := payload["previous_status"].(string); ok {
				previous = p
			}
			if r, ok := payload["reason"].(string); ok {
				reason = r
			}
		}

		logEvent := logger.Info().
			Str("event_type", string(event.Type))

		if jobID != "" {
			logEvent = logEvent.Str("job_id", jobID)
		}
		if previous != "" {
			logEvent = logEvent.Str("previous_status", previous)
		}
		if status != "" {
			logEvent = logEvent.Str("status", status)
		}
		if reason != "" {
			logEvent = logEvent.Str("reason", reason)
		}

		logEvent.Msg("Job lifecycle event")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all lifecycle event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range interfaces.AllEventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(interfaces.AllEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
