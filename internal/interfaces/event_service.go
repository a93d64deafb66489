package interfaces

import "context"

// EventType represents lifecycle notification types
type EventType string

const (
	EventJobCreated       EventType = "job_created"
	EventJobStatusChanged EventType = "job_status_changed"
	EventJobCompleted     EventType = "job_completed"
	EventJobFailed        EventType = "job_failed"
	EventJobCancelled     EventType = "job_cancelled"
	EventJobRetired       EventType = "job_retired"
)

// AllEventTypes lists every lifecycle notification type
var AllEventTypes = []EventType{
	EventJobCreated,
	EventJobStatusChanged,
	EventJobCompleted,
	EventJobFailed,
	EventJobCancelled,
	EventJobRetired,
}

// Event represents a lifecycle notification
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers without waiting
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
