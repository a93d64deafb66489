package events

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/interfaces"
)

// TestNewLoggerSubscriber verifies that the logger subscriber accepts any payload
func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())
	ctx := context.Background()

	err := subscriber(ctx, interfaces.Event{
		Type: interfaces.EventJobStatusChanged,
		Payload: map[string]interface{}{
			"job_id":          "job-123",
			"previous_status": "ENCODING",
			"status":          "UPLOADING_TO_CLOUD_STORAGE",
		},
	})
	assert.NoError(t, err)

	err = subscriber(ctx, interfaces.Event{Type: interfaces.EventJobCreated, Payload: nil})
	assert.NoError(t, err)
}

// TestSubscribeLoggerToAllEvents verifies every lifecycle type can be published
func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := NewService(logger)
	defer eventService.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(eventService, logger))

	for _, eventType := range interfaces.AllEventTypes {
		err := eventService.PublishSync(context.Background(), interfaces.Event{
			Type:    eventType,
			Payload: map[string]interface{}{"job_id": "job-1"},
		})
		assert.NoError(t, err, "event type %s", eventType)
	}
}

// TestLoggerSubscriberDoesNotInterfere verifies other handlers still run
func TestLoggerSubscriberDoesNotInterfere(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := NewService(logger)
	defer eventService.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(eventService, logger))

	var calls int32
	require.NoError(t, eventService.Subscribe(interfaces.EventJobCompleted, func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobCompleted,
		Payload: map[string]interface{}{"job_id": "job-1"},
	})
	assert.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	eventService := NewService(arbor.NewLogger())
	assert.Error(t, eventService.Subscribe(interfaces.EventJobCreated, nil))
}
