package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/streamtrack/internal/models"
)

func (e *testEnv) dial(t *testing.T, jobID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/api/jobs/" + jobID + "/ws"
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamHandler_PushesViewsUntilTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.aggregator.CreateJob(ctx, "J1", models.JobMetadata{Title: "clip"})
	require.NoError(t, err)

	conn, _, err := env.dial(t, "J1")
	require.NoError(t, err)
	defer conn.Close()

	first := readMessage(t, conn)
	assert.Equal(t, MessageProgress, first.Type)
	require.NotNil(t, first.Job)
	assert.Equal(t, "waiting", string(first.Job.Status))
	assert.Equal(t, uint64(0), first.Job.Sequence)

	events := []models.ProgressEvent{
		models.EncodingStarted(1, "720p", 1),
		models.EncodingProgress(1, 50),
		models.EncodingVariantComplete(1),
		models.CloudUploadStarted(),
		models.SegmentTotalSet("720p", 1),
		models.SegmentStateChanged("720p", 0, models.SegmentCompleted),
		models.AllVariantsComplete(),
	}
	for _, event := range events {
		_, err := env.aggregator.Ingest(ctx, "J1", event)
		require.NoError(t, err)
	}

	var last uint64
	for i := range events {
		msg := readMessage(t, conn)
		assert.Equal(t, MessageProgress, msg.Type)
		require.NotNil(t, msg.Job)
		assert.Greater(t, msg.Job.Sequence, last, "frame %d arrives in order", i)
		last = msg.Job.Sequence
	}

	closed := readMessage(t, conn)
	assert.Equal(t, MessageClosed, closed.Type)
	assert.Equal(t, "job finished", closed.Reason)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStreamHandler_TerminalJobSendsFinalViewAndCloses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.aggregator.CreateJob(ctx, "J1", models.JobMetadata{})
	require.NoError(t, err)
	_, err = env.aggregator.Cancel(ctx, "J1", "operator")
	require.NoError(t, err)

	conn, _, err := env.dial(t, "J1")
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	require.NotNil(t, msg.Job)
	assert.Equal(t, "cancelled", string(msg.Job.Status))
	assert.Equal(t, MessageClosed, readMessage(t, conn).Type)
}

func TestStreamHandler_UnknownJob(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := env.dial(t, "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamHandler_DisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.aggregator.CreateJob(context.Background(), "J1", models.JobMetadata{})
	require.NoError(t, err)

	conn, _, err := env.dial(t, "J1")
	require.NoError(t, err)
	readMessage(t, conn)
	require.Equal(t, 1, env.broadcaster.ObserverCount("J1"))

	conn.Close()
	require.Eventually(t, func() bool {
		return env.broadcaster.ObserverCount("J1") == 0
	}, 3*time.Second, 10*time.Millisecond)
}
