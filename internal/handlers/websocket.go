package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/interfaces"
	"github.com/ternarybob/streamtrack/internal/jobs"
)

// Stream message types
const (
	MessageProgress = "progress"
	MessageResync   = "resync"
	MessageClosed   = "closed"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// StreamMessage is one frame of the live progress stream
type StreamMessage struct {
	Type   string        `json:"type"`
	Job    *jobs.JobView `json:"job,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// StreamHandler pushes job views to WebSocket clients as the job progresses
type StreamHandler struct {
	source       ProgressSource
	logger       arbor.ILogger
	writeTimeout time.Duration
	pingInterval time.Duration
	now          func() time.Time
}

func NewStreamHandler(source ProgressSource, logger arbor.ILogger, config *common.WebSocketConfig) *StreamHandler {
	h := &StreamHandler{
		source:       source,
		logger:       logger,
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		now:          time.Now,
	}
	if config != nil {
		h.writeTimeout = common.Duration(config.WriteTimeout, h.writeTimeout)
		h.pingInterval = common.Duration(config.PingInterval, h.pingInterval)
	}
	return h
}

// ServeStream handles GET /api/jobs/{id}/ws. The first frame is the current
// view; the stream ends with a closed frame once the job is terminal.
func (h *StreamHandler) ServeStream(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	sub, err := h.source.Subscribe(r.Context(), jobID)
	if err != nil {
		WriteError(w, StatusForError(err), err.Error())
		return
	}
	defer h.source.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.logger.Debug().
		Str("job_id", jobID).
		Str("subscription_id", sub.ID()).
		Str("remote", r.RemoteAddr).
		Msg("Progress stream opened")

	done := make(chan struct{})
	common.SafeGo(h.logger, "ws-reader:"+jobID, func() {
		defer close(done)
		h.readLoop(conn)
	})

	reason := h.writeLoop(conn, sub, done)

	h.logger.Debug().
		Str("job_id", jobID).
		Str("subscription_id", sub.ID()).
		Str("reason", reason).
		Msg("Progress stream closed")
}

// readLoop discards client frames and returns when the client goes away
func (h *StreamHandler) readLoop(conn *websocket.Conn) {
	readTimeout := 2 * h.pingInterval
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}

func (h *StreamHandler) writeLoop(conn *websocket.Conn, sub interfaces.Subscription, done <-chan struct{}) string {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	terminal := false
	for {
		select {
		case <-done:
			return "client disconnected"

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return "ping failed"
			}

		case update, ok := <-sub.Updates():
			if !ok {
				reason := "server shutdown"
				if terminal {
					reason = "job finished"
				}
				h.writeFinal(conn, reason)
				return reason
			}

			msgType := MessageProgress
			if update.Resync {
				msgType = MessageResync
			}
			view := jobs.BuildView(update.Snapshot, h.now())
			terminal = update.Snapshot.Status.IsTerminal()

			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(StreamMessage{Type: msgType, Job: &view}); err != nil {
				return "write failed"
			}
		}
	}
}

func (h *StreamHandler) writeFinal(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(h.writeTimeout)
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(StreamMessage{Type: MessageClosed, Reason: reason}); err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
}
