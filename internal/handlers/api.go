package handlers

import (
	"net/http"
	"runtime"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
)

// TrackedCounter reports how many jobs are held in memory
type TrackedCounter interface {
	TrackedCount() int
}

type APIHandler struct {
	logger  arbor.ILogger
	tracker TrackedCounter
}

func NewAPIHandler(tracker TrackedCounter, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger:  logger,
		tracker: tracker,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, common.GetBuildInfo())
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	response := map[string]interface{}{
		"status":     "ok",
		"goroutines": runtime.NumGoroutine(),
		"panics":     common.GetPanicCount(),
	}
	if h.tracker != nil {
		response["tracked_jobs"] = h.tracker.TrackedCount()
	}
	WriteJSON(w, http.StatusOK, response)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
