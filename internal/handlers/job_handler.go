package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/jobs"
	"github.com/ternarybob/streamtrack/internal/models"
)

// JobHandler serves job creation, worker event ingest and job views
type JobHandler struct {
	tracker JobTracker
	logger  arbor.ILogger
	now     func() time.Time
}

func NewJobHandler(tracker JobTracker, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
	}
}

type createJobRequest struct {
	JobID string `json:"job_id"`
	models.JobMetadata
}

type cancelJobRequest struct {
	Reason string `json:"reason"`
}

// CreateJobHandler handles POST /api/jobs. A missing job_id is generated.
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req createJobRequest
	if err := DecodeJSON(r, &req, true); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		jobID = common.NewJobID()
	}

	snap, err := h.tracker.CreateJob(r.Context(), jobID, req.JobMetadata)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	WriteJSON(w, http.StatusCreated, jobs.BuildView(snap, h.now()))
}

// ListJobsHandler handles GET /api/jobs with page/pageSize parameters
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	now := h.now()
	active := h.tracker.ListActive()
	views := make([]jobs.JobView, 0, len(active))
	for _, snap := range active {
		views = append(views, jobs.BuildView(snap, now))
	}

	page, pageSize := GetPaginationParams(r)
	pageViews, pagination := Paginate(views, page, pageSize)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":       pageViews,
		"pagination": pagination,
	})
}

// GetJobHandler handles GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	snap, err := h.tracker.Get(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	WriteJSON(w, http.StatusOK, jobs.BuildView(snap, h.now()))
}

// IngestEventHandler handles POST /api/jobs/{id}/events from workers
func (h *JobHandler) IngestEventHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var event models.ProgressEvent
	if err := DecodeJSON(r, &event, false); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.tracker.Ingest(r.Context(), jobID, event)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	WriteJSON(w, http.StatusOK, jobs.BuildView(snap, h.now()))
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel with an optional reason
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req cancelJobRequest
	if err := DecodeJSON(r, &req, true); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.tracker.Cancel(r.Context(), jobID, req.Reason)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	h.logger.Info().Str("job_id", jobID).Str("reason", req.Reason).Msg("Job cancel requested")
	WriteJSON(w, http.StatusOK, jobs.BuildView(snap, h.now()))
}

// writeJobError maps the aggregator error taxonomy to status codes
func (h *JobHandler) writeJobError(w http.ResponseWriter, jobID string, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job request failed")
	}
	WriteError(w, status, err.Error())
}

// StatusForError returns the HTTP status for an aggregator error
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownJob), errors.Is(err, models.ErrSnapshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists),
		errors.Is(err, models.ErrConfigurationConflict),
		errors.Is(err, models.ErrStateTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
