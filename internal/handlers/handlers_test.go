package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/streamtrack/internal/common"
	"github.com/ternarybob/streamtrack/internal/jobs"
	"github.com/ternarybob/streamtrack/internal/services/events"
)

type testEnv struct {
	aggregator  *jobs.Aggregator
	broadcaster *events.Broadcaster
	server      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := arbor.NewNoOpLogger()
	broadcaster := events.NewBroadcaster(16, logger)
	aggregator := jobs.NewAggregator(jobs.WithLogger(logger), jobs.WithBroadcaster(broadcaster))

	jobHandler := NewJobHandler(aggregator, logger)
	streamHandler := NewStreamHandler(aggregator, logger, &common.WebSocketConfig{WriteTimeout: "2s", PingInterval: "1s"})
	apiHandler := NewAPIHandler(aggregator, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			jobHandler.CreateJobHandler(w, r)
			return
		}
		jobHandler.ListJobsHandler(w, r)
	})
	mux.HandleFunc("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		jobHandler.GetJobHandler(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("/api/jobs/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		jobHandler.IngestEventHandler(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("/api/jobs/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		jobHandler.CancelJobHandler(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("/api/jobs/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
		streamHandler.ServeStream(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("/api/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/version", apiHandler.VersionHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		aggregator.Close(context.Background())
	})
	return &testEnv{aggregator: aggregator, broadcaster: broadcaster, server: server}
}

func (e *testEnv) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, decodeBody(t, resp)
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestJobHandler_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/jobs", map[string]interface{}{"job_id": "J1", "title": "Launch video", "total_variants": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "J1", body["job_id"])
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, "Waiting to start", body["message"])

	resp, body = env.get(t, "/api/jobs/J1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Launch video", body["title"])
	assert.EqualValues(t, 2, body["total_variants"])

	resp, _ = env.post(t, "/api/jobs", map[string]interface{}{"job_id": "J1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestJobHandler_CreateGeneratesID(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.post(t, "/api/jobs", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, body["job_id"], "job_")
}

func TestJobHandler_CreateRejectsBadBody(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.post(t, "/api/jobs", map[string]interface{}{"unexpected": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.post(t, "/api/jobs", map[string]interface{}{"total_variants": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJobHandler_IngestEvents(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/jobs", map[string]interface{}{"job_id": "J1"})

	resp, body := env.post(t, "/api/jobs/J1/events", map[string]interface{}{
		"type": "encoding_started", "variant_index": 1, "variant_name": "720p", "total_variants": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, "ENCODING", body["internal_status"])
	assert.Equal(t, "Encoding variant 1 of 2 (720p)", body["message"])

	resp, body = env.post(t, "/api/jobs/J1/events", map[string]interface{}{"type": "encoding_progress", "variant_index": 1, "percent": 50})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 45.0, body["progress"])

	// Illegal from ENCODING
	resp, _ = env.post(t, "/api/jobs/J1/events", map[string]interface{}{"type": "upload_started"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.post(t, "/api/jobs/J1/events", map[string]interface{}{"type": "encoding_progress", "variant_index": 1, "percent": 140})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.post(t, "/api/jobs/missing/events", map[string]interface{}{"type": "upload_started"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobHandler_Cancel(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/jobs", map[string]interface{}{"job_id": "J1"})

	resp, body := env.post(t, "/api/jobs/J1/cancel", map[string]string{"reason": "user request"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
	assert.Equal(t, "Cancelled: user request", body["message"])

	// Terminal jobs answer with the final view
	resp, body = env.post(t, "/api/jobs/J1/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "cancelled", body["status"])
}

func TestJobHandler_List(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"J1", "J2", "J3"} {
		env.post(t, "/api/jobs", map[string]interface{}{"job_id": id})
	}
	env.post(t, "/api/jobs/J2/cancel", nil)

	resp, body := env.get(t, "/api/jobs?pageSize=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["jobs"].([]interface{})
	assert.Len(t, list, 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.EqualValues(t, 2, pagination["total_items"])
	assert.EqualValues(t, 2, pagination["total_pages"])
}

func TestJobHandler_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.get(t, "/api/jobs/J1/events")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPIHandler_HealthAndVersion(t *testing.T) {
	env := newTestEnv(t)
	env.post(t, "/api/jobs", map[string]interface{}{"job_id": "J1"})

	resp, body := env.get(t, "/api/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["tracked_jobs"])

	resp, body = env.get(t, "/api/version")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, common.GetVersion(), body["version"])
	assert.Equal(t, runtime.Version(), body["go_version"])
}

func TestPaginate(t *testing.T) {
	data := []int{1, 2, 3, 4, 5}

	page, meta := Paginate(data, 1, 2)
	assert.Equal(t, []int{3, 4}, page)
	assert.Equal(t, 3, meta.TotalPages)

	page, _ = Paginate(data, 2, 2)
	assert.Equal(t, []int{5}, page)

	page, _ = Paginate(data, 9, 2)
	assert.Empty(t, page)
}
