package server

import (
	"net/http"
	"strings"
)

const jobsPrefix = "/api/jobs/"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.handleJobsRoute) // GET (list active), POST (create)
	mux.HandleFunc(jobsPrefix, s.handleJobRoutes)  // /api/jobs/{id} and subpaths

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list and create)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.JobHandler.ListJobsHandler(w, r)
	case http.MethodPost:
		s.app.JobHandler.CreateJobHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobRoutes routes /api/jobs/{id}, /events, /cancel and /ws
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	jobID, action, ok := parseJobPath(r.URL.Path)
	if !ok {
		s.app.APIHandler.NotFoundHandler(w, r)
		return
	}

	switch action {
	case "":
		s.app.JobHandler.GetJobHandler(w, r, jobID)
	case "events":
		s.app.JobHandler.IngestEventHandler(w, r, jobID)
	case "cancel":
		s.app.JobHandler.CancelJobHandler(w, r, jobID)
	case "ws":
		s.app.StreamHandler.ServeStream(w, r, jobID)
	default:
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// parseJobPath splits /api/jobs/{id}[/{action}]
func parseJobPath(path string) (jobID, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, jobsPrefix), "/")
	if rest == "" {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	}
	return "", "", false
}
