package server

import (
	"net/http"
	"strings"
)

// setupRoutes builds the mux. Three surfaces share it: the client API under
// /api/jobs, the worker API under /api/commitments, and the observability
// endpoints (status, version, health, metrics, and the event stream).
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Client surface
	mux.HandleFunc("/api/jobs", s.handleJobsRoute)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /api/jobs/{id} plus pause and retry subpaths

	// Worker surface
	mux.HandleFunc("/api/commitments", s.handleCommitmentsRoute)
	mux.HandleFunc("/api/commitments/", s.handleCommitmentRoutes) // /api/commitments/{id} plus heartbeat

	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Prometheus scrape endpoint
	if s.app.Metrics != nil {
		mux.Handle("/metrics", s.app.Metrics.Handler())
	}

	// Anything else under /api is a structured 404
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsRoute routes /api/jobs requests (list only; creation is by id)
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET": s.app.JobHandler.ListJobsHandler,
	})
}

// handleJobRoutes dispatches /api/jobs/{id} and its action subpaths.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if r.Method == "POST" && strings.HasSuffix(path, "/pause") {
		s.app.JobHandler.PauseJobHandler(w, r)
		return
	}

	if r.Method == "POST" && strings.HasSuffix(path, "/retry") {
		s.app.JobHandler.RetryJobHandler(w, r)
		return
	}

	RouteByMethod(w, r, MethodRouter{
		"PUT": s.app.JobHandler.PutJobHandler,
		"GET": s.app.JobHandler.GetJobHandler,
	})
}

// handleCommitmentsRoute routes /api/commitments requests (claim)
func (s *Server) handleCommitmentsRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"PUT": s.app.CommitmentHandler.ClaimHandler,
	})
}

// handleCommitmentRoutes dispatches /api/commitments/{id} and heartbeat.
func (s *Server) handleCommitmentRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if r.Method == "POST" && strings.HasSuffix(path, "/heartbeat") {
		s.app.CommitmentHandler.HeartbeatHandler(w, r)
		return
	}

	RouteByMethod(w, r, MethodRouter{
		"PUT": s.app.CommitmentHandler.CompleteHandler,
	})
}
