package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/ternarybob/pactum/internal/services/dispatch"
)

// JobHandler serves the /api/jobs routes: submission, retrieval, listing,
// pause, and retry. All semantics live in the dispatch layer; this type
// only translates between HTTP and dispatch calls.
type JobHandler struct {
	dispatch *dispatch.Service
	logger   arbor.ILogger
}

func NewJobHandler(dispatchService *dispatch.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		dispatch: dispatchService,
		logger:   logger,
	}
}

// PutJobHandler submits a job under the id in the path. Resubmitting the
// same body succeeds without creating anything.
// PUT /api/jobs/{id}
func (h *JobHandler) PutJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	var sub models.JobSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := h.dispatch.PutJob(ctx, jobID, &sub); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Job submission rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"job_id": jobID,
	})
}

// GetJobHandler returns a single job with contract history and nested
// dependencies.
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	view, err := h.dispatch.GetJob(ctx, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteServiceError(w, err)
		return
	}
	if view == nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// ListJobsHandler returns a paginated list of jobs, newest first
// GET /api/jobs?job_type=crawl&outcome=success&limit=50&offset=0
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, err := h.dispatch.ListJobs(ctx, ParseListOptions(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, page)
}

// PauseJobHandler cancels the job's open work and that of its descendants
// POST /api/jobs/{id}/pause
func (h *JobHandler) PauseJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.dispatch.PauseJob(ctx, jobID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to pause job")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"job_id": jobID,
	})
}

// RetryJobHandler reopens work for every cancelled or errored job in the
// subtree
// POST /api/jobs/{id}/retry
func (h *JobHandler) RetryJobHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := extractJobID(r.URL.Path)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.dispatch.RetryJob(ctx, jobID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to retry job")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"job_id": jobID,
	})
}

// extractJobID pulls the id segment out of /api/jobs/{id} or
// /api/jobs/{id}/{action}.
func extractJobID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
