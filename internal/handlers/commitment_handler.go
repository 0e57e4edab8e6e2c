package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/ternarybob/pactum/internal/services/dispatch"
)

// CommitmentHandler handles the worker-facing claim, heartbeat, and
// completion requests
type CommitmentHandler struct {
	dispatch *dispatch.Service
	logger   arbor.ILogger
}

// NewCommitmentHandler creates a new commitment handler
func NewCommitmentHandler(dispatchService *dispatch.Service, logger arbor.ILogger) *CommitmentHandler {
	return &CommitmentHandler{
		dispatch: dispatchService,
		logger:   logger,
	}
}

// ClaimHandler claims the oldest eligible contract for the filter. Responds
// 200 with the contract view, or 204 when nothing is claimable. Re-sending
// the same commitment id returns the original claim.
// PUT /api/commitments
func (h *CommitmentHandler) ClaimHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	view, err := h.dispatch.RequestWork(ctx, &req)
	if err != nil {
		h.logger.Warn().Err(err).Str("commitment_id", req.CommitmentID).Msg("Claim rejected")
		WriteServiceError(w, err)
		return
	}
	if view == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	WriteJSON(w, http.StatusOK, view)
}

// HeartbeatHandler records worker liveness and tells the worker whether to
// keep going
// POST /api/commitments/{id}/heartbeat
func (h *CommitmentHandler) HeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commitmentID := extractCommitmentID(r.URL.Path)
	if commitmentID == "" {
		WriteError(w, http.StatusBadRequest, "Commitment ID is required")
		return
	}

	instruction, err := h.dispatch.Heartbeat(ctx, commitmentID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"instruction": string(instruction),
	})
}

// CompleteHandler applies a tagged completion result to the commitment's
// contract
// PUT /api/commitments/{id}
func (h *CommitmentHandler) CompleteHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	commitmentID := extractCommitmentID(r.URL.Path)
	if commitmentID == "" {
		WriteError(w, http.StatusBadRequest, "Commitment ID is required")
		return
	}

	var result models.WorkResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := h.dispatch.CompleteWork(ctx, commitmentID, &result); err != nil {
		h.logger.Warn().
			Err(err).
			Str("commitment_id", commitmentID).
			Str("kind", string(result.Kind)).
			Msg("Completion rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// extractCommitmentID pulls the id segment out of /api/commitments/{id} or
// /api/commitments/{id}/heartbeat.
func extractCommitmentID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
