package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/pactum/internal/models"
)

// RequireMethod rejects requests that arrive with the wrong verb. It writes
// the 405 itself; callers just return when it reports false.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON encodes data as the response body under the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes the uniform error envelope for handler-level failures
// such as bad paths or unreadable bodies.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps a service error to its HTTP status. The error kind
// carries through to the body so clients can branch without parsing messages.
func WriteServiceError(w http.ResponseWriter, err error) error {
	kind := models.KindOf(err)
	return WriteJSON(w, statusForKind(kind), map[string]string{
		"status": "error",
		"kind":   string(kind),
		"error":  err.Error(),
	})
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindConflict, models.ErrKindStaleCommitment:
		return http.StatusConflict
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ParseListOptions extracts job listing filters from query parameters.
// Defaults: limit 50 (max 500), offset 0.
func ParseListOptions(r *http.Request) models.ListOptions {
	opts := models.ListOptions{
		JobType: r.URL.Query().Get("job_type"),
		Outcome: models.Outcome(r.URL.Query().Get("outcome")),
		Limit:   50,
		Offset:  0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			opts.Limit = parsed
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			opts.Offset = parsed
		}
	}

	return opts
}
