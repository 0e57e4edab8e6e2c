package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/models"
	"github.com/ternarybob/pactum/internal/services/dispatch"
)

func claimRequest(t *testing.T, handler *CommitmentHandler, commitmentID, jobType string) *httptest.ResponseRecorder {
	t.Helper()
	payload := map[string]interface{}{
		"commitment_id": commitmentID,
		"filter":        map[string]interface{}{"job_type": jobType},
		"agent": map[string]string{
			"hostname":       "worker-01",
			"system_name":    "pactum-worker",
			"system_version": "1.0.0",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal claim: %v", err)
	}
	req := httptest.NewRequest("PUT", "/api/commitments", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	handler.ClaimHandler(rec, req)
	return rec
}

func seedJob(t *testing.T, service *dispatch.Service, jobType string) string {
	t.Helper()
	jobHandler := NewJobHandler(service, arbor.NewLogger())
	jobID := uuid.NewString()
	rec := putJobRequest(t, jobHandler, jobID, `{"job_type":"`+jobType+`","request_body":{}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("failed to seed job: %d %s", rec.Code, rec.Body.String())
	}
	return jobID
}

func TestClaimHandler(t *testing.T) {
	service := newTestDispatch(t)
	handler := NewCommitmentHandler(service, arbor.NewLogger())
	jobID := seedJob(t, service, "fetch")

	rec := claimRequest(t, handler, uuid.NewString(), "fetch")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view models.ContractView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("response is not a contract view: %v", err)
	}
	if view.Contract.JobID != jobID {
		t.Errorf("expected job %s, got %s", jobID, view.Contract.JobID)
	}
	if view.Contract.ContractID == "" || view.CommitmentID == "" {
		t.Errorf("view missing identifiers: %+v", view)
	}

	// Nothing left to claim.
	rec = claimRequest(t, handler, uuid.NewString(), "fetch")
	if rec.Code != http.StatusNoContent {
		t.Errorf("empty pool should be 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("204 must have an empty body, got %q", rec.Body.String())
	}
}

func TestClaimHandlerBadRequests(t *testing.T) {
	service := newTestDispatch(t)
	handler := NewCommitmentHandler(service, arbor.NewLogger())

	req := httptest.NewRequest("PUT", "/api/commitments", bytes.NewBufferString(`{"commitment_id":`))
	rec := httptest.NewRecorder()
	handler.ClaimHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken json should be 400, got %d", rec.Code)
	}

	// Validation failures: commitment id not a uuid, missing filter.
	rec = claimRequest(t, handler, "not-a-uuid", "fetch")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid commitment id should be 400, got %d", rec.Code)
	}

	req = httptest.NewRequest("PUT", "/api/commitments", bytes.NewBufferString(`{"commitment_id":"`+uuid.NewString()+`"}`))
	rec = httptest.NewRecorder()
	handler.ClaimHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing filter should be 400, got %d", rec.Code)
	}
}

func TestHeartbeatHandler(t *testing.T) {
	service := newTestDispatch(t)
	handler := NewCommitmentHandler(service, arbor.NewLogger())
	seedJob(t, service, "fetch")

	commitmentID := uuid.NewString()
	rec := claimRequest(t, handler, commitmentID, "fetch")
	if rec.Code != http.StatusOK {
		t.Fatalf("claim failed: %d", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/commitments/"+commitmentID+"/heartbeat", nil)
	rec = httptest.NewRecorder()
	handler.HeartbeatHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["instruction"] != string(models.InstructionContinue) {
		t.Errorf("expected continue instruction, got %v", body)
	}

	// Heartbeat for an unknown commitment maps to 409.
	req = httptest.NewRequest("POST", "/api/commitments/"+uuid.NewString()+"/heartbeat", nil)
	rec = httptest.NewRecorder()
	handler.HeartbeatHandler(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("unknown commitment should be 409, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["kind"] != string(models.ErrKindStaleCommitment) {
		t.Errorf("expected stale-commitment kind, got %v", body)
	}
}

func TestCompleteHandler(t *testing.T) {
	service := newTestDispatch(t)
	handler := NewCommitmentHandler(service, arbor.NewLogger())
	seedJob(t, service, "fetch")

	commitmentID := uuid.NewString()
	rec := claimRequest(t, handler, commitmentID, "fetch")
	if rec.Code != http.StatusOK {
		t.Fatalf("claim failed: %d", rec.Code)
	}

	req := httptest.NewRequest("PUT", "/api/commitments/"+commitmentID, bytes.NewBufferString(`{"kind":"success","result_body":{"rows":3}}`))
	rec = httptest.NewRecorder()
	handler.CompleteHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// A contradictory second completion maps to 409.
	req = httptest.NewRequest("PUT", "/api/commitments/"+commitmentID, bytes.NewBufferString(`{"kind":"error","message":"late"}`))
	rec = httptest.NewRecorder()
	handler.CompleteHandler(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("late contradictory completion should be 409, got %d", rec.Code)
	}

	// Invalid result payloads map to 400.
	req = httptest.NewRequest("PUT", "/api/commitments/"+commitmentID, bytes.NewBufferString(`{"kind":"error"}`))
	rec = httptest.NewRecorder()
	handler.CompleteHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("error result without message should be 400, got %d", rec.Code)
	}

	req = httptest.NewRequest("PUT", "/api/commitments/"+commitmentID, bytes.NewBufferString(`{"kind":`))
	rec = httptest.NewRecorder()
	handler.CompleteHandler(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("broken json should be 400, got %d", rec.Code)
	}
}
