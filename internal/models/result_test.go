package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWorkResultValidate(t *testing.T) {
	due := time.Now().Add(time.Minute)

	tests := []struct {
		name    string
		result  WorkResult
		wantErr bool
	}{
		{"success", WorkResult{Kind: ResultSuccess}, false},
		{"success with body", WorkResult{Kind: ResultSuccess, ResultBody: json.RawMessage(`{"rows":3}`)}, false},
		{"cancelled", WorkResult{Kind: ResultCancelled}, false},
		{"error with message", WorkResult{Kind: ResultError, Message: "upstream 503"}, false},
		{"error without message", WorkResult{Kind: ResultError}, true},
		{"try-later with due", WorkResult{Kind: ResultTryLater, Due: &due}, false},
		{"try-later without due", WorkResult{Kind: ResultTryLater}, true},
		{"try-later with zero due", WorkResult{Kind: ResultTryLater, Due: &time.Time{}}, true},
		{"add-dependencies with deps", WorkResult{
			Kind:         ResultAddDependencies,
			Dependencies: []*JobSubmission{{JobType: "fetch", RequestBody: json.RawMessage(`{}`)}},
		}, false},
		{"add-dependencies without deps", WorkResult{Kind: ResultAddDependencies}, true},
		{"unknown kind", WorkResult{Kind: "maybe"}, true},
		{"empty kind", WorkResult{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.result.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected validation error for %s", tt.name)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestWorkResultContractOutcome(t *testing.T) {
	tests := []struct {
		kind ResultKind
		want Outcome
	}{
		{ResultSuccess, OutcomeSuccess},
		{ResultError, OutcomeError},
		{ResultCancelled, OutcomeCancelled},
		{ResultTryLater, OutcomeTryLater},
		{ResultAddDependencies, OutcomeWaiting},
	}

	for _, tt := range tests {
		r := &WorkResult{Kind: tt.kind}
		if got := r.ContractOutcome(); got != tt.want {
			t.Errorf("ContractOutcome(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestJobHasTags(t *testing.T) {
	job := &Job{Tags: []string{"gpu", "us-east", "large-memory"}}

	tests := []struct {
		name     string
		required []string
		want     bool
	}{
		{"empty requirement matches", nil, true},
		{"single present tag", []string{"gpu"}, true},
		{"full subset", []string{"gpu", "us-east"}, true},
		{"missing tag", []string{"gpu", "arm64"}, false},
		{"all missing", []string{"arm64"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := job.HasTags(tt.required); got != tt.want {
				t.Errorf("HasTags(%v) = %v, want %v", tt.required, got, tt.want)
			}
		})
	}
}

func TestJobSubmissionIsReference(t *testing.T) {
	ref := &JobSubmission{JobID: "3e8bca63-8176-4a74-bf57-623ff1a7ab0f"}
	if !ref.IsReference() {
		t.Error("submission with only job_id should be a reference")
	}

	full := &JobSubmission{JobID: "3e8bca63-8176-4a74-bf57-623ff1a7ab0f", JobType: "fetch"}
	if full.IsReference() {
		t.Error("submission with a job_type is a definition, not a reference")
	}

	withBody := &JobSubmission{JobID: "3e8bca63-8176-4a74-bf57-623ff1a7ab0f", RequestBody: json.RawMessage(`{}`)}
	if withBody.IsReference() {
		t.Error("submission with a request body is a definition, not a reference")
	}
}

func TestCommitmentLifecycle(t *testing.T) {
	claimed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := &Commitment{
		ID:            "0c7e4a92-95a8-4f1e-bd53-1f9c30a5c2da",
		ContractID:    "contract-1",
		ClaimedAt:     claimed,
		LastHeartbeat: claimed,
	}

	if !c.Active() {
		t.Error("fresh commitment should be active")
	}

	// Heartbeats only ever move the timestamp forward.
	c.Beat(claimed.Add(30 * time.Second))
	if !c.LastHeartbeat.Equal(claimed.Add(30 * time.Second)) {
		t.Errorf("expected heartbeat to advance, got %v", c.LastHeartbeat)
	}
	c.Beat(claimed.Add(10 * time.Second))
	if !c.LastHeartbeat.Equal(claimed.Add(30 * time.Second)) {
		t.Errorf("heartbeat must not move backwards, got %v", c.LastHeartbeat)
	}

	c.MarkFinished(claimed.Add(time.Minute))
	if c.Active() {
		t.Error("finished commitment should not be active")
	}
	if c.FinishedAt == nil || !c.FinishedAt.Equal(claimed.Add(time.Minute)) {
		t.Errorf("unexpected finished timestamp %v", c.FinishedAt)
	}
}
