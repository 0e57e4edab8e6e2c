package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposition(t *testing.T) {
	m := New()

	m.JobSubmitted("fetch")
	m.JobSubmitted("fetch")
	m.ClaimGranted("fetch")
	m.ClaimEmpty("transform")
	m.Completion("success")
	m.Heartbeat("continue")
	m.TxnRetry()
	m.ObserveRequest(http.MethodGet, "/api/jobs/{id}", http.StatusOK, 12*time.Millisecond)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from metrics endpoint, got %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read exposition: %v", err)
	}
	body := string(raw)

	for _, metric := range []string{
		`pactum_jobs_submitted_total{job_type="fetch"} 2`,
		`pactum_claims_total{job_type="fetch",result="granted"} 1`,
		`pactum_claims_total{job_type="transform",result="empty"} 1`,
		`pactum_completions_total{kind="success"} 1`,
		`pactum_heartbeats_total{instruction="continue"} 1`,
		`pactum_txn_retries_total 1`,
		`pactum_http_request_duration_seconds_count{method="GET",path="/api/jobs/{id}",status="200"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("exposition missing %q", metric)
		}
	}
}

func TestIsolatedRegistries(t *testing.T) {
	a := New()
	b := New()

	a.JobSubmitted("fetch")

	server := httptest.NewServer(b.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read exposition: %v", err)
	}

	if strings.Contains(string(raw), `job_type="fetch"`) {
		t.Error("registry b must not see counters incremented on registry a")
	}
}
