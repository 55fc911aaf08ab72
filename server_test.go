package signflow

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *Config, catalog CatalogSource, browser Browser) (*httptest.Server, *Registry) {
	t.Helper()
	registry := NewRegistry(cfg)
	signer := NewSigner(cfg, catalog, browser)
	ts := httptest.NewServer(NewServer(cfg, registry, signer).Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

// collectEvents reads the SSE stream until the predicate matches or the
// server closes the stream.
func collectEvents(t *testing.T, url string, until func(ProgressEvent) bool) []ProgressEvent {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var events []ProgressEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
		if until != nil && until(ev) {
			break
		}
	}
	return events
}

func submitJob(t *testing.T, ts *httptest.Server, req SignRequest) string {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/run", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["jobId"])
	return out["jobId"]
}

func TestServerHealth(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t), signingCatalog(), &fakeBrowser{})
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "API online", string(body))
}

func TestServerRejectsMalformedSubmission(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t), signingCatalog(), &fakeBrowser{})
	resp, err := http.Post(ts.URL+"/run", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerUnknownJobStream(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t), signingCatalog(), &fakeBrowser{})

	events := collectEvents(t, ts.URL+"/run/job-0-deadbeef", nil)
	require.Len(t, events, 1)
	assert.Equal(t, "Job not found", events[0].Message)
	assert.True(t, events[0].Error)
}

func TestServerRoundTripOverSSE(t *testing.T) {
	ts, registry := newTestServer(t, testConfig(t), signingCatalog(), &fakeBrowser{})

	jobID := submitJob(t, ts, SignRequest{
		Selected: []string{"A", "B"},
		Details:  map[string]any{"name": "Jane Doe"},
		Entity:   "individual",
	})

	events := collectEvents(t, ts.URL+"/run/"+jobID, func(ev ProgressEvent) bool {
		return ev.Message == "complete"
	})
	assert.Equal(t, []eventKey{
		{Message: "processing", Title: "A"},
		{Message: "success", Title: "A"},
		{Message: "processing", Title: "B"},
		{Message: "failure", Title: "B"},
		{Message: "complete", Title: "Signing is complete"},
	}, keys(events))

	job, ok := registry.Get(jobID)
	require.True(t, ok)
	assert.Equal(t, JobCompleted, job.Status())
}

func TestServerLateSubscriberGetsFullHistory(t *testing.T) {
	ts, registry := newTestServer(t, testConfig(t), signingCatalog(), &fakeBrowser{})

	jobID := submitJob(t, ts, SignRequest{
		Selected: []string{"A"},
		Details:  map[string]any{"name": "Jane Doe"},
		Entity:   "individual",
	})

	// Wait for the job to finish before attaching.
	require.Eventually(t, func() bool {
		job, ok := registry.Get(jobID)
		return ok && job.Status().Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	events := collectEvents(t, ts.URL+"/run/"+jobID, func(ev ProgressEvent) bool {
		return ev.Message == "complete"
	})
	require.NotEmpty(t, events)
	assert.Equal(t, "processing", events[0].Message)
	assert.Equal(t, "complete", events[len(events)-1].Message)
}

func TestServerEvictsTerminalJobAfterDisconnect(t *testing.T) {
	cfg := testConfig(t)
	cfg.EvictDelay = 20 * time.Millisecond
	ts, registry := newTestServer(t, cfg, signingCatalog(), &fakeBrowser{})

	jobID := submitJob(t, ts, SignRequest{
		Selected: []string{"A"},
		Details:  map[string]any{"name": "Jane Doe"},
		Entity:   "individual",
	})

	collectEvents(t, ts.URL+"/run/"+jobID, func(ev ProgressEvent) bool {
		return ev.Message == "complete"
	})
	// The stream is closed; the grace window starts now.

	require.Eventually(t, func() bool {
		_, ok := registry.Get(jobID)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)
}

func TestServerValidationFailureIsObservable(t *testing.T) {
	ts, _ := newTestServer(t, testConfig(t), signingCatalog(), &fakeBrowser{})

	jobID := submitJob(t, ts, SignRequest{Selected: nil, Details: map[string]any{}, Entity: "individual"})

	events := collectEvents(t, ts.URL+"/run/"+jobID, func(ev ProgressEvent) bool {
		return ev.Error
	})
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "Invalid input")
}
