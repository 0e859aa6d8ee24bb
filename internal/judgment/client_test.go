package judgment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// #region helpers

// scriptedServer replays one canned response per request, in order, and
// counts the requests it served.
type scriptedServer struct {
	srv   *httptest.Server
	calls atomic.Int32
}

type cannedResponse struct {
	status  int
	content string // chat message content for 200 responses
}

func newScriptedServer(t *testing.T, script []cannedResponse) *scriptedServer {
	t.Helper()
	s := &scriptedServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := int(s.calls.Add(1)) - 1
		if i >= len(script) {
			t.Errorf("unexpected request %d beyond script", i)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		step := script[i]
		if step.status != http.StatusOK {
			w.WriteHeader(step.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": step.content}},
			},
		})
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func testClient(t *testing.T, baseURL string, sleeps *[]time.Duration) *Client {
	t.Helper()
	cfg := Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Backoff: ExponentialBackoff,
		Sleep: func(d time.Duration) {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
		},
	}
	return NewClient(cfg, zerolog.Nop())
}

const goodContent = `{"category":"true","explanation":"clearly focus viewing","explanation_summary":"Confidence: 90% | Key Evidence: study material"}`

// #endregion helpers

// #region classify

func TestClassifySucceedsFirstAttempt(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{{http.StatusOK, goodContent}})
	c := testClient(t, s.srv.URL, nil)

	res, err := c.Classify(context.Background(), DecisionRequest{Prompt: "classify this"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if !res.IsFocus() || res.Confidence != 90 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := s.calls.Load(); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestClassifyRetriesRateLimiting(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{
		{http.StatusTooManyRequests, ""},
		{http.StatusTooManyRequests, ""},
		{http.StatusOK, goodContent},
	})
	var sleeps []time.Duration
	c := testClient(t, s.srv.URL, &sleeps)

	res, err := c.Classify(context.Background(), DecisionRequest{Prompt: "classify this"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Fallback {
		t.Fatal("third attempt succeeded, no fallback expected")
	}
	if got := s.calls.Load(); got != 3 {
		t.Fatalf("expected 3 requests, got %d", got)
	}
	// Backoff doubles: 1s after the first failure, 2s after the second.
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("unexpected backoff schedule: %v", sleeps)
	}
}

func TestClassifyExhaustionFallsBack(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{
		{http.StatusBadGateway, ""},
		{http.StatusBadGateway, ""},
		{http.StatusBadGateway, ""},
	})
	var sleeps []time.Duration
	c := testClient(t, s.srv.URL, &sleeps)

	res, err := c.Classify(context.Background(), DecisionRequest{Prompt: "classify this"})
	if err != nil {
		t.Fatalf("Classify must not error on exhaustion: %v", err)
	}
	if !res.Fallback {
		t.Fatal("expected the deterministic fallback")
	}
	if res.Category != "false" || res.Confidence != 50 {
		t.Fatalf("unexpected fallback shape: %+v", res)
	}
	if got := s.calls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
	// No sleep after the final attempt.
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 backoff waits, got %v", sleeps)
	}
}

func TestClassifyFatalStatusStopsImmediately(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{{http.StatusUnauthorized, ""}})
	c := testClient(t, s.srv.URL, nil)

	res, err := c.Classify(context.Background(), DecisionRequest{Prompt: "classify this"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.Fallback {
		t.Fatal("fatal status must fall back")
	}
	if got := s.calls.Load(); got != 1 {
		t.Fatalf("fatal status must not retry, got %d requests", got)
	}
}

func TestClassifyRetriesUnparseablePayload(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{
		{http.StatusOK, `not json at all`},
		{http.StatusOK, goodContent},
	})
	var sleeps []time.Duration
	c := testClient(t, s.srv.URL, &sleeps)

	res, err := c.Classify(context.Background(), DecisionRequest{Prompt: "classify this"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Fallback || !res.IsFocus() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sleeps) != 1 {
		t.Fatalf("parse failure must back off before retrying: %v", sleeps)
	}
}

func TestClassifyTruncatesLongEvidence(t *testing.T) {
	long := `{"category":"false","explanation":"e","explanation_summary":"Confidence: 60% | Key Evidence: one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty twentyone"}`
	s := newScriptedServer(t, []cannedResponse{{http.StatusOK, long}})
	c := testClient(t, s.srv.URL, nil)

	res, err := c.Classify(context.Background(), DecisionRequest{Prompt: "classify this"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := "Confidence: 60% | Key Evidence: one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty..."
	if res.ExplanationSummary != want {
		t.Fatalf("summary not truncated:\n got %q\nwant %q", res.ExplanationSummary, want)
	}
	if res.Confidence != 60 {
		t.Fatalf("confidence lost in truncation: %d", res.Confidence)
	}
}

func TestClassifyEmptyPrompt(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:0", nil)
	if _, err := c.Classify(context.Background(), DecisionRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// #endregion classify

// #region classify-query

func TestClassifyQuery(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{
		{http.StatusOK, `{"category":"focus","explanation":"educational query"}`},
	})
	c := testClient(t, s.srv.URL, nil)

	res, err := c.ClassifyQuery(context.Background(), "how compilers work")
	if err != nil {
		t.Fatalf("ClassifyQuery: %v", err)
	}
	if res.Category != "focus" || res.Fallback {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClassifyQueryExhaustionFallsBack(t *testing.T) {
	s := newScriptedServer(t, []cannedResponse{
		{http.StatusTooManyRequests, ""},
		{http.StatusTooManyRequests, ""},
		{http.StatusTooManyRequests, ""},
	})
	var sleeps []time.Duration
	c := testClient(t, s.srv.URL, &sleeps)

	res, err := c.ClassifyQuery(context.Background(), "anything")
	if err != nil {
		t.Fatalf("ClassifyQuery: %v", err)
	}
	if !res.Fallback || res.Category != "regular" {
		t.Fatalf("unexpected fallback shape: %+v", res)
	}
}

func TestClassifyQueryEmpty(t *testing.T) {
	c := testClient(t, "http://127.0.0.1:0", nil)
	if _, err := c.ClassifyQuery(context.Background(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

// #endregion classify-query
