package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scuhci/focusmode-backend/internal/allowlist"
	"github.com/scuhci/focusmode-backend/internal/audit"
	"github.com/scuhci/focusmode-backend/internal/categories"
	"github.com/scuhci/focusmode-backend/internal/config"
	"github.com/scuhci/focusmode-backend/internal/entry"
	"github.com/scuhci/focusmode-backend/internal/features"
	"github.com/scuhci/focusmode-backend/internal/judgment"
	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/pipeline"
	"github.com/scuhci/focusmode-backend/internal/progression"
)

// #region fixture

var now = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type api struct {
	router       http.Handler
	participants *participant.Store
}

// newAPI wires the full HTTP surface against temp stores, a miniredis
// allow-list seeded with "p-allowed", and a judgment server that always
// answers with a focus decision.
func newAPI(t *testing.T) *api {
	t.Helper()

	dir := t.TempDir()
	participants, err := participant.NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("participant.NewStore: %v", err)
	}
	t.Cleanup(func() { participants.Close() })

	entries, err := entry.NewStore(participants.DB())
	if err != nil {
		t.Fatalf("entry.NewStore: %v", err)
	}
	auditLog, err := audit.NewLog(participants.DB())
	if err != nil {
		t.Fatalf("audit.NewLog: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	allow := allowlist.NewStoreWithClient(rdb)
	if err := allow.Add(context.Background(), "p-allowed"); err != nil {
		t.Fatalf("seed allowlist: %v", err)
	}

	// The stub answers with whichever payload shape the request's strict
	// schema asked for.
	judgeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := `{"category":"true","explanation":"focus","explanation_summary":"Confidence: 80% | Key Evidence: study"}`
		var req map[string]any
		if json.NewDecoder(r.Body).Decode(&req) == nil && !wantsSummaryField(req) {
			content = `{"category":"focus","explanation":"educational query"}`
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}))
	t.Cleanup(judgeSrv.Close)

	judge := judgment.NewClient(judgment.Config{
		BaseURL: judgeSrv.URL,
		Backoff: judgment.ZeroBackoff,
		Sleep:   func(time.Duration) {},
	}, zerolog.Nop())

	extractor := features.NewExtractor(categories.NewCached(categories.Static{"27": "Education"}))
	engine := progression.NewEngine(participants, zerolog.Nop())
	pipe := pipeline.New(participants, entries, engine, extractor, judge, nil, auditLog, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	h := NewHandler(allow, participants, engine, pipe, judge, zerolog.Nop()).
		WithClock(func() time.Time { return now })

	return &api{
		router:       NewRouter(h, &config.Config{}),
		participants: participants,
	}
}

func (a *api) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (a *api) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	a.router.ServeHTTP(rec, req)
	return rec
}

// wantsSummaryField reports whether the chat request's response schema
// requires the explanation_summary field.
func wantsSummaryField(req map[string]any) bool {
	format, _ := req["response_format"].(map[string]any)
	schema, _ := format["json_schema"].(map[string]any)
	inner, _ := schema["schema"].(map[string]any)
	required, _ := inner["required"].([]any)
	for _, f := range required {
		if f == "explanation_summary" {
			return true
		}
	}
	return false
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func (a *api) onboard(t *testing.T, id string) {
	t.Helper()
	rec := a.get(t, "/onboard?id="+id+"&regular_categories=Music&focusmode_categories=Education")
	if rec.Code != http.StatusOK {
		t.Fatalf("onboard failed: %d %s", rec.Code, rec.Body.String())
	}
}

// #endregion fixture

// #region auth

func TestCollect(t *testing.T) {
	a := newAPI(t)

	rec := a.get(t, "/collect?id=p-allowed")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = a.get(t, "/collect?id=p-stranger")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for stranger, got %d", rec.Code)
	}

	rec = a.get(t, "/collect")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing id, got %d", rec.Code)
	}
}

// #endregion auth

// #region onboard

func TestOnboard(t *testing.T) {
	a := newAPI(t)

	rec := a.get(t, "/onboard?id=p-allowed&regular_categories=Music%3BGaming&focusmode_categories=Education")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	seq, ok := body["stage_sequence"].([]any)
	if !ok || len(seq) != 4 {
		t.Fatalf("expected a 4-stage sequence, got %v", body["stage_sequence"])
	}

	// A second onboarding conflicts.
	rec = a.get(t, "/onboard?id=p-allowed&regular_categories=Music&focusmode_categories=Education")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeat onboarding, got %d", rec.Code)
	}
}

func TestOnboardMissingCategories(t *testing.T) {
	a := newAPI(t)
	rec := a.get(t, "/onboard?id=p-allowed&regular_categories=Music")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

// #endregion onboard

// #region stage

func TestStage(t *testing.T) {
	a := newAPI(t)
	a.onboard(t, "p-allowed")

	rec := a.get(t, "/stage?id=p-allowed")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data envelope: %v", body)
	}
	// Activity at onboarding time activates the first stage.
	if data["is_stage_changed"] != true {
		t.Fatalf("first stage call must report a change: %v", data)
	}
	if data["current_week"] != float64(1) {
		t.Fatalf("first stage is week 1: %v", data)
	}
	if data["is_study_completed"] != false {
		t.Fatalf("study cannot be complete at onboarding: %v", data)
	}
}

func TestStageUnknownParticipant(t *testing.T) {
	a := newAPI(t)
	// Allow-listed but never onboarded.
	rec := a.get(t, "/stage?id=p-allowed")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for un-onboarded participant, got %d", rec.Code)
	}
}

// #endregion stage

// #region categorize

func TestCategorize(t *testing.T) {
	a := newAPI(t)

	rec := a.get(t, "/categorize?id=p-allowed&query=how+compilers+work")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["category"] != "focus" {
		t.Fatalf("unexpected category: %v", body)
	}

	rec = a.get(t, "/categorize?id=p-allowed")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing query, got %d", rec.Code)
	}
}

// #endregion categorize

// #region watch-time

func TestWatchTime(t *testing.T) {
	a := newAPI(t)
	a.onboard(t, "p-allowed")

	rec := a.post(t, "/watchtime", `{"prolificId":"p-allowed","stage":2,"watchTime":340}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] != "Watch time updated successfully." {
		t.Fatalf("unexpected message: %v", body)
	}

	got, err := a.participants.Get(context.Background(), "p-allowed")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StageWatchTimes[2] != 340 {
		t.Fatalf("watch time not persisted: %v", got.StageWatchTimes)
	}
}

func TestWatchTimeStringStage(t *testing.T) {
	a := newAPI(t)
	a.onboard(t, "p-allowed")

	// Some clients send the stage as a string.
	rec := a.post(t, "/watchtime", `{"prolificId":"p-allowed","stage":"3","watchTime":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}

	got, err := a.participants.Get(context.Background(), "p-allowed")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StageWatchTimes[3] != 10 {
		t.Fatalf("watch time not persisted: %v", got.StageWatchTimes)
	}
}

func TestWatchTimeBadBody(t *testing.T) {
	a := newAPI(t)

	rec := a.post(t, "/watchtime", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rec.Code)
	}

	rec = a.post(t, "/watchtime", `{"prolificId":"p-allowed","stage":true,"watchTime":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid stage, got %d", rec.Code)
	}
}

// #endregion watch-time

// #region videos

func TestVideos(t *testing.T) {
	a := newAPI(t)
	a.onboard(t, "p-allowed")

	rec := a.post(t, "/videos", `{
		"prolificId": "p-allowed",
		"sessionId": "s1",
		"video": {"snippet": {"title": "Compilers lecture", "categoryId": "27"}},
		"intentSource": "home_page",
		"subscribed": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["entry_id"] == "" || body["entry_id"] == nil {
		t.Fatalf("missing entry id: %v", body)
	}
	cls, ok := body["classification"].(map[string]any)
	if !ok || cls["category"] != "true" {
		t.Fatalf("unexpected classification: %v", body)
	}
}

func TestVideosMissingFields(t *testing.T) {
	a := newAPI(t)
	a.onboard(t, "p-allowed")

	rec := a.post(t, "/videos", `{"prolificId":"p-allowed","video":{"snippet":{}}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing sessionId, got %d", rec.Code)
	}

	rec = a.post(t, "/videos", `{"prolificId":"p-allowed","sessionId":"s1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing video, got %d", rec.Code)
	}
}

// #endregion videos
