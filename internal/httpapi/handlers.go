package httpapi

// #region imports
import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scuhci/focusmode-backend/internal/allowlist"
	"github.com/scuhci/focusmode-backend/internal/judgment"
	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/pipeline"
	"github.com/scuhci/focusmode-backend/internal/progression"
)

// #endregion

// #region handler

// Handler owns the thin HTTP endpoints. All study logic lives in the
// packages it delegates to.
type Handler struct {
	allow        *allowlist.Store
	participants *participant.Store
	engine       *progression.Engine
	pipe         *pipeline.Pipeline
	judge        *judgment.Client
	now          func() time.Time
	log          zerolog.Logger
}

// NewHandler wires the endpoint handler.
func NewHandler(
	allow *allowlist.Store,
	participants *participant.Store,
	engine *progression.Engine,
	pipe *pipeline.Pipeline,
	judge *judgment.Client,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		allow:        allow,
		participants: participants,
		engine:       engine,
		pipe:         pipe,
		judge:        judge,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log.With().Str("component", "httpapi").Logger(),
	}
}

// WithClock overrides the wall clock. Test use.
func (h *Handler) WithClock(now func() time.Time) *Handler {
	h.now = now
	return h
}

// #endregion handler

// #region authorize

// authorize enforces the participant allow-list. Writes the response
// itself when the check fails.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, participantID string) bool {
	if participantID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required parameter: id")
		return false
	}
	ok, err := h.allow.Contains(r.Context(), participantID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return false
	}
	return true
}

// #endregion authorize

// #region collect

// Collect is the liveness and allow-list probe.
func (h *Handler) Collect(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !h.authorize(w, r, id) {
		return
	}
	writeJSON(w, http.StatusOK, "Runs!")
}

// #endregion collect

// #region onboard

// Onboard enrolls a participant: a private random stage permutation
// with window start times spaced seven days apart from now.
func (h *Handler) Onboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if !h.authorize(w, r, id) {
		return
	}
	regular := splitList(q.Get("regular_categories"))
	focus := splitList(q.Get("focusmode_categories"))
	if len(regular) == 0 || len(focus) == 0 {
		writeMessage(w, http.StatusBadRequest, "Missing required parameters: regular_categories, focusmode_categories")
		return
	}

	rng := rand.New(rand.NewSource(h.now().UnixNano()))
	rec := progression.NewEnrollment(id, progression.ShuffledSequence(rng), focus, regular, h.now())
	if err := h.participants.Create(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}

	h.log.Info().Str("participant", id).Ints("sequence", rec.StageSequence).Msg("participant onboarded")
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "Onboarded",
		"stage_sequence": rec.StageSequence,
	})
}

// #endregion onboard

// #region stage

// Stage touches the participant's activity and evaluates progression.
func (h *Handler) Stage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if !h.authorize(w, r, id) {
		return
	}

	if err := h.participants.TouchLastActive(r.Context(), id, h.now()); err != nil {
		writeError(w, err)
		return
	}
	status, err := h.engine.Advance(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": status.Message,
		"data":    status,
	})
}

// #endregion stage

// #region categorize

// Categorize classifies a raw search query as focus or regular.
func (h *Handler) Categorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id := q.Get("id")
	if !h.authorize(w, r, id) {
		return
	}
	query := q.Get("query")
	if query == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required parameter: query")
		return
	}

	result, err := h.judge.ClassifyQuery(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// #endregion categorize

// #region watch-time

type watchTimeRequest struct {
	ProlificID string `json:"prolificId"`
	Stage      any    `json:"stage"` // clients send either a number or a string
	WatchTime  int64  `json:"watchTime"`
}

// WatchTime records accumulated watch seconds for one stage and runs
// progression as a side effect of the activity.
func (h *Handler) WatchTime(w http.ResponseWriter, r *http.Request) {
	var req watchTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid POST body. Must be JSON")
		return
	}
	if !h.authorize(w, r, req.ProlificID) {
		return
	}
	stage, ok := stageNumber(req.Stage)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid stage")
		return
	}

	if err := h.participants.TouchLastActive(r.Context(), req.ProlificID, h.now()); err != nil {
		writeError(w, err)
		return
	}
	status, err := h.engine.Advance(r.Context(), req.ProlificID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.participants.SetWatchTime(r.Context(), req.ProlificID, stage, req.WatchTime); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stage_status":         status,
		"stage_status_message": status.Message,
		"message":              "Watch time updated successfully.",
	})
}

// #endregion watch-time

// #region videos

type videoRecordRequest struct {
	ProlificID   string         `json:"prolificId"`
	SessionID    string         `json:"sessionId"`
	VideoID      string         `json:"videoId"`
	Video        map[string]any `json:"video"`
	IntentSource string         `json:"intentSource"`
	Subscribed   bool           `json:"subscribed"`
}

// Videos ingests one consumption event through the full pipeline.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	var req videoRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid POST body. Must be JSON")
		return
	}
	if !h.authorize(w, r, req.ProlificID) {
		return
	}
	if req.SessionID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required field: sessionId")
		return
	}
	if req.Video == nil && req.VideoID == "" {
		writeMessage(w, http.StatusBadRequest, "Missing required field: video or videoId")
		return
	}

	result, err := h.pipe.Ingest(r.Context(), pipeline.VideoEvent{
		ParticipantID: req.ProlificID,
		SessionID:     req.SessionID,
		VideoID:       req.VideoID,
		Video:         req.Video,
		IntentSource:  req.IntentSource,
		Subscribed:    req.Subscribed,
		Timestamp:     h.now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entry_id":             result.EntryID,
		"stage_status":         result.Stage,
		"stage_status_message": result.Stage.Message,
		"classification":       result.Classification,
		"message":              "Video record logged successfully",
	})
}

// #endregion videos

// #region helpers

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stageNumber(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// #endregion helpers
