// Package pipeline coordinates one inbound consumption event end to
// end: stage progression, history folding, feature extraction,
// judgment, and label persistence.
package pipeline

// #region imports
import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/scuhci/focusmode-backend/internal/audit"
	"github.com/scuhci/focusmode-backend/internal/entry"
	"github.com/scuhci/focusmode-backend/internal/features"
	"github.com/scuhci/focusmode-backend/internal/judgment"
	"github.com/scuhci/focusmode-backend/internal/metadata"
	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/progression"
)

// #endregion

// #region types

// VideoEvent is one inbound consumption event.
type VideoEvent struct {
	ParticipantID string
	SessionID     string
	VideoID       string         // looked up when Video is absent
	Video         map[string]any // pre-fetched metadata document, optional
	IntentSource  string
	Subscribed    bool
	Timestamp     time.Time // zero means "now"
}

// IngestResult is the caller-facing outcome of one ingestion.
type IngestResult struct {
	EntryID        string             `json:"entry_id"`
	Stage          progression.Status `json:"stage_status"`
	Classification judgment.Result    `json:"classification"`
}

// #endregion types

// #region pipeline-struct

// Pipeline owns the per-event control flow. Each invocation is
// stateless; all durable state lives in the stores.
type Pipeline struct {
	participants *participant.Store
	entries      *entry.Store
	engine       *progression.Engine
	extractor    *features.Extractor
	client       *judgment.Client
	lookup       *metadata.Client // may be nil when events carry their own documents
	auditLog     *audit.Log
	now          func() time.Time
	log          zerolog.Logger
}

// New wires a pipeline.
func New(
	participants *participant.Store,
	entries *entry.Store,
	engine *progression.Engine,
	extractor *features.Extractor,
	client *judgment.Client,
	lookup *metadata.Client,
	auditLog *audit.Log,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		participants: participants,
		entries:      entries,
		engine:       engine,
		extractor:    extractor,
		client:       client,
		lookup:       lookup,
		auditLog:     auditLog,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// WithClock overrides the wall clock. Test use.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// #endregion pipeline-struct

// #region ingest

// Ingest runs the whole event flow. Progression failures abort the
// request; classification failures never do, they degrade to the
// deterministic fallback so the caller always gets a result.
func (p *Pipeline) Ingest(ctx context.Context, ev VideoEvent) (IngestResult, error) {
	at := ev.Timestamp
	if at.IsZero() {
		at = p.now()
	}

	// Stage bookkeeping first: no classification without a valid stage
	// context.
	if err := p.participants.TouchLastActive(ctx, ev.ParticipantID, at); err != nil {
		return IngestResult{}, err
	}
	status, err := p.engine.Advance(ctx, ev.ParticipantID)
	if err != nil {
		return IngestResult{}, err
	}
	rec, err := p.participants.Get(ctx, ev.ParticipantID)
	if err != nil {
		return IngestResult{}, err
	}

	video := ev.Video
	if video == nil && ev.VideoID != "" && p.lookup != nil {
		video, err = p.lookup.Lookup(ctx, ev.VideoID)
		if err != nil {
			return IngestResult{}, err
		}
	}

	// History folds from already-committed prior entries only, so a
	// racing ingest can at worst miss a sibling, never reference itself.
	priors, err := p.entries.RecentPriors(ctx, ev.ParticipantID, ev.SessionID, at, 3)
	if err != nil {
		return IngestResult{}, err
	}
	refs, err := p.extractor.FoldHistory(ctx, priors)
	if err != nil {
		return IngestResult{}, err
	}

	e := entry.Entry{
		ParticipantID: ev.ParticipantID,
		EntryID:       entry.NewEntryID(at),
		SessionID:     ev.SessionID,
		Timestamp:     at,
		Video:         video,
		IntentSource:  ev.IntentSource,
		Subscribed:    ev.Subscribed,
		Priors:        refs,
	}
	if err := p.entries.Insert(ctx, e); err != nil {
		return IngestResult{}, err
	}

	fields, err := p.extractor.Extract(ctx, e)
	if err != nil {
		return IngestResult{}, err
	}

	signals := judgment.ComputeSignals(e, fields, rec.FocusCategories)
	req, err := judgment.BuildDecisionRequest(fields, signals, rec.FocusCategories)
	if err != nil {
		return IngestResult{}, err
	}

	result, err := p.client.Classify(ctx, req)
	if err != nil {
		return IngestResult{}, err
	}

	applied, err := p.entries.SetFocusLabel(ctx, ev.ParticipantID, e.EntryID, result.IsFocus())
	if err != nil {
		return IngestResult{}, err
	}
	if !applied {
		p.log.Warn().Str("entry", e.EntryID).Msg("focus label was already set")
	}

	if err := p.auditLog.Record(ctx, audit.Entry{
		ParticipantID: ev.ParticipantID,
		EntryID:       e.EntryID,
		Category:      result.Category,
		Confidence:    result.Confidence,
		Fallback:      result.Fallback,
		Summary:       result.ExplanationSummary,
		CreatedAt:     at,
	}); err != nil {
		// The label is already durable; a lost audit row is not worth
		// failing the request over.
		p.log.Error().Err(err).Str("entry", e.EntryID).Msg("audit record failed")
	}

	return IngestResult{
		EntryID:        e.EntryID,
		Stage:          status,
		Classification: result,
	}, nil
}

// #endregion ingest
