package progression

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/stagewindow"
)

// #region helpers

var enrolled = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func tempEngine(t *testing.T) (*Engine, *participant.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := participant.NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewEngine(s, zerolog.Nop()), s
}

func enrolledRecord(id string, seq []int) participant.Record {
	return NewEnrollment(id, seq, []string{"Education"}, []string{"Music"}, enrolled)
}

// active returns a copy of rec with LastActiveTime moved to enrollment
// plus the given number of days.
func active(rec participant.Record, days float64) participant.Record {
	rec.LastActiveTime = enrolled.Add(time.Duration(days * 24 * float64(time.Hour)))
	return rec
}

// #endregion helpers

// #region evaluate

func TestEvaluateBeforeEnrollmentWindow(t *testing.T) {
	rec := enrolledRecord("p", []int{3, 1, 4, 2})
	rec.LastActiveTime = enrolled.Add(-time.Minute)

	tr, err := Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if tr.Mutates || tr.StageChanged || tr.NewStage != stagewindow.NoStage {
		t.Fatalf("expected a no-op, got %+v", tr)
	}
}

func TestEvaluateFirstActivation(t *testing.T) {
	rec := active(enrolledRecord("p", []int{3, 1, 4, 2}), 0.5)

	tr, err := Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !tr.Mutates || !tr.StageChanged {
		t.Fatalf("first activation must mutate: %+v", tr)
	}
	if tr.NewStage != 3 {
		t.Fatalf("expected first stage 3, got %d", tr.NewStage)
	}
	if len(tr.CompletedStages) != 0 {
		t.Fatalf("first activation completes nothing, got %v", tr.CompletedStages)
	}
}

func TestEvaluateAdvance(t *testing.T) {
	rec := active(enrolledRecord("p", []int{3, 1, 4, 2}), 8)
	rec.CurrentStage = 3

	tr, err := Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if tr.NewStage != 1 {
		t.Fatalf("expected stage 1, got %d", tr.NewStage)
	}
	if len(tr.CompletedStages) != 1 || tr.CompletedStages[0] != 3 {
		t.Fatalf("expected completed [3], got %v", tr.CompletedStages)
	}
	if !tr.StageChanged || tr.StudyCompleted {
		t.Fatalf("unexpected flags: %+v", tr)
	}
}

func TestEvaluateSkipsWindowsAfterAbsence(t *testing.T) {
	// Participant goes quiet during stage 3 and returns in the last window.
	rec := active(enrolledRecord("p", []int{3, 1, 4, 2}), 22)
	rec.CurrentStage = 3

	tr, err := Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if tr.NewStage != 2 {
		t.Fatalf("expected jump to stage 2, got %d", tr.NewStage)
	}
	if len(tr.CompletedStages) != 1 || tr.CompletedStages[0] != 3 {
		t.Fatalf("only the outgoing stage is appended, got %v", tr.CompletedStages)
	}
}

func TestEvaluateStudyCompletion(t *testing.T) {
	rec := active(enrolledRecord("p", []int{3, 1, 4, 2}), 29)
	rec.CurrentStage = 4
	rec.CompletedStages = []int{3, 1}

	tr, err := Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !tr.StudyCompleted {
		t.Fatal("expected study completed")
	}
	if tr.NewStage != 2 {
		t.Fatalf("expected final stage 2, got %d", tr.NewStage)
	}
	if len(tr.CompletedStages) != 3 || tr.CompletedStages[2] != 4 {
		t.Fatalf("expected completed [3 1 4], got %v", tr.CompletedStages)
	}

	// A repeat evaluation of the post-transition state is a pure no-op
	// that still reports completion.
	rec.CurrentStage = tr.NewStage
	rec.CompletedStages = tr.CompletedStages
	again, err := Evaluate(rec)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if again.Mutates || again.StageChanged {
		t.Fatalf("repeat completion call must not mutate: %+v", again)
	}
	if !again.StudyCompleted {
		t.Fatal("repeat call must still report completion")
	}
	if len(again.CompletedStages) != 3 {
		t.Fatalf("completed list must not grow: %v", again.CompletedStages)
	}
}

func TestEvaluateCorruptCurrentStage(t *testing.T) {
	rec := active(enrolledRecord("p", []int{3, 1, 4, 2}), 5)
	rec.CurrentStage = 9

	if _, err := Evaluate(rec); !errors.Is(err, participant.ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
}

// #endregion evaluate

// #region engine

func TestAdvanceFirstActivation(t *testing.T) {
	eng, store := tempEngine(t)
	ctx := context.Background()

	rec := enrolledRecord("p-first", []int{3, 1, 4, 2})
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.TouchLastActive(ctx, "p-first", enrolled.Add(time.Hour)); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}

	st, err := eng.Advance(ctx, "p-first")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.CurrentStage != 3 || st.CurrentWeek != 1 || !st.IsStageChanged {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.IsStudyCompleted {
		t.Fatal("study cannot be completed on first activation")
	}
}

func TestAdvanceIsIdempotent(t *testing.T) {
	eng, store := tempEngine(t)
	ctx := context.Background()

	rec := enrolledRecord("p-idem", []int{3, 1, 4, 2})
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	at := enrolled.Add(8 * 24 * time.Hour)
	if err := store.TouchLastActive(ctx, "p-idem", at); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}

	first, err := eng.Advance(ctx, "p-idem")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if first.CurrentStage != 3 || !first.IsStageChanged {
		t.Fatalf("unexpected activation status: %+v", first)
	}
	second, err := eng.Advance(ctx, "p-idem")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if second.CurrentStage != 1 || !second.IsStageChanged {
		t.Fatalf("unexpected advance status: %+v", second)
	}

	// Same timestamp again: further calls must observe no change.
	for i := 0; i < 3; i++ {
		st, err := eng.Advance(ctx, "p-idem")
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if st.IsStageChanged || st.CurrentStage != 1 {
			t.Fatalf("repeat call %d drifted: %+v", i, st)
		}
	}

	got, err := store.Get(ctx, "p-idem")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.CompletedStages) != 1 || got.CompletedStages[0] != 3 {
		t.Fatalf("completed list must not grow on repeat calls: %v", got.CompletedStages)
	}
}

func TestAdvanceNeverMovesBackward(t *testing.T) {
	eng, store := tempEngine(t)
	ctx := context.Background()

	rec := enrolledRecord("p-mono", []int{3, 1, 4, 2})
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.TouchLastActive(ctx, "p-mono", enrolled.Add(16*24*time.Hour)); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}
	// First call activates stage 3; the next catches up to the open window.
	if _, err := eng.Advance(ctx, "p-mono"); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if _, err := eng.Advance(ctx, "p-mono"); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// Touching with a later time inside the same window keeps the stage.
	if err := store.TouchLastActive(ctx, "p-mono", enrolled.Add(17*24*time.Hour)); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}
	st, err := eng.Advance(ctx, "p-mono")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.CurrentStage != 4 || st.IsStageChanged {
		t.Fatalf("stage must hold within its window: %+v", st)
	}
}

func TestAdvanceUnknownParticipant(t *testing.T) {
	eng, _ := tempEngine(t)
	if _, err := eng.Advance(context.Background(), "nobody"); !errors.Is(err, participant.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// #endregion engine

// #region enrollment

func TestShuffledSequenceIsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		seq := ShuffledSequence(rng)
		if len(seq) != len(StageSet) {
			t.Fatalf("wrong length: %v", seq)
		}
		seen := map[int]bool{}
		for _, s := range seq {
			seen[s] = true
		}
		for _, s := range StageSet {
			if !seen[s] {
				t.Fatalf("stage %d missing from %v", s, seq)
			}
		}
	}
}

func TestNewEnrollmentIsValid(t *testing.T) {
	rec := NewEnrollment("p-enroll", []int{2, 4, 1, 3}, nil, nil, enrolled)
	if err := rec.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.CurrentStage != stagewindow.NoStage {
		t.Fatalf("enrollment must not activate a stage: %d", rec.CurrentStage)
	}
	if !rec.StageStartTimes[2].Equal(enrolled) {
		t.Fatalf("first stage must start at enrollment: %v", rec.StageStartTimes[2])
	}
}

// #endregion enrollment
