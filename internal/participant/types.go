package participant

// #region imports
import (
	"errors"
	"fmt"
	"time"

	"github.com/scuhci/focusmode-backend/internal/stagewindow"
)

// #endregion

// #region errors

// ErrNotFound means no record exists for the requested participant.
var ErrNotFound = errors.New("participant not found")

// ErrCorruptState means a stored record violates its own invariants.
// It is fatal for the request and must never be silently defaulted.
var ErrCorruptState = errors.New("corrupt participant state")

// ErrAlreadyEnrolled means an enrollment was attempted for an existing record.
var ErrAlreadyEnrolled = errors.New("participant already enrolled")

// #endregion errors

// #region record

// Record is the durable per-participant study state.
type Record struct {
	ParticipantID     string
	StageSequence     []int             // permutation of the stage set, fixed at enrollment
	StageStartTimes   map[int]time.Time // stage -> window start, 7 days apart in sequence order
	CurrentStage      int               // 0 = not yet activated
	CompletedStages   []int             // append-only, prefix-consistent with StageSequence
	LastActiveTime    time.Time
	FocusCategories   []string
	RegularCategories []string
	StageWatchTimes   map[int]int64 // stage -> accumulated watch seconds
	CreatedAt         time.Time
}

// #endregion record

// #region validate

// Validate checks the structural invariants of a record loaded from the
// store. Violations surface as ErrCorruptState.
func (r Record) Validate() error {
	if r.ParticipantID == "" {
		return fmt.Errorf("%w: empty participant id", ErrCorruptState)
	}
	if len(r.StageSequence) == 0 {
		return fmt.Errorf("%w: empty stage sequence", ErrCorruptState)
	}
	if len(r.StageStartTimes) != len(r.StageSequence) {
		return fmt.Errorf("%w: %d start times for %d stages",
			ErrCorruptState, len(r.StageStartTimes), len(r.StageSequence))
	}

	seen := make(map[int]bool, len(r.StageSequence))
	var prev time.Time
	for i, stage := range r.StageSequence {
		if seen[stage] {
			return fmt.Errorf("%w: stage %d repeats in sequence", ErrCorruptState, stage)
		}
		seen[stage] = true

		start, ok := r.StageStartTimes[stage]
		if !ok {
			return fmt.Errorf("%w: stage %d has no start time", ErrCorruptState, stage)
		}
		if start.IsZero() {
			return fmt.Errorf("%w: stage %d has a zero start time", ErrCorruptState, stage)
		}
		// Start times must be strictly increasing, spaced exactly one window apart.
		if i > 0 && start.Sub(prev) != stagewindow.StageDuration {
			return fmt.Errorf("%w: stage %d starts %s after its predecessor",
				ErrCorruptState, stage, start.Sub(prev))
		}
		prev = start
	}

	if r.CurrentStage != stagewindow.NoStage && !seen[r.CurrentStage] {
		return fmt.Errorf("%w: current stage %d absent from sequence", ErrCorruptState, r.CurrentStage)
	}

	// Completed stages must form a duplicate-free prefix of the sequence.
	if len(r.CompletedStages) > len(r.StageSequence) {
		return fmt.Errorf("%w: %d completed stages for a %d-stage sequence",
			ErrCorruptState, len(r.CompletedStages), len(r.StageSequence))
	}
	for i, stage := range r.CompletedStages {
		if stage != r.StageSequence[i] {
			return fmt.Errorf("%w: completed stage %d at position %d breaks sequence order",
				ErrCorruptState, stage, i)
		}
	}

	return nil
}

// #endregion validate

// #region accessors

// CurrentWeek returns the 1-based position of the current stage within
// the sequence, or 0 when no stage has activated yet. A current stage
// missing from its own sequence is ErrCorruptState.
func (r Record) CurrentWeek() (int, error) {
	if r.CurrentStage == stagewindow.NoStage {
		return 0, nil
	}
	pos := stagewindow.PositionOf(r.StageSequence, r.CurrentStage)
	if pos < 0 {
		return 0, fmt.Errorf("%w: current stage %d absent from sequence", ErrCorruptState, r.CurrentStage)
	}
	return pos + 1, nil
}

// #endregion accessors
