package progression

// #region imports
import (
	"math/rand"
	"time"

	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/stagewindow"
)

// #endregion

// #region stage-set

// StageSet is the fixed set of study stages every participant passes
// through, in canonical order. Each participant receives a private
// random permutation of it at enrollment.
var StageSet = []int{1, 2, 3, 4}

// #endregion stage-set

// #region shuffled-sequence

// ShuffledSequence returns a fresh random permutation of StageSet.
func ShuffledSequence(rng *rand.Rand) []int {
	seq := make([]int, len(StageSet))
	copy(seq, StageSet)
	rng.Shuffle(len(seq), func(i, j int) {
		seq[i], seq[j] = seq[j], seq[i]
	})
	return seq
}

// #endregion shuffled-sequence

// #region new-enrollment

// NewEnrollment builds the participant record created at enrollment:
// the given stage sequence with window start times spaced one stage
// duration apart, starting at enrolledAt.
func NewEnrollment(participantID string, sequence []int, focusCategories, regularCategories []string, enrolledAt time.Time) participant.Record {
	return participant.Record{
		ParticipantID:     participantID,
		StageSequence:     sequence,
		StageStartTimes:   stagewindow.StartTimes(enrolledAt, sequence),
		CurrentStage:      stagewindow.NoStage,
		CompletedStages:   []int{},
		LastActiveTime:    enrolledAt,
		FocusCategories:   focusCategories,
		RegularCategories: regularCategories,
		StageWatchTimes:   map[int]int64{},
		CreatedAt:         enrolledAt,
	}
}

// #endregion new-enrollment
