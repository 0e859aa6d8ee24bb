// Package progression implements the time-driven stage state machine.
// Stage boundaries derive purely from timestamps, so evaluation is
// idempotent and safe to run on every inbound request.
package progression

// #region imports
import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scuhci/focusmode-backend/internal/participant"
	"github.com/scuhci/focusmode-backend/internal/stagewindow"
)

// #endregion

// #region status

// Status is the caller-facing outcome of one stage evaluation.
type Status struct {
	ParticipantID    string `json:"participant_id"`
	CurrentStage     int    `json:"current_stage"`
	CurrentWeek      int    `json:"current_week"`
	IsStageChanged   bool   `json:"is_stage_changed"`
	IsStudyCompleted bool   `json:"is_study_completed"`
	Message          string `json:"message"`
}

// #endregion status

// #region transition

// Transition is the pure decision computed from a record, before any
// store mutation.
type Transition struct {
	NewStage        int
	CompletedStages []int // full completed list after the transition
	Mutates         bool
	StageChanged    bool
	StudyCompleted  bool
	Message         string
}

// #endregion transition

// #region evaluate

// Evaluate computes the stage transition for a record from its own
// last-active timestamp. It never mutates the record.
func Evaluate(rec participant.Record) (Transition, error) {
	if rec.CurrentStage != stagewindow.NoStage &&
		stagewindow.PositionOf(rec.StageSequence, rec.CurrentStage) < 0 {
		return Transition{}, fmt.Errorf("%w: current stage %d absent from sequence",
			participant.ErrCorruptState, rec.CurrentStage)
	}

	computed := stagewindow.ComputedStage(rec.StageSequence, rec.StageStartTimes, rec.LastActiveTime)
	over := stagewindow.StudyOver(rec.StageSequence, rec.StageStartTimes, rec.LastActiveTime)

	switch {
	case rec.CurrentStage == stagewindow.NoStage && computed == stagewindow.NoStage:
		return Transition{
			NewStage:        stagewindow.NoStage,
			CompletedStages: rec.CompletedStages,
			Message:         "no stage yet",
		}, nil

	case rec.CurrentStage == stagewindow.NoStage:
		// First activation: enter the first stage of the sequence without
		// marking anything completed.
		return Transition{
			NewStage:        rec.StageSequence[0],
			CompletedStages: rec.CompletedStages,
			Mutates:         true,
			StageChanged:    true,
			Message:         "first stage started",
		}, nil

	case over:
		// Repeat calls after completion must stay no-ops: only append the
		// outgoing stage on the call that actually moves the pointer.
		completed := rec.CompletedStages
		if computed != rec.CurrentStage {
			completed = appendStage(completed, rec.CurrentStage)
		}
		return Transition{
			NewStage:        computed,
			CompletedStages: completed,
			Mutates:         computed != rec.CurrentStage,
			StageChanged:    computed != rec.CurrentStage,
			StudyCompleted:  true,
			Message:         "study completed",
		}, nil

	case computed != rec.CurrentStage:
		return Transition{
			NewStage:        computed,
			CompletedStages: appendStage(rec.CompletedStages, rec.CurrentStage),
			Mutates:         true,
			StageChanged:    true,
			Message:         "advanced to next stage",
		}, nil

	default:
		return Transition{
			NewStage:        rec.CurrentStage,
			CompletedStages: rec.CompletedStages,
			Message:         "no change: still within current stage window",
		}, nil
	}
}

func appendStage(completed []int, stage int) []int {
	out := make([]int, len(completed), len(completed)+1)
	copy(out, completed)
	return append(out, stage)
}

// #endregion evaluate

// #region engine

// Engine applies stage transitions against the participant store.
type Engine struct {
	store *participant.Store
	log   zerolog.Logger
}

// NewEngine creates an engine backed by the given store.
func NewEngine(store *participant.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log.With().Str("component", "progression").Logger()}
}

// #endregion engine

// #region advance

// advanceAttempts bounds the evaluate/apply loop when a concurrent call
// wins the conditional update. The re-read converges because both
// callers compute from the same timestamps.
const advanceAttempts = 2

// Advance evaluates the participant's stage and applies the transition
// exactly once. Re-invocation with an unchanged last-active time is a
// true no-op.
func (e *Engine) Advance(ctx context.Context, participantID string) (Status, error) {
	var status Status

	for attempt := 0; attempt < advanceAttempts; attempt++ {
		rec, err := e.store.Get(ctx, participantID)
		if err != nil {
			return Status{}, err
		}

		tr, err := Evaluate(rec)
		if err != nil {
			return Status{}, err
		}

		if tr.Mutates {
			applied, err := e.store.ApplyTransition(ctx, participantID, rec.CurrentStage, tr.NewStage, tr.CompletedStages)
			if err != nil {
				return Status{}, err
			}
			if !applied {
				// Lost the conditional update to a concurrent call; re-read
				// and recompute. The second pass normally lands on no-change.
				e.log.Debug().Str("participant", participantID).Msg("transition guard failed, retrying")
				continue
			}
			e.log.Info().
				Str("participant", participantID).
				Int("from", rec.CurrentStage).
				Int("to", tr.NewStage).
				Bool("study_completed", tr.StudyCompleted).
				Msg(tr.Message)
		}

		week := 0
		if tr.NewStage != stagewindow.NoStage {
			pos := stagewindow.PositionOf(rec.StageSequence, tr.NewStage)
			if pos < 0 {
				return Status{}, fmt.Errorf("%w: stage %d absent from sequence",
					participant.ErrCorruptState, tr.NewStage)
			}
			week = pos + 1
		}

		status = Status{
			ParticipantID:    participantID,
			CurrentStage:     tr.NewStage,
			CurrentWeek:      week,
			IsStageChanged:   tr.StageChanged,
			IsStudyCompleted: tr.StudyCompleted,
			Message:          tr.Message,
		}
		return status, nil
	}

	// Both passes lost the guard; report the stored state as-is.
	rec, err := e.store.Get(ctx, participantID)
	if err != nil {
		return Status{}, err
	}
	week, err := rec.CurrentWeek()
	if err != nil {
		return Status{}, err
	}
	return Status{
		ParticipantID: participantID,
		CurrentStage:  rec.CurrentStage,
		CurrentWeek:   week,
		Message:       "no change: still within current stage window",
	}, nil
}

// #endregion advance
