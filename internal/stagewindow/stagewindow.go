// Package stagewindow holds the pure timestamp arithmetic behind stage
// progression: converting an enrollment time into per-stage window start
// times and mapping an activity timestamp back onto a stage.
package stagewindow

import (
	"time"
)

// #region constants

// StageDuration is how long each stage window stays open once it begins.
const StageDuration = 7 * 24 * time.Hour

// NoStage is the sentinel for "no stage window has opened yet".
const NoStage = 0

// #endregion constants

// #region start-times

// StartTimes computes the window start time for every stage in sequence
// order: enrollment plus seven days per preceding stage.
func StartTimes(enrolledAt time.Time, sequence []int) map[int]time.Time {
	starts := make(map[int]time.Time, len(sequence))
	for i, stage := range sequence {
		starts[stage] = enrolledAt.Add(time.Duration(i) * StageDuration)
	}
	return starts
}

// #endregion start-times

// #region computed-stage

// ComputedStage returns the latest stage in sequence order whose window
// has opened by lastActive, or NoStage when none has.
func ComputedStage(sequence []int, starts map[int]time.Time, lastActive time.Time) int {
	computed := NoStage
	for _, stage := range sequence {
		start, ok := starts[stage]
		if !ok {
			continue
		}
		if !start.After(lastActive) {
			computed = stage
		}
	}
	return computed
}

// #endregion computed-stage

// #region study-over

// StudyOver reports whether the final stage's window has fully elapsed
// by lastActive. False when the sequence is empty or the final stage has
// no recorded start.
func StudyOver(sequence []int, starts map[int]time.Time, lastActive time.Time) bool {
	if len(sequence) == 0 {
		return false
	}
	last, ok := starts[sequence[len(sequence)-1]]
	if !ok {
		return false
	}
	return !lastActive.Before(last.Add(StageDuration))
}

// #endregion study-over

// #region position

// PositionOf returns the 0-based index of stage within sequence, or -1
// when absent.
func PositionOf(sequence []int, stage int) int {
	for i, s := range sequence {
		if s == stage {
			return i
		}
	}
	return -1
}

// #endregion position
