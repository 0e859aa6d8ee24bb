// Package judgment builds decision requests from extracted event
// context and submits them to the external judgment service with
// bounded retries and deterministic fallback semantics.
package judgment

// #region imports
import (
	"errors"
	"time"
)

// #endregion

// #region errors

// ErrInvalidInput means the caller supplied a malformed or empty
// decision context. Caller fault: never retried.
var ErrInvalidInput = errors.New("invalid classification input")

// #endregion errors

// #region result

// Result is the terminal outcome of one classification. Ephemeral:
// only the category is persisted, as the entry's focus label.
type Result struct {
	Category           string `json:"category"` // "true" | "false"
	Explanation        string `json:"explanation"`
	ExplanationSummary string `json:"explanation_summary"`
	Confidence         int    `json:"confidence"` // percentage
	Fallback           bool   `json:"-"`
}

// IsFocus reports whether the judgment labeled the event as focus mode.
func (r Result) IsFocus() bool {
	return r.Category == "true"
}

// #endregion result

// #region signals

// Signals are the ten advisory booleans embedded as structured context
// in the decision request. The judgment service makes the final call;
// these are hints, not rules applied locally.
type Signals struct {
	PriorPositiveLabel        bool // any prior session entry was labeled focus
	CategoryRepeated          bool // current category appears at least twice in the three priors
	CategoryPreferred         bool // category is in the participant's focus preference set
	LongDescriptionKeywordHit bool // description over 50 words with a keyword hit
	Subscribed                bool // participant subscribes to the channel
	FromSearchSurface         bool // navigation intent came from a search page
	FromChannelSurface        bool // navigation intent came from a channel page
	TitleKeywordHit           bool // whole-word keyword hit in the title
	DescriptionKeywordHit     bool // whole-word keyword hit in the description
	SessionHasHistory         bool // session already contains prior entries
}

// #endregion signals

// #region backoff

// BackoffFunc maps a 0-based attempt index to the wait before the next
// attempt.
type BackoffFunc func(attempt int) time.Duration

// ExponentialBackoff waits 2^attempt seconds: 1s after the first
// failed attempt, 2s after the second.
func ExponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// ZeroBackoff never waits. Test use.
func ZeroBackoff(int) time.Duration { return 0 }

// #endregion backoff
