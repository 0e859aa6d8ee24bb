package entry

// #region imports
import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// #endregion

// #region errors

// ErrNotFound means no entry exists for the requested key.
var ErrNotFound = errors.New("entry not found")

// #endregion errors

// #region back-ref

// BackRef points at one of the up-to-three most recent prior entries in
// the same session: its focus label and resolved category name. Both
// are nil when fewer prior entries exist.
type BackRef struct {
	Focus    *bool
	Category *string
}

// #endregion back-ref

// #region entry

// Entry is one classified content-consumption event. Payload fields are
// immutable after insertion; FocusLabel is written exactly once after
// classification completes.
type Entry struct {
	ParticipantID string
	EntryID       string
	SessionID     string
	Timestamp     time.Time

	Video        map[string]any // nested metadata document, opaque here
	IntentSource string         // navigation surface the event came from
	Subscribed   bool

	Priors [3]BackRef // newest prior first; never self-referential

	FocusLabel *bool
}

// #endregion entry

// #region entry-id

// NewEntryID builds an entry identifier from the event time and a
// 4-digit random suffix, e.g. "1726000000000-4821". The global rand
// source is fine here: the suffix only disambiguates same-millisecond
// inserts.
func NewEntryID(at time.Time) string {
	return fmt.Sprintf("%d-%04d", at.UnixMilli(), 1000+rand.Intn(9000))
}

// #endregion entry-id
