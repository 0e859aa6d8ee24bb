package entry

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS preference_entries (
	participant_id   TEXT NOT NULL,
	entry_id         TEXT NOT NULL,
	session_id       TEXT NOT NULL,
	ts               TEXT NOT NULL,
	video_json       TEXT NOT NULL,
	intent_source    TEXT NOT NULL,
	subscribed       INTEGER NOT NULL,
	prior_focus_1    INTEGER,
	prior_category_1 TEXT,
	prior_focus_2    INTEGER,
	prior_category_2 TEXT,
	prior_focus_3    INTEGER,
	prior_category_3 TEXT,
	focus_label      INTEGER,
	PRIMARY KEY (participant_id, entry_id)
);

CREATE INDEX IF NOT EXISTS idx_entries_session
	ON preference_entries (participant_id, session_id, ts);
`

// #endregion schema

// #region store-struct

// Store persists preference entries in SQLite. It shares the database
// connection owned by the participant store.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore runs the entry schema against a shared database handle.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate entries: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region insert

// Insert stores a new entry. Payload fields are immutable afterwards.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	videoJSON, err := json.Marshal(e.Video)
	if err != nil {
		return fmt.Errorf("marshal video payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO preference_entries (participant_id, entry_id, session_id, ts,
		   video_json, intent_source, subscribed,
		   prior_focus_1, prior_category_1,
		   prior_focus_2, prior_category_2,
		   prior_focus_3, prior_category_3,
		   focus_label)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ParticipantID, e.EntryID, e.SessionID, e.Timestamp.Format(time.RFC3339Nano),
		string(videoJSON), e.IntentSource, boolToInt(e.Subscribed),
		nullableBool(e.Priors[0].Focus), nullableString(e.Priors[0].Category),
		nullableBool(e.Priors[1].Focus), nullableString(e.Priors[1].Category),
		nullableBool(e.Priors[2].Focus), nullableString(e.Priors[2].Category),
		nullableBool(e.FocusLabel),
	)
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", e.EntryID, err)
	}
	return nil
}

// #endregion insert

// #region recent-priors

// RecentPriors returns up to limit already-committed entries for the
// same participant and session, strictly before the given timestamp,
// newest first. A new entry folding this history can therefore never
// reference itself.
func (s *Store) RecentPriors(ctx context.Context, participantID, sessionID string, before time.Time, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, entry_id, session_id, ts, video_json, intent_source, subscribed,
		        prior_focus_1, prior_category_1, prior_focus_2, prior_category_2,
		        prior_focus_3, prior_category_3, focus_label
		 FROM preference_entries
		 WHERE participant_id = ? AND session_id = ? AND ts < ?
		 ORDER BY ts DESC
		 LIMIT ?`,
		participantID, sessionID, before.Format(time.RFC3339Nano), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query priors: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion recent-priors

// #region get

// Get loads one entry by its composite key.
func (s *Store) Get(ctx context.Context, participantID, entryID string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT participant_id, entry_id, session_id, ts, video_json, intent_source, subscribed,
		        prior_focus_1, prior_category_1, prior_focus_2, prior_category_2,
		        prior_focus_3, prior_category_3, focus_label
		 FROM preference_entries
		 WHERE participant_id = ? AND entry_id = ?`,
		participantID, entryID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get entry %s: %w", entryID, err)
	}
	return e, nil
}

// #endregion get

// #region set-focus-label

// SetFocusLabel writes the classification outcome once. The write is
// guarded on the label still being unset, so a racing duplicate never
// overwrites the first outcome. Returns whether this call applied it.
func (s *Store) SetFocusLabel(ctx context.Context, participantID, entryID string, label bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE preference_entries SET focus_label = ?
		 WHERE participant_id = ? AND entry_id = ? AND focus_label IS NULL`,
		boolToInt(label), participantID, entryID,
	)
	if err != nil {
		return false, fmt.Errorf("set focus label: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	// Distinguish "already labeled" from "no such entry".
	var exists int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM preference_entries WHERE participant_id = ? AND entry_id = ?`,
		participantID, entryID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check entry: %w", err)
	}
	if exists == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

// #endregion set-focus-label

// #region scanning

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var (
		e          Entry
		tsStr      string
		videoJSON  string
		subscribed int
		pf         [3]sql.NullInt64
		pc         [3]sql.NullString
		label      sql.NullInt64
	)

	err := r.Scan(&e.ParticipantID, &e.EntryID, &e.SessionID, &tsStr, &videoJSON,
		&e.IntentSource, &subscribed,
		&pf[0], &pc[0], &pf[1], &pc[1], &pf[2], &pc[2], &label)
	if err != nil {
		return Entry{}, err
	}

	e.Timestamp, err = time.Parse(time.RFC3339Nano, tsStr)
	if err != nil {
		return Entry{}, fmt.Errorf("parse entry timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(videoJSON), &e.Video); err != nil {
		return Entry{}, fmt.Errorf("unmarshal video payload: %w", err)
	}
	e.Subscribed = subscribed != 0

	for i := 0; i < 3; i++ {
		if pf[i].Valid {
			v := pf[i].Int64 != 0
			e.Priors[i].Focus = &v
		}
		if pc[i].Valid {
			v := pc[i].String
			e.Priors[i].Category = &v
		}
	}
	if label.Valid {
		v := label.Int64 != 0
		e.FocusLabel = &v
	}

	return e, nil
}

// #endregion scanning

// #region helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// #endregion helpers
