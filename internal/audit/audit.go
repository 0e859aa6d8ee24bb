// Package audit keeps a per-decision log of classification outcomes in
// the study database, so every focus label can be traced back to the
// attempt count and fallback status that produced it.
package audit

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS classification_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	participant_id TEXT NOT NULL,
	entry_id       TEXT NOT NULL,
	category       TEXT NOT NULL,
	confidence     INTEGER NOT NULL,
	fallback       INTEGER NOT NULL,
	summary        TEXT,
	created_at     TEXT NOT NULL
);
`

// #endregion schema

// #region entry

// Entry is one row of the classification log.
type Entry struct {
	ParticipantID string
	EntryID       string
	Category      string
	Confidence    int
	Fallback      bool
	Summary       string
	CreatedAt     time.Time
}

// #endregion entry

// #region log

// Log writes classification outcomes to the shared study database.
type Log struct {
	db *sql.DB
}

// NewLog runs the audit schema against a shared database handle.
func NewLog(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate audit log: %w", err)
	}
	return &Log{db: db}, nil
}

// Record appends one decision to the log.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	fallback := 0
	if e.Fallback {
		fallback = 1
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO classification_log (participant_id, entry_id, category, confidence, fallback, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ParticipantID, e.EntryID, e.Category, e.Confidence, fallback,
		nullIfEmpty(e.Summary), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record classification: %w", err)
	}
	return nil
}

// List returns the most recent decisions for one participant, newest
// first.
func (l *Log) List(ctx context.Context, participantID string, last int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT participant_id, entry_id, category, confidence, fallback, summary, created_at
		 FROM classification_log
		 WHERE participant_id = ?
		 ORDER BY id DESC
		 LIMIT ?`, participantID, last,
	)
	if err != nil {
		return nil, fmt.Errorf("list classifications: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			fallback int
			summary  sql.NullString
			created  string
		)
		if err := rows.Scan(&e.ParticipantID, &e.EntryID, &e.Category, &e.Confidence, &fallback, &summary, &created); err != nil {
			return nil, fmt.Errorf("scan classification: %w", err)
		}
		e.Fallback = fallback != 0
		e.Summary = summary.String
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion log

// #region helpers

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
