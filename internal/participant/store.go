package participant

// #region imports
import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS participants (
	participant_id     TEXT PRIMARY KEY,
	stage_sequence     TEXT NOT NULL,
	stage_start_times  TEXT NOT NULL,
	current_stage      INTEGER NOT NULL DEFAULT 0,
	completed_stages   TEXT NOT NULL,
	last_active_time   TEXT NOT NULL,
	focus_categories   TEXT NOT NULL,
	regular_categories TEXT NOT NULL,
	stage_watch_times  TEXT NOT NULL,
	created_at         TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct

// Store persists participant records in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor

// DB returns the underlying *sql.DB for packages that share the same
// database file (entry store, audit log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region create

// Create inserts a new record at enrollment time. A second enrollment
// for the same participant returns ErrAlreadyEnrolled.
func (s *Store) Create(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	seqJSON, startsJSON, completedJSON, watchJSON, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	focusJSON, err := json.Marshal(rec.FocusCategories)
	if err != nil {
		return fmt.Errorf("marshal focus categories: %w", err)
	}
	regularJSON, err := json.Marshal(rec.RegularCategories)
	if err != nil {
		return fmt.Errorf("marshal regular categories: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO participants (participant_id, stage_sequence, stage_start_times,
		   current_stage, completed_stages, last_active_time,
		   focus_categories, regular_categories, stage_watch_times, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(participant_id) DO NOTHING`,
		rec.ParticipantID, seqJSON, startsJSON,
		rec.CurrentStage, completedJSON, rec.LastActiveTime.Format(time.RFC3339Nano),
		string(focusJSON), string(regularJSON), watchJSON,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

// #endregion create

// #region get

// Get loads and validates a record. Unknown participants return
// ErrNotFound; records that fail to parse return ErrCorruptState.
func (s *Store) Get(ctx context.Context, participantID string) (Record, error) {
	var (
		rec                      Record
		seqJSON, startsJSON      string
		completedJSON, watchJSON string
		focusJSON, regularJSON   string
		lastActiveStr, createdAt string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT participant_id, stage_sequence, stage_start_times, current_stage,
		        completed_stages, last_active_time, focus_categories,
		        regular_categories, stage_watch_times, created_at
		 FROM participants WHERE participant_id = ?`, participantID,
	).Scan(&rec.ParticipantID, &seqJSON, &startsJSON, &rec.CurrentStage,
		&completedJSON, &lastActiveStr, &focusJSON, &regularJSON, &watchJSON, &createdAt)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get participant %s: %w", participantID, err)
	}

	if err := json.Unmarshal([]byte(seqJSON), &rec.StageSequence); err != nil {
		return Record{}, fmt.Errorf("%w: stage sequence: %v", ErrCorruptState, err)
	}
	starts := map[string]string{}
	if err := json.Unmarshal([]byte(startsJSON), &starts); err != nil {
		return Record{}, fmt.Errorf("%w: stage start times: %v", ErrCorruptState, err)
	}
	rec.StageStartTimes = make(map[int]time.Time, len(starts))
	for k, v := range starts {
		var stage int
		if _, err := fmt.Sscanf(k, "%d", &stage); err != nil {
			return Record{}, fmt.Errorf("%w: stage key %q: %v", ErrCorruptState, k, err)
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Record{}, fmt.Errorf("%w: start time for stage %d: %v", ErrCorruptState, stage, err)
		}
		rec.StageStartTimes[stage] = t
	}
	if err := json.Unmarshal([]byte(completedJSON), &rec.CompletedStages); err != nil {
		return Record{}, fmt.Errorf("%w: completed stages: %v", ErrCorruptState, err)
	}
	if err := json.Unmarshal([]byte(focusJSON), &rec.FocusCategories); err != nil {
		return Record{}, fmt.Errorf("%w: focus categories: %v", ErrCorruptState, err)
	}
	if err := json.Unmarshal([]byte(regularJSON), &rec.RegularCategories); err != nil {
		return Record{}, fmt.Errorf("%w: regular categories: %v", ErrCorruptState, err)
	}
	watch := map[string]int64{}
	if err := json.Unmarshal([]byte(watchJSON), &watch); err != nil {
		return Record{}, fmt.Errorf("%w: stage watch times: %v", ErrCorruptState, err)
	}
	rec.StageWatchTimes = make(map[int]int64, len(watch))
	for k, v := range watch {
		var stage int
		if _, err := fmt.Sscanf(k, "%d", &stage); err != nil {
			return Record{}, fmt.Errorf("%w: watch time key %q: %v", ErrCorruptState, k, err)
		}
		rec.StageWatchTimes[stage] = v
	}

	rec.LastActiveTime, err = time.Parse(time.RFC3339Nano, lastActiveStr)
	if err != nil {
		return Record{}, fmt.Errorf("%w: last active time: %v", ErrCorruptState, err)
	}
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("%w: created at: %v", ErrCorruptState, err)
	}

	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// #endregion get

// #region touch

// TouchLastActive records the participant's most recent activity.
func (s *Store) TouchLastActive(ctx context.Context, participantID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE participants SET last_active_time = ? WHERE participant_id = ?`,
		at.Format(time.RFC3339Nano), participantID,
	)
	if err != nil {
		return fmt.Errorf("touch last active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// #endregion touch

// #region list-ids

// ListIDs returns every enrolled participant ID.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT participant_id FROM participants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// #endregion list-ids

// #region apply-transition

// ApplyTransition writes a stage transition guarded by the previously
// observed current stage, so two concurrent advances can never both
// append the outgoing stage. Returns false without error when the guard
// fails (another caller already applied the same transition).
func (s *Store) ApplyTransition(ctx context.Context, participantID string, expectedStage, newStage int, completed []int) (bool, error) {
	completedJSON, err := json.Marshal(emptyAsList(completed))
	if err != nil {
		return false, fmt.Errorf("marshal completed stages: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE participants
		 SET current_stage = ?, completed_stages = ?
		 WHERE participant_id = ? AND current_stage = ?`,
		newStage, string(completedJSON), participantID, expectedStage,
	)
	if err != nil {
		return false, fmt.Errorf("apply transition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// #endregion apply-transition

// #region watch-time

// SetWatchTime records accumulated watch seconds for one stage. The
// read-modify-write runs in a transaction so concurrent updates to
// different stages are not lost.
func (s *Store) SetWatchTime(ctx context.Context, participantID string, stage int, seconds int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var watchJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT stage_watch_times FROM participants WHERE participant_id = ?`, participantID,
	).Scan(&watchJSON)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read watch times: %w", err)
	}

	watch := map[string]int64{}
	if err := json.Unmarshal([]byte(watchJSON), &watch); err != nil {
		return fmt.Errorf("%w: stage watch times: %v", ErrCorruptState, err)
	}
	watch[fmt.Sprintf("%d", stage)] = seconds

	updated, err := json.Marshal(watch)
	if err != nil {
		return fmt.Errorf("marshal watch times: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE participants SET stage_watch_times = ? WHERE participant_id = ?`,
		string(updated), participantID,
	); err != nil {
		return fmt.Errorf("write watch times: %w", err)
	}

	return tx.Commit()
}

// #endregion watch-time

// #region encoding

func encodeRecord(rec Record) (seqJSON, startsJSON, completedJSON, watchJSON string, err error) {
	seq, err := json.Marshal(rec.StageSequence)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal stage sequence: %w", err)
	}

	starts := make(map[string]string, len(rec.StageStartTimes))
	for stage, t := range rec.StageStartTimes {
		starts[fmt.Sprintf("%d", stage)] = t.Format(time.RFC3339Nano)
	}
	startsB, err := json.Marshal(starts)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal stage start times: %w", err)
	}

	completedB, err := json.Marshal(emptyAsList(rec.CompletedStages))
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal completed stages: %w", err)
	}

	watch := make(map[string]int64, len(rec.StageWatchTimes))
	for stage, secs := range rec.StageWatchTimes {
		watch[fmt.Sprintf("%d", stage)] = secs
	}
	watchB, err := json.Marshal(watch)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal watch times: %w", err)
	}

	return string(seq), string(startsB), string(completedB), string(watchB), nil
}

// emptyAsList keeps nil slices encoded as [] rather than null.
func emptyAsList(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}

// #endregion encoding
