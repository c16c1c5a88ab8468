// Package store persists learned state between runs in SQLite: policy
// snapshots, the experience log and a per-session record.
package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gnolang/refine/internal/policy"
	tt "github.com/gnolang/refine/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS policy_snapshots (
	version_id       TEXT PRIMARY KEY,
	parent_id        TEXT,
	language         TEXT NOT NULL,
	input_dim        INTEGER NOT NULL,
	actions          INTEGER NOT NULL,
	hidden_units     INTEGER NOT NULL,
	params           BLOB NOT NULL,
	exploration_rate REAL NOT NULL,
	train_steps      INTEGER NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_policy (
	language   TEXT PRIMARY KEY,
	version_id TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES policy_snapshots(version_id)
);

CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	language   TEXT NOT NULL,
	session_id TEXT NOT NULL,
	state      BLOB NOT NULL,
	action     INTEGER NOT NULL,
	reward     REAL NOT NULL,
	next_state BLOB NOT NULL,
	terminal   INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS transitions_language ON transitions(language, id);

CREATE TABLE IF NOT EXISTS sessions (
	session_id     TEXT PRIMARY KEY,
	language       TEXT NOT NULL,
	input_path     TEXT,
	applied        TEXT,
	steps          INTEGER NOT NULL,
	original_time  REAL,
	optimized_time REAL,
	percent_gain   REAL,
	created_at     TEXT NOT NULL
);
`

// Store manages persisted learning state in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma wal: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SaveSnapshot stores snap as a new version and makes it the active policy
// for lang. It returns the new version id.
func (s *Store) SaveSnapshot(lang tt.Language, snap policy.Snapshot) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT version_id FROM active_policy WHERE language = ?`, lang.String()).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get active: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO policy_snapshots
		 (version_id, parent_id, language, input_dim, actions, hidden_units, params, exploration_rate, train_steps, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, parent, lang.String(), snap.InputDim, snap.Actions, snap.HiddenUnits,
		encodeVector(snap.Params), snap.ExplorationRate, snap.TrainSteps, now.Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_policy (language, version_id) VALUES (?, ?)
		 ON CONFLICT(language) DO UPDATE SET version_id = excluded.version_id`,
		lang.String(), id,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// LoadSnapshot returns the active policy snapshot for lang.
// found is false when no snapshot was ever saved for the language.
func (s *Store) LoadSnapshot(lang tt.Language) (snap policy.Snapshot, found bool, err error) {
	var blob []byte
	err = s.db.QueryRow(
		`SELECT p.input_dim, p.actions, p.hidden_units, p.params, p.exploration_rate, p.train_steps
		 FROM active_policy a JOIN policy_snapshots p ON p.version_id = a.version_id
		 WHERE a.language = ?`, lang.String(),
	).Scan(&snap.InputDim, &snap.Actions, &snap.HiddenUnits, &blob, &snap.ExplorationRate, &snap.TrainSteps)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Snapshot{}, false, nil
	}
	if err != nil {
		return policy.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	snap.Params = decodeVector(blob)
	return snap, true, nil
}

// AppendTransitions persists the transitions of one session.
func (s *Store) AppendTransitions(lang tt.Language, sessionID string, ts []tt.Transition) error {
	if len(ts) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO transitions (language, session_id, state, action, reward, next_state, terminal, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(timeLayout)
	for _, t := range ts {
		terminal := 0
		if t.Terminal {
			terminal = 1
		}
		_, err := stmt.Exec(lang.String(), sessionID, encodeVector(t.State), int(t.Action),
			t.Reward, encodeVector(t.NextState), terminal, now)
		if err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}
	return tx.Commit()
}

// RecentTransitions returns up to limit of the newest transitions for lang,
// oldest first.
func (s *Store) RecentTransitions(lang tt.Language, limit int) ([]tt.Transition, error) {
	rows, err := s.db.Query(
		`SELECT state, action, reward, next_state, terminal FROM (
			SELECT id, state, action, reward, next_state, terminal FROM transitions
			WHERE language = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`, lang.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []tt.Transition
	for rows.Next() {
		var (
			t                tt.Transition
			state, next      []byte
			action, terminal int
		)
		if err := rows.Scan(&state, &action, &t.Reward, &next, &terminal); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.State = decodeVector(state)
		t.NextState = decodeVector(next)
		t.Action = tt.TransformationID(action)
		t.Terminal = terminal != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneTransitions deletes all but the newest keep transitions for lang.
func (s *Store) PruneTransitions(lang tt.Language, keep int) error {
	_, err := s.db.Exec(
		`DELETE FROM transitions WHERE language = ? AND id NOT IN (
			SELECT id FROM transitions WHERE language = ? ORDER BY id DESC LIMIT ?
		 )`, lang.String(), lang.String(), keep,
	)
	if err != nil {
		return fmt.Errorf("prune transitions: %w", err)
	}
	return nil
}

// CountTransitions returns the number of stored transitions for lang.
func (s *Store) CountTransitions(lang tt.Language) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM transitions WHERE language = ?`, lang.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transitions: %w", err)
	}
	return n, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
