package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	tt "github.com/gnolang/refine/internal/types"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SessionRecord is one optimization run as stored in the session log.
// Timings are zero when the run was not benchmarked.
type SessionRecord struct {
	ID            string
	Language      tt.Language
	InputPath     string
	Applied       []string
	Steps         int
	OriginalTime  float64
	OptimizedTime float64
	PercentGain   float64
	CreatedAt     time.Time
}

// LogSession appends rec to the session log. CreatedAt defaults to now.
func (s *Store) LogSession(rec SessionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	applied, err := json.Marshal(rec.Applied)
	if err != nil {
		return fmt.Errorf("marshal applied: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions
		 (session_id, language, input_path, applied, steps, original_time, optimized_time, percent_gain, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Language.String(), rec.InputPath, string(applied), rec.Steps,
		rec.OriginalTime, rec.OptimizedTime, rec.PercentGain, rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordBenchmark attaches timings to a logged session.
func (s *Store) RecordBenchmark(sessionID string, originalTime, optimizedTime, percentGain float64) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET original_time = ?, optimized_time = ?, percent_gain = ? WHERE session_id = ?`,
		originalTime, optimizedTime, percentGain, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, language, input_path, applied, steps, original_time, optimized_time, percent_gain, created_at
		 FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec       SessionRecord
			lang      string
			input     sql.NullString
			applied   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &lang, &input, &applied, &rec.Steps,
			&rec.OriginalTime, &rec.OptimizedTime, &rec.PercentGain, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.Language, err = tt.ParseLanguage(lang); err != nil {
			return nil, err
		}
		rec.InputPath = input.String
		if applied.Valid && applied.String != "" {
			if err := json.Unmarshal([]byte(applied.String), &rec.Applied); err != nil {
				return nil, fmt.Errorf("unmarshal applied: %w", err)
			}
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}
