package preference

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite preference store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_preferences (
		session_id TEXT NOT NULL,
		question_number INTEGER NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		preference_type TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, question_number)
	);

	CREATE TABLE IF NOT EXISTS trial_characteristics (
		session_id TEXT NOT NULL,
		trial_id TEXT NOT NULL,
		trial_index INTEGER NOT NULL,
		title TEXT DEFAULT '',
		phase TEXT DEFAULT '',
		phase_numeric INTEGER DEFAULT 0,
		diseases TEXT DEFAULT '[]',
		interventions TEXT DEFAULT '[]',
		brief_summary TEXT DEFAULT '',
		is_early_phase INTEGER NOT NULL DEFAULT 0,
		is_late_phase INTEGER NOT NULL DEFAULT 0,
		is_invasive INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, trial_id)
	);

	CREATE TABLE IF NOT EXISTS preference_scores (
		session_id TEXT NOT NULL,
		trial_id TEXT NOT NULL,
		preference_type TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		reasoning TEXT DEFAULT '',
		PRIMARY KEY (session_id, trial_id, preference_type)
	);

	CREATE INDEX IF NOT EXISTS idx_trial_characteristics_session ON trial_characteristics(session_id, trial_index);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTrial(s scanner) (*TrialCharacteristics, error) {
	tc := &TrialCharacteristics{}
	var diseases, interventions string

	err := s.Scan(
		&tc.SessionID, &tc.TrialID, &tc.TrialIndex, &tc.Title, &tc.Phase, &tc.PhaseNumeric,
		&diseases, &interventions, &tc.BriefSummary,
		&tc.IsEarlyPhase, &tc.IsLatePhase, &tc.IsInvasive,
	)
	if err != nil {
		return nil, err
	}

	if tc.Diseases, err = decodeList(diseases); err != nil {
		return nil, err
	}
	if tc.Interventions, err = decodeList(interventions); err != nil {
		return nil, err
	}
	return tc, nil
}

func scanPreference(s scanner) (*Preference, error) {
	p := &Preference{}
	var prefType string
	if err := s.Scan(&p.SessionID, &p.QuestionNumber, &p.Question, &p.Answer, &prefType, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Type = Type(prefType)
	return p, nil
}

// SaveTrialCharacteristics replaces the stored trials of a session.
func (s *SQLiteStore) SaveTrialCharacteristics(ctx context.Context, sessionID string, trials []TrialCharacteristics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trial_characteristics WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear trials: %w", err)
	}

	for _, tc := range trials {
		diseases, err := encodeList(tc.Diseases)
		if err != nil {
			return err
		}
		interventions, err := encodeList(tc.Interventions)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO trial_characteristics (
				session_id, trial_id, trial_index, title, phase, phase_numeric,
				diseases, interventions, brief_summary,
				is_early_phase, is_late_phase, is_invasive
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			sessionID, tc.TrialID, tc.TrialIndex, tc.Title, tc.Phase, tc.PhaseNumeric,
			diseases, interventions, tc.BriefSummary,
			tc.IsEarlyPhase, tc.IsLatePhase, tc.IsInvasive,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trial %s: %w", tc.TrialID, err)
		}
	}

	return tx.Commit()
}

// SavePreference stores or replaces an answer.
func (s *SQLiteStore) SavePreference(ctx context.Context, pref *Preference) error {
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO user_preferences (
			session_id, question_number, question, answer, preference_type, timestamp
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		pref.SessionID, pref.QuestionNumber, pref.Question, pref.Answer, string(pref.Type), pref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// ListPreferences returns a session's answers ordered by question number.
func (s *SQLiteStore) ListPreferences(ctx context.Context, sessionID string) ([]*Preference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, question_number, question, answer, preference_type, timestamp
		FROM user_preferences
		WHERE session_id = ?
		ORDER BY question_number
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// ListTrials returns a session's trials matching the filter, in trial order.
func (s *SQLiteStore) ListTrials(ctx context.Context, sessionID string, filter TrialFilter) ([]*TrialCharacteristics, error) {
	query := `
		SELECT session_id, trial_id, trial_index, title, phase, phase_numeric,
			diseases, interventions, brief_summary,
			is_early_phase, is_late_phase, is_invasive
		FROM trial_characteristics
		WHERE session_id = ?` + filterClause(filter, "1", "0") + `
		ORDER BY trial_index`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trials: %w", err)
	}
	defer rows.Close()

	var trials []*TrialCharacteristics
	for rows.Next() {
		tc, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		trials = append(trials, tc)
	}
	return trials, rows.Err()
}

// SaveScore stores or replaces a score.
func (s *SQLiteStore) SaveScore(ctx context.Context, score *Score) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preference_scores (
			session_id, trial_id, preference_type, score, reasoning
		) VALUES (?, ?, ?, ?, ?)
	`, score.SessionID, score.TrialID, string(score.Type), score.Score, score.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// filterClause renders the WHERE fragment of a filter with the backend's boolean literals.
func filterClause(filter TrialFilter, trueLit, falseLit string) string {
	switch filter {
	case EarlyPhaseTrials:
		return " AND is_early_phase = " + trueLit
	case LatePhaseTrials:
		return " AND is_late_phase = " + trueLit
	case NonInvasiveTrials:
		return " AND is_invasive = " + falseLit
	}
	return ""
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return out, nil
}
