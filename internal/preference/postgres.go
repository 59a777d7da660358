package preference

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL preference store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL preference store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// SaveTrialCharacteristics replaces the stored trials of a session.
func (s *PostgresStore) SaveTrialCharacteristics(ctx context.Context, sessionID string, trials []TrialCharacteristics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM trial_characteristics WHERE session_id = $1", sessionID); err != nil {
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
			INSERT INTO trial_characteristics (
				session_id, trial_id, trial_index, title, phase, phase_numeric,
				diseases, interventions, brief_summary,
				is_early_phase, is_late_phase, is_invasive
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (session_id, trial_id) DO UPDATE SET
				trial_index = EXCLUDED.trial_index,
				title = EXCLUDED.title,
				phase = EXCLUDED.phase,
				phase_numeric = EXCLUDED.phase_numeric,
				diseases = EXCLUDED.diseases,
				interventions = EXCLUDED.interventions,
				brief_summary = EXCLUDED.brief_summary,
				is_early_phase = EXCLUDED.is_early_phase,
				is_late_phase = EXCLUDED.is_late_phase,
				is_invasive = EXCLUDED.is_invasive
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
func (s *PostgresStore) SavePreference(ctx context.Context, pref *Preference) error {
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (
			session_id, question_number, question, answer, preference_type, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, question_number) DO UPDATE SET
			question = EXCLUDED.question,
			answer = EXCLUDED.answer,
			preference_type = EXCLUDED.preference_type,
			timestamp = EXCLUDED.timestamp
	`,
		pref.SessionID, pref.QuestionNumber, pref.Question, pref.Answer, string(pref.Type), pref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}

// ListPreferences returns a session's answers ordered by question number.
func (s *PostgresStore) ListPreferences(ctx context.Context, sessionID string) ([]*Preference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, question_number, question, answer, preference_type, timestamp
		FROM user_preferences
		WHERE session_id = $1
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
func (s *PostgresStore) ListTrials(ctx context.Context, sessionID string, filter TrialFilter) ([]*TrialCharacteristics, error) {
	query := `
		SELECT session_id, trial_id, trial_index, title, phase, phase_numeric,
			diseases, interventions, brief_summary,
			is_early_phase, is_late_phase, is_invasive
		FROM trial_characteristics
		WHERE session_id = $1` + filterClause(filter, "TRUE", "FALSE") + `
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
func (s *PostgresStore) SaveScore(ctx context.Context, score *Score) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preference_scores (
			session_id, trial_id, preference_type, score, reasoning
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, trial_id, preference_type) DO UPDATE SET
			score = EXCLUDED.score,
			reasoning = EXCLUDED.reasoning
	`, score.SessionID, score.TrialID, string(score.Type), score.Score, score.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to save score: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
