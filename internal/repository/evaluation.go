// Package repository persists eligibility evaluations in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
)

// StoredEvaluation is one persisted patient/trial verdict
type StoredEvaluation struct {
	ID        uuid.UUID                   `json:"id"`
	RunID     string                      `json:"run_id"`
	PatientID string                      `json:"patient_id"`
	TrialID   string                      `json:"trial_id"`
	Title     string                      `json:"title"`
	Eligible  bool                        `json:"eligible"`
	Reasoning domain.EligibilityReasoning `json:"reasoning"`
	CreatedAt time.Time                   `json:"created_at"`
}

// EvaluationRepository handles eligibility_evaluations rows
type EvaluationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(db *pgxpool.Pool, logger *logrus.Logger) *EvaluationRepository {
	return &EvaluationRepository{db: db, log: logger}
}

// Save records one evaluation. Re-running the same run overwrites the verdict.
func (r *EvaluationRepository) Save(ctx context.Context, runID, patientID string, eval *domain.TrialEvaluation) error {
	if eval == nil {
		return domain.NewValidationError("evaluation", "evaluation is required", nil)
	}
	if runID == "" || patientID == "" {
		return domain.NewValidationError("run_id", "run and patient identifiers are required", runID)
	}

	reasoning := eval.Reasoning
	if reasoning == nil {
		reasoning = &domain.EligibilityReasoning{Eligible: eval.Eligible}
	}
	payload, err := json.Marshal(reasoning)
	if err != nil {
		return fmt.Errorf("failed to encode reasoning: %w", err)
	}

	query := `
		INSERT INTO eligibility_evaluations (
			id, run_id, patient_id, trial_id, title, eligible,
			inclusion_met, inclusion_total, exclusion_violated, exclusion_total, reasoning
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, patient_id, trial_id) DO UPDATE SET
			title = EXCLUDED.title,
			eligible = EXCLUDED.eligible,
			inclusion_met = EXCLUDED.inclusion_met,
			inclusion_total = EXCLUDED.inclusion_total,
			exclusion_violated = EXCLUDED.exclusion_violated,
			exclusion_total = EXCLUDED.exclusion_total,
			reasoning = EXCLUDED.reasoning,
			created_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		uuid.New(), runID, patientID, eval.TrialID, eval.Title, eval.Eligible,
		reasoning.InclusionCriteria.Met, reasoning.InclusionCriteria.Total,
		reasoning.ExclusionCriteria.Violated, reasoning.ExclusionCriteria.Total,
		payload,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"run_id":     runID,
			"patient_id": patientID,
			"trial_id":   eval.TrialID,
			"error":      err,
		}).Error("Failed to save evaluation")
		return fmt.Errorf("failed to save evaluation: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":     runID,
		"patient_id": patientID,
		"trial_id":   eval.TrialID,
		"eligible":   eval.Eligible,
	}).Debug("Evaluation saved")

	return nil
}

// ListByPatient returns the patient's evaluations, newest first.
func (r *EvaluationRepository) ListByPatient(ctx context.Context, patientID string) ([]StoredEvaluation, error) {
	query := `
		SELECT id, run_id, patient_id, trial_id, title, eligible, reasoning, created_at
		FROM eligibility_evaluations
		WHERE patient_id = $1
		ORDER BY created_at DESC, trial_id`

	evaluations, err := r.list(ctx, query, patientID)
	if err != nil {
		return nil, err
	}
	if len(evaluations) == 0 {
		return nil, fmt.Errorf("evaluations for patient %s not found: %w", patientID, domain.ErrNotFound)
	}
	return evaluations, nil
}

// ListByRun returns every evaluation recorded under a run identifier.
func (r *EvaluationRepository) ListByRun(ctx context.Context, runID string) ([]StoredEvaluation, error) {
	query := `
		SELECT id, run_id, patient_id, trial_id, title, eligible, reasoning, created_at
		FROM eligibility_evaluations
		WHERE run_id = $1
		ORDER BY patient_id, trial_id`

	return r.list(ctx, query, runID)
}

// GetLatest returns the most recent verdict for one patient and trial.
func (r *EvaluationRepository) GetLatest(ctx context.Context, patientID, trialID string) (*StoredEvaluation, error) {
	query := `
		SELECT id, run_id, patient_id, trial_id, title, eligible, reasoning, created_at
		FROM eligibility_evaluations
		WHERE patient_id = $1 AND trial_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var (
		e       StoredEvaluation
		payload []byte
	)
	err := r.db.QueryRow(ctx, query, patientID, trialID).Scan(
		&e.ID, &e.RunID, &e.PatientID, &e.TrialID, &e.Title, &e.Eligible, &payload, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("evaluation for %s/%s not found: %w", patientID, trialID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	if err := json.Unmarshal(payload, &e.Reasoning); err != nil {
		return nil, fmt.Errorf("failed to decode reasoning for %s: %w", trialID, err)
	}
	return &e, nil
}

// CountEligible returns how many trials the patient qualified for in a run.
func (r *EvaluationRepository) CountEligible(ctx context.Context, runID, patientID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM eligibility_evaluations WHERE run_id = $1 AND patient_id = $2 AND eligible`,
		runID, patientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count eligible trials: %w", err)
	}
	return count, nil
}

func (r *EvaluationRepository) list(ctx context.Context, query string, arg string) ([]StoredEvaluation, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []StoredEvaluation
	for rows.Next() {
		var (
			e       StoredEvaluation
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.PatientID, &e.TrialID, &e.Title, &e.Eligible, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Reasoning); err != nil {
			return nil, fmt.Errorf("failed to decode reasoning for %s: %w", e.TrialID, err)
		}
		evaluations = append(evaluations, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate evaluations: %w", err)
	}
	return evaluations, nil
}
