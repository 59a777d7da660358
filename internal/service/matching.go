package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/trial-matching-mcp-server/internal/cache"
	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/eligibility"
)

const (
	defaultMaxConcurrency = 8
	combinedResultsFile   = "all_patients_eligibility.json"
)

// MatchingService evaluates patients against their retrieved trials
type MatchingService struct {
	store          domain.ProfileStore
	engine         *eligibility.Engine
	profiles       *cache.MemoryCache
	reasoningCache domain.ReasoningCache
	recorder       domain.ResultRecorder
	maxConcurrency int
	logger         *logrus.Logger
}

// NewMatchingService creates a new matching service
func NewMatchingService(store domain.ProfileStore, profiles *cache.MemoryCache, config domain.MatchingConfig, logger *logrus.Logger) *MatchingService {
	maxConcurrency := config.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if profiles == nil {
		profiles = cache.NewMemoryCache(0, 0)
	}
	return &MatchingService{
		store:          store,
		engine:         eligibility.NewEngine(logger),
		profiles:       profiles,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// SetReasoningCache enables the distributed reasoning cache
func (s *MatchingService) SetReasoningCache(c domain.ReasoningCache) {
	s.reasoningCache = c
}

// SetResultRecorder enables persistence of batch results
func (s *MatchingService) SetResultRecorder(r domain.ResultRecorder) {
	s.recorder = r
}

// LoadPatient returns a patient profile, served from the memory cache when possible.
func (s *MatchingService) LoadPatient(ctx context.Context, patientID string) (*domain.PatientProfile, error) {
	if p, ok := s.profiles.GetPatient(patientID); ok {
		return p, nil
	}

	p, err := s.store.LoadPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	s.profiles.SetPatient(patientID, p)
	return p, nil
}

// InvalidatePatient drops a patient's cached profile and cached verdicts so
// the next request rereads them from the store.
func (s *MatchingService) InvalidatePatient(ctx context.Context, patientID string) error {
	s.profiles.Invalidate(patientID)
	if s.reasoningCache == nil {
		return nil
	}
	if err := s.reasoningCache.InvalidatePatient(ctx, patientID); err != nil {
		return fmt.Errorf("failed to invalidate cached reasoning for %s: %w", patientID, err)
	}
	s.logger.WithField("patient_id", patientID).Info("Invalidated cached patient data")
	return nil
}

// ListPatients returns the ids of patients with retrieved trials.
func (s *MatchingService) ListPatients(ctx context.Context) ([]string, error) {
	return s.store.ListPatients(ctx)
}

// CheckEligibility evaluates a single patient and trial.
func (s *MatchingService) CheckEligibility(patient *domain.PatientProfile, trial *domain.TrialProfile) *domain.EligibilityReasoning {
	return s.engine.Evaluate(patient, trial)
}

// FindTrial returns one of the patient's retrieved trials by id.
func (s *MatchingService) FindTrial(ctx context.Context, patientID, trialID string) (*domain.TrialProfile, error) {
	trials, err := s.store.LoadTrials(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trials for %s: %w", patientID, err)
	}
	for _, t := range trials {
		if t.ID() == trialID {
			return t, nil
		}
	}
	return nil, fmt.Errorf("trial %s for patient %s not found: %w", trialID, patientID, domain.ErrNotFound)
}

// AnalyzeAllTrials evaluates a patient against every retrieved trial. Results
// keep the trial order.
func (s *MatchingService) AnalyzeAllTrials(ctx context.Context, patientID string) ([]domain.TrialEvaluation, error) {
	patient, err := s.LoadPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient %s: %w", patientID, err)
	}

	trials, err := s.store.LoadTrials(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trials for %s: %w", patientID, err)
	}

	results := make([]domain.TrialEvaluation, len(trials))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrency)

	for i, trial := range trials {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			reasoning := s.reasoningFor(gCtx, patientID, patient, trial)
			results[i] = domain.NewTrialEvaluation(trial, reasoning)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id": patientID,
		"trials":     len(results),
		"eligible":   len(EligibleTrials(results)),
	}).Info("Analyzed patient trials")

	return results, nil
}

// reasoningFor caches under the requested patient id, which may differ from the
// patient_id recorded in the profile file; InvalidatePatient uses the same id.
func (s *MatchingService) reasoningFor(ctx context.Context, patientID string, patient *domain.PatientProfile, trial *domain.TrialProfile) *domain.EligibilityReasoning {
	if s.reasoningCache == nil {
		return s.engine.Evaluate(patient, trial)
	}

	cached, err := s.reasoningCache.GetReasoning(ctx, patientID, trial.ID())
	if err != nil {
		s.logger.WithError(err).WithField("trial_id", trial.ID()).Warn("Reasoning cache lookup failed")
	}
	if cached != nil {
		return cached
	}

	reasoning := s.engine.Evaluate(patient, trial)
	if err := s.reasoningCache.SetReasoning(ctx, patientID, trial.ID(), reasoning); err != nil {
		s.logger.WithError(err).WithField("trial_id", trial.ID()).Warn("Failed to cache reasoning")
	}
	return reasoning
}

// EligibleTrials keeps only eligible evaluations, preserving order.
func EligibleTrials(evals []domain.TrialEvaluation) []domain.TrialEvaluation {
	out := make([]domain.TrialEvaluation, 0, len(evals))
	for _, e := range evals {
		if e.Eligible {
			out = append(out, e)
		}
	}
	return out
}

// EvaluatePatientTrials evaluates every trial of a patient and adds summary counts.
func (s *MatchingService) EvaluatePatientTrials(ctx context.Context, patientID string) (*domain.PatientEvaluation, error) {
	evals, err := s.AnalyzeAllTrials(ctx, patientID)
	if err != nil {
		return nil, err
	}

	patient, err := s.LoadPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	summary := patient.NoteText()
	if summary == "" {
		summary = "N/A"
	}

	result := &domain.PatientEvaluation{
		PatientID:      patientID,
		PatientSummary: summary,
		Trials:         evals,
		EvaluatedAt:    time.Now().UTC(),
	}
	result.Summarize()
	return result, nil
}

// BatchResult describes one batch evaluation run
type BatchResult struct {
	RunID    string                      `json:"run_id"`
	Patients []*domain.PatientEvaluation `json:"patients"`
	Skipped  []string                    `json:"skipped,omitempty"`
	OutDir   string                      `json:"out_dir"`
}

// EvaluateAll evaluates every patient with retrieved trials and writes
// <id>_eligibility.json per patient plus a combined file to outDir.
func (s *MatchingService) EvaluateAll(ctx context.Context, outDir string) (*BatchResult, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ids, err := s.store.ListPatients(ctx)
	if err != nil {
		return nil, err
	}

	run := &BatchResult{
		RunID:    uuid.New().String(),
		Patients: make([]*domain.PatientEvaluation, 0, len(ids)),
		OutDir:   outDir,
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.EvaluatePatientTrials(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("patient_id", id).Warn("Skipping patient")
			run.Skipped = append(run.Skipped, id)
			continue
		}

		if err := writeJSON(filepath.Join(outDir, id+"_eligibility.json"), result); err != nil {
			return nil, err
		}
		if err := s.record(ctx, run.RunID, result); err != nil {
			return nil, err
		}

		s.logger.WithFields(logrus.Fields{
			"patient_id": id,
			"eligible":   result.Summary.EligibleTrials,
			"total":      result.Summary.TotalTrials,
		}).Info("Evaluated patient")

		run.Patients = append(run.Patients, result)
	}

	if err := writeJSON(filepath.Join(outDir, combinedResultsFile), run.Patients); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *MatchingService) record(ctx context.Context, runID string, result *domain.PatientEvaluation) error {
	if s.recorder == nil {
		return nil
	}
	for i := range result.Trials {
		if err := s.recorder.Save(ctx, runID, result.PatientID, &result.Trials[i]); err != nil {
			return fmt.Errorf("failed to record evaluation for %s: %w", result.PatientID, err)
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
