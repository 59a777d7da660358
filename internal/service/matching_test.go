package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trial-matching-mcp-server/internal/cache"
	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/profile"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadPatient(ctx context.Context, patientID string) (*domain.PatientProfile, error) {
	args := m.Called(ctx, patientID)
	if p := args.Get(0); p != nil {
		return p.(*domain.PatientProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) LoadTrials(ctx context.Context, patientID string) ([]*domain.TrialProfile, error) {
	args := m.Called(ctx, patientID)
	if t := args.Get(0); t != nil {
		return t.([]*domain.TrialProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) ListPatients(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

type mockReasoningCache struct {
	mock.Mock
}

func (m *mockReasoningCache) GetReasoning(ctx context.Context, patientID, trialID string) (*domain.EligibilityReasoning, error) {
	args := m.Called(ctx, patientID, trialID)
	if r := args.Get(0); r != nil {
		return r.(*domain.EligibilityReasoning), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockReasoningCache) SetReasoning(ctx context.Context, patientID, trialID string, reasoning *domain.EligibilityReasoning) error {
	return m.Called(ctx, patientID, trialID, reasoning).Error(0)
}

func (m *mockReasoningCache) InvalidatePatient(ctx context.Context, patientID string) error {
	return m.Called(ctx, patientID).Error(0)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Save(ctx context.Context, runID, patientID string, eval *domain.TrialEvaluation) error {
	return m.Called(ctx, runID, patientID, eval).Error(0)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func testPatient() *domain.PatientProfile {
	return &domain.PatientProfile{
		PatientID:   "sigir-1",
		PatientNote: &domain.PatientNote{Text: "A 64-year-old man with diabetes"},
		Conditions: []domain.Condition{
			{EntityVariableName: "patient_has_diabetes_now"},
			{EntityVariableName: "patient_sex_is_male"},
		},
	}
}

func testTrials() []*domain.TrialProfile {
	trials := make([]*domain.TrialProfile, 0, 12)
	for i := 0; i < 12; i++ {
		tr := &domain.TrialProfile{
			TrialInfo: &domain.TrialInfo{TrialID: "NCT" + string(rune('A'+i)), Title: "Trial"},
		}
		if i%2 == 0 {
			tr.InclusionCriteria = []string{"patient_has_diabetes", "patient_sex_is_male", "patient_sex_is_female"}
		} else {
			tr.ExclusionCriteria = []string{"patient_has_diabetes"}
		}
		trials = append(trials, tr)
	}
	return trials
}

func TestMatchingService_AnalyzeAllTrials(t *testing.T) {
	store := &mockStore{}
	store.On("LoadPatient", mock.Anything, "sigir-1").Return(testPatient(), nil).Once()
	store.On("LoadTrials", mock.Anything, "sigir-1").Return(testTrials(), nil)

	svc := NewMatchingService(store, cache.NewMemoryCache(10, 0), domain.MatchingConfig{MaxConcurrency: 3}, testLogger())

	evals, err := svc.AnalyzeAllTrials(context.Background(), "sigir-1")
	require.NoError(t, err)
	require.Len(t, evals, 12)

	for i, e := range evals {
		assert.Equal(t, "NCT"+string(rune('A'+i)), e.TrialID, "order preserved")
		assert.Equal(t, i%2 == 0, e.Eligible)
	}
	assert.Len(t, EligibleTrials(evals), 6)

	// second call is served from the profile cache
	_, err = svc.AnalyzeAllTrials(context.Background(), "sigir-1")
	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestMatchingService_PatientNotFound(t *testing.T) {
	store := &mockStore{}
	store.On("LoadPatient", mock.Anything, "sigir-9").Return(nil, domain.ErrNotFound)

	svc := NewMatchingService(store, nil, domain.MatchingConfig{}, testLogger())
	_, err := svc.AnalyzeAllTrials(context.Background(), "sigir-9")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestMatchingService_FindTrial(t *testing.T) {
	store := &mockStore{}
	store.On("LoadTrials", mock.Anything, "sigir-1").Return(testTrials(), nil)

	svc := NewMatchingService(store, nil, domain.MatchingConfig{}, testLogger())

	trial, err := svc.FindTrial(context.Background(), "sigir-1", "NCTC")
	require.NoError(t, err)
	assert.Equal(t, "NCTC", trial.ID())

	_, err = svc.FindTrial(context.Background(), "sigir-1", "NCT404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMatchingService_Cancelled(t *testing.T) {
	store := &mockStore{}
	store.On("LoadPatient", mock.Anything, "sigir-1").Return(testPatient(), nil)
	store.On("LoadTrials", mock.Anything, "sigir-1").Return(testTrials(), nil)

	svc := NewMatchingService(store, nil, domain.MatchingConfig{MaxConcurrency: 1}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.AnalyzeAllTrials(ctx, "sigir-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchingService_ReasoningCache(t *testing.T) {
	trials := testTrials()[:2]
	cachedVerdict := &domain.EligibilityReasoning{Eligible: false}

	store := &mockStore{}
	store.On("LoadPatient", mock.Anything, "sigir-1").Return(testPatient(), nil)
	store.On("LoadTrials", mock.Anything, "sigir-1").Return(trials, nil)

	rc := &mockReasoningCache{}
	rc.On("GetReasoning", mock.Anything, "sigir-1", "NCTA").Return(cachedVerdict, nil)
	rc.On("GetReasoning", mock.Anything, "sigir-1", "NCTB").Return(nil, errors.New("redis down"))
	rc.On("SetReasoning", mock.Anything, "sigir-1", "NCTB", mock.AnythingOfType("*domain.EligibilityReasoning")).Return(nil)

	svc := NewMatchingService(store, nil, domain.MatchingConfig{}, testLogger())
	svc.SetReasoningCache(rc)

	evals, err := svc.AnalyzeAllTrials(context.Background(), "sigir-1")
	require.NoError(t, err)
	assert.Same(t, cachedVerdict, evals[0].Reasoning)
	assert.False(t, evals[1].Eligible)
	rc.AssertExpectations(t)
}

func TestMatchingService_InvalidatePatient(t *testing.T) {
	store := &mockStore{}
	store.On("LoadPatient", mock.Anything, "sigir-1").Return(testPatient(), nil).Twice()

	rc := &mockReasoningCache{}
	rc.On("InvalidatePatient", mock.Anything, "sigir-1").Return(nil).Once()
	rc.On("InvalidatePatient", mock.Anything, "sigir-2").Return(errors.New("redis down")).Once()

	svc := NewMatchingService(store, nil, domain.MatchingConfig{}, testLogger())

	_, err := svc.LoadPatient(context.Background(), "sigir-1")
	require.NoError(t, err)
	require.NoError(t, svc.InvalidatePatient(context.Background(), "sigir-1"))

	svc.SetReasoningCache(rc)
	require.NoError(t, svc.InvalidatePatient(context.Background(), "sigir-1"))
	_, err = svc.LoadPatient(context.Background(), "sigir-1")
	require.NoError(t, err)

	assert.Error(t, svc.InvalidatePatient(context.Background(), "sigir-2"))
	store.AssertExpectations(t)
	rc.AssertExpectations(t)
}

func TestMatchingService_ReasoningCacheUsesRequestedID(t *testing.T) {
	root := t.TempDir()
	patients := filepath.Join(root, "patients")
	trials := filepath.Join(root, "trials", "20141")
	require.NoError(t, os.MkdirAll(patients, 0o755))
	require.NoError(t, os.MkdirAll(trials, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(patients, "20141.json"),
		[]byte(`{"patient_id": "sigir-20141", "conditions": [{"entity_variable_name": "patient_has_diabetes"}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(trials, "rank_1.json"),
		[]byte(`{"trial_info": {"trial_id": "NCT1"}, "inclusion_criteria": ["patient_has_diabetes"]}`), 0o644))

	rc := &mockReasoningCache{}
	rc.On("GetReasoning", mock.Anything, "20141", "NCT1").Return(nil, nil).Once()
	rc.On("SetReasoning", mock.Anything, "20141", "NCT1", mock.AnythingOfType("*domain.EligibilityReasoning")).Return(nil).Once()
	rc.On("InvalidatePatient", mock.Anything, "20141").Return(nil).Once()

	store := profile.NewFileStore(patients, filepath.Join(root, "trials"), testLogger())
	svc := NewMatchingService(store, cache.NewMemoryCache(4, 0), domain.MatchingConfig{}, testLogger())
	svc.SetReasoningCache(rc)

	evals, err := svc.AnalyzeAllTrials(context.Background(), "20141")
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.True(t, evals[0].Eligible)

	require.NoError(t, svc.InvalidatePatient(context.Background(), "20141"))
	rc.AssertExpectations(t)
	rc.AssertNotCalled(t, "SetReasoning", mock.Anything, "sigir-20141", mock.Anything, mock.Anything)
}

func TestMatchingService_EvaluatePatientTrials(t *testing.T) {
	store := &mockStore{}
	store.On("LoadPatient", mock.Anything, "sigir-1").Return(testPatient(), nil)
	store.On("LoadTrials", mock.Anything, "sigir-1").Return(testTrials(), nil)

	svc := NewMatchingService(store, nil, domain.MatchingConfig{}, testLogger())
	result, err := svc.EvaluatePatientTrials(context.Background(), "sigir-1")
	require.NoError(t, err)

	assert.Equal(t, "A 64-year-old man with diabetes", result.PatientSummary)
	assert.Equal(t, domain.EvaluationSummary{TotalTrials: 12, EligibleTrials: 6, IneligibleTrials: 6}, result.Summary)
}

func TestMatchingService_EvaluateAll(t *testing.T) {
	store := &mockStore{}
	store.On("ListPatients", mock.Anything).Return([]string{"sigir-1", "sigir-2"}, nil)
	store.On("LoadPatient", mock.Anything, "sigir-1").Return(testPatient(), nil)
	store.On("LoadTrials", mock.Anything, "sigir-1").Return(testTrials()[:3], nil)
	store.On("LoadPatient", mock.Anything, "sigir-2").Return(nil, domain.ErrNotFound)

	recorder := &mockRecorder{}
	recorder.On("Save", mock.Anything, mock.AnythingOfType("string"), "sigir-1", mock.Anything).Return(nil).Times(3)

	svc := NewMatchingService(store, nil, domain.MatchingConfig{}, testLogger())
	svc.SetResultRecorder(recorder)

	outDir := filepath.Join(t.TempDir(), "results")
	run, err := svc.EvaluateAll(context.Background(), outDir)
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, []string{"sigir-2"}, run.Skipped)
	require.Len(t, run.Patients, 1)
	recorder.AssertExpectations(t)

	data, err := os.ReadFile(filepath.Join(outDir, "sigir-1_eligibility.json"))
	require.NoError(t, err)
	var single domain.PatientEvaluation
	require.NoError(t, json.Unmarshal(data, &single))
	assert.Equal(t, 3, single.Summary.TotalTrials)
	assert.Equal(t, 2, single.Summary.EligibleTrials)

	data, err = os.ReadFile(filepath.Join(outDir, "all_patients_eligibility.json"))
	require.NoError(t, err)
	var all []domain.PatientEvaluation
	require.NoError(t, json.Unmarshal(data, &all))
	assert.Len(t, all, 1)
}
