package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/trial-matching-mcp-server/internal/cache"
	"github.com/trial-matching-mcp-server/internal/config"
	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/llm"
	"github.com/trial-matching-mcp-server/internal/preference"
	"github.com/trial-matching-mcp-server/internal/profile"
	"github.com/trial-matching-mcp-server/internal/service"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newTestServer builds a server over a small on-disk dataset: patient p1 is
// eligible for NCT1 and NCT2 but not NCT3.
func newTestServer(t *testing.T, gen llm.Generator, overrides ...func(*Dependencies)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	root := t.TempDir()
	patients := filepath.Join(root, "patients")
	trials := filepath.Join(root, "trials")

	writeFixture(t, filepath.Join(patients, "p1.json"), `{
		"patient_note": {"text": "62-year-old man with type 2 diabetes."},
		"conditions": [{"entity_variable_name": "patient_has_diabetes_now"}]
	}`)
	writeFixture(t, filepath.Join(trials, "p1", "rank_1.json"), `{
		"trial_info": {"trial_id": "NCT1", "title": "Bariatric surgery study", "phase": "Phase 3", "interventions": ["Surgery"]},
		"inclusion_criteria": ["patient_has_diabetes"]
	}`)
	writeFixture(t, filepath.Join(trials, "p1", "rank_2.json"), `{
		"trial_info": {"trial_id": "NCT2", "title": "Diet study", "phase": "Phase 1", "interventions": ["Diet counselling"]},
		"inclusion_criteria": ["patient_has_diabetes"]
	}`)
	writeFixture(t, filepath.Join(trials, "p1", "rank_3.json"), `{
		"trial_info": {"trial_id": "NCT3", "title": "Asthma study"},
		"inclusion_criteria": ["patient_has_asthma"]
	}`)

	cfgPath := filepath.Join(root, "config.yaml")
	writeFixture(t, cfgPath, "logging:\n  level: warn\n")
	manager, err := config.NewManagerFromFile(cfgPath)
	require.NoError(t, err)

	store := profile.NewFileStore(patients, trials, logger)
	matching := service.NewMatchingService(store, cache.NewMemoryCache(16, 0), domain.MatchingConfig{MaxConcurrency: 2}, logger)

	prefs, err := preference.NewSQLiteStore(filepath.Join(root, "preferences.db"))
	require.NoError(t, err)
	t.Cleanup(func() { prefs.Close() })

	deps := Dependencies{
		Matching: matching,
		Ranker:   preference.NewRanker(prefs, logger),
		Logger:   logger,
	}
	if gen != nil {
		deps.Assistant = llm.NewAssistant(gen, logger)
	}
	for _, override := range overrides {
		override(&deps)
	}
	return NewServer(manager, deps)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) domain.APIError {
	t.Helper()
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, false, body["generation"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestEligibility(t *testing.T) {
	s := newTestServer(t, nil)

	body := map[string]any{
		"patient": map[string]any{
			"conditions": []map[string]any{
				{"entity_variable_name": "patient_has_hypertension_now"},
				{"entity_variable_name": "patient_is_pregnant"},
			},
		},
		"trial": map[string]any{
			"trial_info":         map[string]any{"trial_id": "NCT9"},
			"inclusion_criteria": []string{"patient_has_hypertension"},
			"exclusion_criteria": []string{"patient_is_pregnant"},
		},
	}

	w := doJSON(t, s, http.MethodPost, "/api/v1/eligibility", body)
	require.Equal(t, http.StatusOK, w.Code)

	var resp eligibilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NCT9", resp.TrialID)
	assert.False(t, resp.Eligible)
	assert.Equal(t, 1, resp.Reasoning.ExclusionCriteria.Violated)
	assert.True(t, strings.HasPrefix(resp.Summary, "Patient is INELIGIBLE."))
	assert.NotEmpty(t, resp.Explanation)

	w = doJSON(t, s, http.MethodPost, "/api/v1/eligibility", map[string]any{"patient": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.CodeInvalidInput, decodeAPIError(t, w).Code)
}

func TestNormalize(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/normalize", normalizeRequest{
		Variables: []string{"Patient_Has_Diabetes_Now", "patient_sex_is_female", "patient_age_value_recorded_now_in_months"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []normalizedVariable `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "patient_has_diabetes", resp.Results[0].Normalized)
	assert.True(t, resp.Results[1].Gender)
	assert.True(t, resp.Results[2].Ignored)

	w = doJSON(t, s, http.MethodPost, "/api/v1/normalize", normalizeRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPatients(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/api/v1/patients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"patients":["p1"],"count":1}`, w.Body.String())

	w = doJSON(t, s, http.MethodGet, "/api/v1/patients/p1/trials", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.PatientEvaluation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Summary.TotalTrials)
	assert.Equal(t, 2, result.Summary.EligibleTrials)
	require.Len(t, result.Trials, 3)
	assert.Equal(t, "NCT1", result.Trials[0].TrialID)

	w = doJSON(t, s, http.MethodGet, "/api/v1/patients/p1/trials?eligible_only=true", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Trials, 2)

	w = doJSON(t, s, http.MethodGet, "/api/v1/patients/missing/trials", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.CodeNotFound, decodeAPIError(t, w).Code)
}

func TestNarrow(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/preferences/narrow", narrowRequest{
		PatientID: "p1",
		Answers: []preference.QA{
			{Question: "Would you prefer an early or late phase trial?", Answer: "Something early and experimental"},
			{Question: "How do you feel about invasive procedures?", Answer: "I'd like to avoid surgery"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp narrowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Recommendation)
	assert.Equal(t, "NCT2", resp.Recommendation.Trial.TrialID)
	assert.Equal(t, 25, resp.Recommendation.Scores[0].Score)
	assert.Contains(t, resp.Message, "Diet study")

	w = doJSON(t, s, http.MethodPost, "/api/v1/preferences/narrow", narrowRequest{PatientID: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreferenceQuestion(t *testing.T) {
	t.Run("generation disabled", func(t *testing.T) {
		s := newTestServer(t, nil)
		w := doJSON(t, s, http.MethodPost, "/api/v1/preferences/questions", preferenceQuestionRequest{PatientID: "p1", QuestionNumber: 1})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, domain.CodeGenerationError, decodeAPIError(t, w).Code)
	})

	t.Run("generated", func(t *testing.T) {
		gen := &mockGenerator{}
		gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, "narrow down 2 eligible clinical trials")
		})).Return("Would you prefer an early-phase trial?", nil).Once()

		s := newTestServer(t, gen)
		w := doJSON(t, s, http.MethodPost, "/api/v1/preferences/questions", preferenceQuestionRequest{PatientID: "p1", QuestionNumber: 1})
		require.Equal(t, http.StatusOK, w.Code)

		var q llm.PreferenceQuestion
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
		assert.Equal(t, "Would you prefer an early-phase trial?", q.Question)
		assert.False(t, q.IsFinal)
		gen.AssertExpectations(t)
	})

	t.Run("generator unavailable", func(t *testing.T) {
		gen := &mockGenerator{}
		gen.On("Generate", mock.Anything, mock.Anything).Return("", llm.ErrUnavailable)

		s := newTestServer(t, gen)
		w := doJSON(t, s, http.MethodPost, "/api/v1/preferences/questions", preferenceQuestionRequest{PatientID: "p1", QuestionNumber: 2})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestPatientIntro(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "The patient (Sam)") && strings.Contains(p, "type 2 diabetes")
	})).Return("Hi, I'm Sam and I have diabetes.", nil).Once()
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, `The patient said: "Hi, I'm Sam and I have diabetes."`)
	})).Return("Could you tell me about your other conditions?", nil).Once()

	s := newTestServer(t, gen)

	w := doJSON(t, s, http.MethodPost, "/api/v1/patients/p1/intro", introRequest{PatientName: "Sam"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp introResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "p1", resp.PatientID)
	assert.Equal(t, "Hi, I'm Sam and I have diabetes.", resp.Intro)
	assert.Equal(t, "Could you tell me about your other conditions?", resp.FollowUp)
	gen.AssertExpectations(t)

	w = doJSON(t, s, http.MethodPost, "/api/v1/patients/missing/intro", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, newTestServer(t, nil), http.MethodPost, "/api/v1/patients/p1/intro", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestChat(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Diet study") && strings.Contains(p, "Is the diet study safe?")
	})).Return("It is an early-phase study focused on diet.", nil).Once()

	s := newTestServer(t, gen)

	w := doJSON(t, s, http.MethodPost, "/api/v1/chat", chatRequest{
		Message:            "Is the diet study safe?",
		PatientID:          "p1",
		State:              llm.StatePostRecommendation,
		RecommendedTrialID: "NCT2",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "It is an early-phase study focused on diet.", resp.Response)
	assert.False(t, resp.ConversationEnded)

	w = doJSON(t, s, http.MethodPost, "/api/v1/chat", chatRequest{Message: "Thank you, goodbye"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.ConversationEnded)
	assert.Equal(t, llm.OutroMessage(), resp.Response)

	gen.AssertExpectations(t)
}

func TestConversationEnd(t *testing.T) {
	s := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodPost, "/api/v1/conversation/end", conversationEndRequest{Message: "thanks, that's all"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ended":true`)

	w = doJSON(t, s, http.MethodPost, "/api/v1/conversation/end", conversationEndRequest{Message: "Can you tell me more about the second trial and how often I would need to visit?"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ended":false}`, w.Body.String())
}

func TestNewServer_EnvironmentMode(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	tests := []struct {
		name     string
		body     string
		wantMode string
		wantHSTS bool
	}{
		{"development debug", "environment: development\nlogging:\n  level: debug\n", gin.DebugMode, false},
		{"production debug", "environment: production\nlogging:\n  level: debug\n", gin.ReleaseMode, true},
		{"staging", "environment: staging\n", gin.ReleaseMode, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { gin.SetMode(gin.TestMode) })

			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			writeFixture(t, cfgPath, tt.body)
			manager, err := config.NewManagerFromFile(cfgPath)
			require.NoError(t, err)

			s := NewServer(manager, Dependencies{Logger: logger})
			assert.Equal(t, tt.wantMode, gin.Mode())

			w := doJSON(t, s, http.MethodGet, "/health", nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantHSTS, w.Header().Get("Strict-Transport-Security") != "")
		})
	}
}
