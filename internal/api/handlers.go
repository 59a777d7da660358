package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/eligibility"
	"github.com/trial-matching-mcp-server/internal/llm"
	"github.com/trial-matching-mcp-server/internal/middleware"
	"github.com/trial-matching-mcp-server/internal/preference"
	"github.com/trial-matching-mcp-server/internal/service"
)

type eligibilityRequest struct {
	Patient *domain.PatientProfile `json:"patient" binding:"required"`
	Trial   *domain.TrialProfile   `json:"trial" binding:"required"`
}

type eligibilityResponse struct {
	TrialID     string                       `json:"trial_id"`
	Eligible    bool                         `json:"eligible"`
	Summary     string                       `json:"summary"`
	Explanation string                       `json:"explanation"`
	Reasoning   *domain.EligibilityReasoning `json:"reasoning"`
}

func (s *Server) handleEligibility(c *gin.Context) {
	var req eligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	reasoning := s.deps.Matching.CheckEligibility(req.Patient, req.Trial)
	c.JSON(http.StatusOK, eligibilityResponse{
		TrialID:     req.Trial.ID(),
		Eligible:    reasoning.Eligible,
		Summary:     eligibility.Summary(reasoning),
		Explanation: eligibility.Explain(reasoning),
		Reasoning:   reasoning,
	})
}

type normalizeRequest struct {
	Variables []string `json:"variables" binding:"required,min=1"`
}

type normalizedVariable struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
	Gender     bool   `json:"gender"`
	Ignored    bool   `json:"ignored"`
}

func (s *Server) handleNormalize(c *gin.Context) {
	var req normalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	results := make([]normalizedVariable, 0, len(req.Variables))
	for _, v := range req.Variables {
		results = append(results, normalizedVariable{
			Original:   v,
			Normalized: eligibility.Normalize(v),
			Gender:     eligibility.IsGenderCriterion(v),
			Ignored:    eligibility.ShouldIgnoreCriterion(v),
		})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleListPatients(c *gin.Context) {
	ids, err := s.deps.Matching.ListPatients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"patients": ids, "count": len(ids)})
}

func (s *Server) handlePatientTrials(c *gin.Context) {
	result, err := s.deps.Matching.EvaluatePatientTrials(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if eligibleOnly, _ := strconv.ParseBool(c.Query("eligible_only")); eligibleOnly {
		result.Trials = service.EligibleTrials(result.Trials)
	}
	c.JSON(http.StatusOK, result)
}

type introRequest struct {
	PatientName string `json:"patient_name"`
}

type introResponse struct {
	PatientID string `json:"patient_id"`
	Intro     string `json:"intro"`
	FollowUp  string `json:"follow_up"`
}

// handlePatientIntro opens a conversation: the patient's introduction drawn
// from their note, then the assistant's request for what it left out.
func (s *Server) handlePatientIntro(c *gin.Context) {
	if !s.requireAssistant(c) {
		return
	}

	var req introRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}
	if req.PatientName == "" {
		req.PatientName = "Patient"
	}

	patientID := c.Param("id")
	patient, err := s.deps.Matching.LoadPatient(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, err)
		return
	}

	intro, err := s.deps.Assistant.PatientIntro(c.Request.Context(), patient, req.PatientName)
	if err != nil {
		respondGenerationError(c, err)
		return
	}
	followUp, err := s.deps.Assistant.RequestAdditionalInfo(c.Request.Context(), patient, intro)
	if err != nil {
		respondGenerationError(c, err)
		return
	}

	c.JSON(http.StatusOK, introResponse{PatientID: patientID, Intro: intro, FollowUp: followUp})
}

type preferenceQuestionRequest struct {
	PatientID      string          `json:"patient_id" binding:"required"`
	QuestionNumber int             `json:"question_number" binding:"required"`
	Previous       []preference.QA `json:"previous"`
}

func (s *Server) handlePreferenceQuestion(c *gin.Context) {
	if !s.requireAssistant(c) {
		return
	}

	var req preferenceQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	eligible, err := s.eligibleTrials(c, req.PatientID)
	if err != nil {
		respondError(c, err)
		return
	}

	question, err := s.deps.Assistant.PreferenceQuestion(c.Request.Context(), req.QuestionNumber, eligible, req.Previous)
	if err != nil {
		respondGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, question)
}

type narrowRequest struct {
	SessionID string          `json:"session_id"`
	PatientID string          `json:"patient_id" binding:"required"`
	Answers   []preference.QA `json:"answers"`
}

type narrowResponse struct {
	SessionID      string                     `json:"session_id"`
	Recommendation *preference.Recommendation `json:"recommendation"`
	Message        string                     `json:"message"`
}

func (s *Server) handleNarrow(c *gin.Context) {
	var req narrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	eligible, err := s.eligibleTrials(c, req.PatientID)
	if err != nil {
		respondError(c, err)
		return
	}

	rec, err := s.deps.Ranker.Narrow(c.Request.Context(), req.SessionID, eligible, req.Answers)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, narrowResponse{
		SessionID:      req.SessionID,
		Recommendation: rec,
		Message:        preference.RecommendationMessage(rec),
	})
}

type chatRequest struct {
	Message            string `json:"message" binding:"required"`
	PatientID          string `json:"patient_id"`
	State              string `json:"state"`
	CurrentTrialID     string `json:"current_trial_id"`
	RecommendedTrialID string `json:"recommended_trial_id"`
}

type chatResponse struct {
	Response          string `json:"response"`
	ConversationEnded bool   `json:"conversation_ended"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	if llm.DetectConversationEnd(req.Message) {
		c.JSON(http.StatusOK, chatResponse{Response: llm.OutroMessage(), ConversationEnded: true})
		return
	}
	if !s.requireAssistant(c) {
		return
	}

	chatCtx := llm.ChatContext{State: req.State}
	if req.PatientID != "" {
		patient, err := s.deps.Matching.LoadPatient(c.Request.Context(), req.PatientID)
		if err != nil {
			respondError(c, err)
			return
		}
		eligible, err := s.eligibleTrials(c, req.PatientID)
		if err != nil {
			respondError(c, err)
			return
		}
		chatCtx.Patient = patient
		chatCtx.EligibleTrials = eligible
		chatCtx.CurrentTrial = findTrial(eligible, req.CurrentTrialID)
		chatCtx.RecommendedTrial = findTrial(eligible, req.RecommendedTrialID)
	}

	answer, err := s.deps.Assistant.Chat(c.Request.Context(), req.Message, chatCtx)
	if err != nil {
		respondGenerationError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse{Response: answer})
}

type conversationEndRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleConversationEnd(c *gin.Context) {
	var req conversationEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ended := llm.DetectConversationEnd(req.Message)
	resp := gin.H{"ended": ended}
	if ended {
		resp["message"] = llm.OutroMessage()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requireAssistant(c *gin.Context) bool {
	if s.deps.Assistant != nil {
		return true
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, domain.NewAPIError(
		domain.CodeGenerationError, "Text generation is not configured", "",
		c.GetString(middleware.CorrelationIDKey)))
	return false
}

func (s *Server) eligibleTrials(c *gin.Context, patientID string) ([]domain.TrialEvaluation, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, domain.NewValidationError("patient_id", "patient_id is required", patientID)
	}
	evals, err := s.deps.Matching.AnalyzeAllTrials(c.Request.Context(), patientID)
	if err != nil {
		return nil, err
	}
	return service.EligibleTrials(evals), nil
}

func findTrial(evals []domain.TrialEvaluation, trialID string) *domain.TrialEvaluation {
	if trialID == "" {
		return nil
	}
	for i := range evals {
		if evals[i].TrialID == trialID {
			return &evals[i]
		}
	}
	return nil
}
