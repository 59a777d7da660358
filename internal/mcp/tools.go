package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/eligibility"
	"github.com/trial-matching-mcp-server/internal/preference"
	"github.com/trial-matching-mcp-server/internal/service"
)

// CheckEligibilityParams selects a patient and trial either inline or by id.
type CheckEligibilityParams struct {
	Patient   map[string]any `json:"patient,omitempty" jsonschema:"patient profile with conditions, used instead of patient_id"`
	Trial     map[string]any `json:"trial,omitempty" jsonschema:"trial profile with inclusion and exclusion criteria, used instead of trial_id"`
	PatientID string         `json:"patient_id,omitempty" jsonschema:"id of a stored patient profile"`
	TrialID   string         `json:"trial_id,omitempty" jsonschema:"id of one of the patient's retrieved trials"`
}

// CheckEligibilityResult is the verdict for one patient and trial.
type CheckEligibilityResult struct {
	TrialID     string                       `json:"trial_id"`
	Eligible    bool                         `json:"eligible"`
	Summary     string                       `json:"summary"`
	Explanation string                       `json:"explanation,omitempty"`
	Reasoning   *domain.EligibilityReasoning `json:"reasoning"`
}

// NormalizeParams lists the variable names to canonicalize.
type NormalizeParams struct {
	Variable  string   `json:"variable,omitempty" jsonschema:"a single condition or criterion identifier"`
	Variables []string `json:"variables,omitempty" jsonschema:"several identifiers"`
}

// NormalizedVariable pairs an identifier with its canonical form.
type NormalizedVariable struct {
	Original   string `json:"original"`
	Normalized string `json:"normalized"`
	Gender     bool   `json:"gender"`
	Ignored    bool   `json:"ignored"`
}

// NormalizeResult lists the canonical form of each requested identifier.
type NormalizeResult struct {
	Variables []NormalizedVariable `json:"variables"`
}

// AnalyzePatientParams selects the patient whose trials are evaluated.
type AnalyzePatientParams struct {
	PatientID    string `json:"patient_id" jsonschema:"id of a stored patient profile"`
	EligibleOnly bool   `json:"eligible_only,omitempty" jsonschema:"return only the trials the patient qualifies for"`
}

// NarrowTrialsParams carries the preference answers for re-ranking.
type NarrowTrialsParams struct {
	PatientID string          `json:"patient_id" jsonschema:"id of a stored patient profile"`
	SessionID string          `json:"session_id,omitempty" jsonschema:"conversation session; generated when empty"`
	Answers   []preference.QA `json:"answers,omitempty" jsonschema:"answered preference questions in order"`
}

// NarrowTrialsResult is the single recommended trial.
type NarrowTrialsResult struct {
	SessionID      string                     `json:"session_id"`
	Recommendation *preference.Recommendation `json:"recommendation"`
	Message        string                     `json:"message"`
}

// PreferenceQuestionParams asks for the next narrowing question.
type PreferenceQuestionParams struct {
	PatientID      string          `json:"patient_id" jsonschema:"id of a stored patient profile"`
	QuestionNumber int             `json:"question_number" jsonschema:"1 to 3"`
	Previous       []preference.QA `json:"previous,omitempty" jsonschema:"questions already answered"`
}

func (s *LiteServer) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "check_trial_eligibility",
		Description: "Evaluate one patient against one clinical trial and return the criterion-level reasoning",
	}, s.handleCheckEligibility)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "normalize_variable",
		Description: "Canonicalize condition or criterion identifiers so temporal variants compare equal",
	}, s.handleNormalize)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze_patient_trials",
		Description: "Evaluate a stored patient against every retrieved trial",
	}, s.handleAnalyzePatient)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "explain_eligibility",
		Description: "Explain in plain language why a patient is or is not eligible for a trial",
	}, s.handleExplain)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "narrow_trials",
		Description: "Re-rank a patient's eligible trials against preference answers and recommend one",
	}, s.handleNarrow)

	count := 5
	if s.assistant != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "preference_question",
			Description: "Generate the next question used to narrow a patient's eligible trials",
		}, s.handlePreferenceQuestion)
		count++
	}

	s.logger.WithField("tool_count", count).Info("Registered MCP tools")
}

func (s *LiteServer) handleCheckEligibility(ctx context.Context, req *mcp.CallToolRequest, params CheckEligibilityParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "check_trial_eligibility").Info("Tool invoked")

	result, err := s.checkEligibility(ctx, params, false)
	if err != nil {
		return s.errorResult("Eligibility check failed", err), nil, nil
	}
	return s.jsonResult(result.Summary, result)
}

func (s *LiteServer) handleExplain(ctx context.Context, req *mcp.CallToolRequest, params CheckEligibilityParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "explain_eligibility").Info("Tool invoked")

	result, err := s.checkEligibility(ctx, params, true)
	if err != nil {
		return s.errorResult("Explanation failed", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Explanation}},
	}, result, nil
}

func (s *LiteServer) handleNormalize(ctx context.Context, req *mcp.CallToolRequest, params NormalizeParams) (*mcp.CallToolResult, any, error) {
	names := params.Variables
	if params.Variable != "" {
		names = append([]string{params.Variable}, names...)
	}
	if len(names) == 0 {
		return s.errorResult("Missing required parameter",
			domain.NewValidationError("variable", "variable or variables is required", nil)), nil, nil
	}

	results := make([]NormalizedVariable, 0, len(names))
	lines := make([]string, 0, len(names))
	for _, name := range names {
		n := NormalizedVariable{
			Original:   name,
			Normalized: eligibility.Normalize(name),
			Gender:     eligibility.IsGenderCriterion(name),
			Ignored:    eligibility.ShouldIgnoreCriterion(name),
		}
		results = append(results, n)
		lines = append(lines, fmt.Sprintf("%s -> %s", n.Original, n.Normalized))
	}
	return s.jsonResult(strings.Join(lines, "\n"), NormalizeResult{Variables: results})
}

func (s *LiteServer) handleAnalyzePatient(ctx context.Context, req *mcp.CallToolRequest, params AnalyzePatientParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "analyze_patient_trials", "patient_id": params.PatientID}).Info("Tool invoked")

	if params.PatientID == "" {
		return s.errorResult("Missing required parameter",
			domain.NewValidationError("patient_id", "patient_id is required", nil)), nil, nil
	}

	result, err := s.matching.EvaluatePatientTrials(ctx, params.PatientID)
	if err != nil {
		return s.errorResult("Analysis failed", err), nil, nil
	}
	if params.EligibleOnly {
		result.Trials = service.EligibleTrials(result.Trials)
	}

	summary := fmt.Sprintf("Patient %s is eligible for %d of %d trials.",
		result.PatientID, result.Summary.EligibleTrials, result.Summary.TotalTrials)
	return s.jsonResult(summary, result)
}

func (s *LiteServer) handleNarrow(ctx context.Context, req *mcp.CallToolRequest, params NarrowTrialsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": "narrow_trials", "patient_id": params.PatientID}).Info("Tool invoked")

	eligible, err := s.eligibleTrials(ctx, params.PatientID)
	if err != nil {
		return s.errorResult("Narrowing failed", err), nil, nil
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	rec, err := s.ranker.Narrow(ctx, sessionID, eligible, params.Answers)
	if err != nil {
		return s.errorResult("Narrowing failed", err), nil, nil
	}

	result := NarrowTrialsResult{
		SessionID:      sessionID,
		Recommendation: rec,
		Message:        preference.RecommendationMessage(rec),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: result.Message}},
	}, result, nil
}

func (s *LiteServer) handlePreferenceQuestion(ctx context.Context, req *mcp.CallToolRequest, params PreferenceQuestionParams) (*mcp.CallToolResult, any, error) {
	eligible, err := s.eligibleTrials(ctx, params.PatientID)
	if err != nil {
		return s.errorResult("Question generation failed", err), nil, nil
	}

	question, err := s.assistant.PreferenceQuestion(ctx, params.QuestionNumber, eligible, params.Previous)
	if err != nil {
		return s.errorResult("Question generation failed", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: question.Question}},
	}, question, nil
}

// checkEligibility resolves the patient and trial from inline profiles or
// stored ids, then evaluates them.
func (s *LiteServer) checkEligibility(ctx context.Context, params CheckEligibilityParams, explain bool) (*CheckEligibilityResult, error) {
	patient, err := s.resolvePatient(ctx, params)
	if err != nil {
		return nil, err
	}
	trial, err := s.resolveTrial(ctx, params)
	if err != nil {
		return nil, err
	}

	reasoning := s.matching.CheckEligibility(patient, trial)
	result := &CheckEligibilityResult{
		TrialID:   trial.ID(),
		Eligible:  reasoning.Eligible,
		Summary:   eligibility.Summary(reasoning),
		Reasoning: reasoning,
	}
	if explain {
		result.Explanation = eligibility.Explain(reasoning)
	}
	return result, nil
}

func (s *LiteServer) resolvePatient(ctx context.Context, params CheckEligibilityParams) (*domain.PatientProfile, error) {
	if params.Patient != nil {
		var patient domain.PatientProfile
		if err := remarshal(params.Patient, &patient); err != nil {
			return nil, domain.NewValidationError("patient", "patient profile is malformed", err.Error())
		}
		return &patient, nil
	}
	if params.PatientID == "" {
		return nil, domain.NewValidationError("patient_id", "patient or patient_id is required", nil)
	}
	return s.matching.LoadPatient(ctx, params.PatientID)
}

func (s *LiteServer) resolveTrial(ctx context.Context, params CheckEligibilityParams) (*domain.TrialProfile, error) {
	if params.Trial != nil {
		var trial domain.TrialProfile
		if err := remarshal(params.Trial, &trial); err != nil {
			return nil, domain.NewValidationError("trial", "trial profile is malformed", err.Error())
		}
		return &trial, nil
	}
	if params.PatientID == "" || params.TrialID == "" {
		return nil, domain.NewValidationError("trial_id", "trial or patient_id with trial_id is required", nil)
	}

	trial, err := s.matching.FindTrial(ctx, params.PatientID, params.TrialID)
	if err != nil {
		return nil, err
	}
	return trial, nil
}

func (s *LiteServer) eligibleTrials(ctx context.Context, patientID string) ([]domain.TrialEvaluation, error) {
	if patientID == "" {
		return nil, domain.NewValidationError("patient_id", "patient_id is required", nil)
	}
	evals, err := s.matching.AnalyzeAllTrials(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return service.EligibleTrials(evals), nil
}

// jsonResult renders a summary line followed by the pretty-printed payload.
func (s *LiteServer) jsonResult(summary string, payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.errorResult("Failed to encode result", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}, payload, nil
}

func (s *LiteServer) errorResult(message string, err error) *mcp.CallToolResult {
	s.logger.WithError(err).Warn(message)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)}},
	}
}

func remarshal(in map[string]any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
