package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/preference"
)

// PreferenceQuestion is one generated question of the narrowing dialogue.
// Question is empty once every question has been asked.
type PreferenceQuestion struct {
	Number   int    `json:"question_number"`
	Question string `json:"question,omitempty"`
	IsFinal  bool   `json:"is_final"`
}

// Assistant pairs a generator with the conversation prompts.
type Assistant struct {
	generator Generator
	logger    *logrus.Logger
}

// NewAssistant creates an assistant backed by the given generator.
func NewAssistant(generator Generator, logger *logrus.Logger) *Assistant {
	return &Assistant{generator: generator, logger: logger}
}

// PatientIntro writes the patient's opening message from their note.
func (a *Assistant) PatientIntro(ctx context.Context, patient *domain.PatientProfile, patientName string) (string, error) {
	if patient == nil {
		return "", domain.NewValidationError("patient", "patient profile is required", nil)
	}
	return a.generate(ctx, "patient_intro", PatientIntroPrompt(patientName, patient.NoteText()))
}

// RequestAdditionalInfo asks the patient for what their introduction left out.
func (a *Assistant) RequestAdditionalInfo(ctx context.Context, patient *domain.PatientProfile, intro string) (string, error) {
	if patient == nil {
		return "", domain.NewValidationError("patient", "patient profile is required", nil)
	}
	return a.generate(ctx, "additional_info", AdditionalInfoPrompt(intro, patient.NoteText()))
}

// PreferenceQuestion generates question n of the narrowing dialogue. Past the
// final question it returns an empty final question without calling the generator.
func (a *Assistant) PreferenceQuestion(ctx context.Context, n int, eligible []domain.TrialEvaluation, previous []preference.QA) (*PreferenceQuestion, error) {
	if n < 1 {
		return nil, domain.NewValidationError("question_number", "question numbers start at 1", n)
	}

	prompt, ok := PreferenceQuestionPrompt(n, eligible, previous)
	if !ok {
		return &PreferenceQuestion{Number: n, IsFinal: true}, nil
	}

	text, err := a.generate(ctx, "preference_question", prompt)
	if err != nil {
		return nil, err
	}
	return &PreferenceQuestion{
		Number:   n,
		Question: text,
		IsFinal:  n >= FinalPreferenceQuestion,
	}, nil
}

// FollowUp asks further narrowing questions after a rejected recommendation.
func (a *Assistant) FollowUp(ctx context.Context, feedback string, eligibleCount int) (string, error) {
	return a.generate(ctx, "follow_up", FollowUpPrompt(feedback, eligibleCount))
}

// Chat answers a free-form patient question.
func (a *Assistant) Chat(ctx context.Context, message string, c ChatContext) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", domain.NewValidationError("message", "message cannot be empty", message)
	}
	return a.generate(ctx, "chat", ChatPrompt(message, c))
}

func (a *Assistant) generate(ctx context.Context, kind, prompt string) (string, error) {
	text, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		a.logger.WithError(err).WithField("kind", kind).Warn("Generation failed")
		return "", fmt.Errorf("failed to generate %s: %w", kind, err)
	}
	return strings.TrimSpace(text), nil
}
