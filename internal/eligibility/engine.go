package eligibility

import (
	"github.com/sirupsen/logrus"

	"github.com/trial-matching-mcp-server/internal/domain"
)

// Engine wraps Evaluate with logging for use by services
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a new eligibility engine
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Evaluate checks one patient against one trial.
func (e *Engine) Evaluate(patient *domain.PatientProfile, trial *domain.TrialProfile) *domain.EligibilityReasoning {
	reasoning := Evaluate(patient, trial)

	patientID := ""
	if patient != nil {
		patientID = patient.PatientID
	}
	e.logger.WithFields(logrus.Fields{
		"patient_id":         patientID,
		"trial_id":           trial.ID(),
		"eligible":           reasoning.Eligible,
		"inclusion_met":      reasoning.InclusionCriteria.Met,
		"inclusion_missing":  reasoning.InclusionCriteria.Missing,
		"exclusion_violated": reasoning.ExclusionCriteria.Violated,
	}).Debug("Evaluated trial eligibility")

	return reasoning
}
