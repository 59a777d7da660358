package domain

import (
	"encoding/json"
	"time"
)

// GenderGroupKey is the normalized key reported for an unmatched gender group.
const GenderGroupKey = "gender_criterion_group"

// ConditionDetail is the part of a patient condition that explains a match.
// Extracted value and type are carried only when the source condition had them.
type ConditionDetail struct {
	PreferredTerm string
	ConceptID     string
	SpanMatch     string

	ExtractedValue    any
	HasExtractedValue bool
	Type              string
	HasType           bool
}

// DetailFromCondition copies the explanatory fields of a condition.
func DetailFromCondition(c Condition) ConditionDetail {
	return ConditionDetail{
		PreferredTerm:     c.PreferredTerm,
		ConceptID:         c.ConceptID,
		SpanMatch:         c.SpanMatch,
		ExtractedValue:    c.ExtractedValue,
		HasExtractedValue: c.HasExtractedValue,
		Type:              c.Type,
		HasType:           c.HasType,
	}
}

func (d ConditionDetail) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"preferred_term": d.PreferredTerm,
		"conceptId":      d.ConceptID,
		"span_match":     d.SpanMatch,
	}
	if d.HasExtractedValue {
		out["extracted_value"] = d.ExtractedValue
	}
	if d.HasType {
		out["type"] = d.Type
	}
	return json.Marshal(out)
}

func (d *ConditionDetail) UnmarshalJSON(data []byte) error {
	var c Condition
	if err := c.UnmarshalJSON(data); err != nil {
		return err
	}
	*d = DetailFromCondition(c)
	return nil
}

// CriterionResult is the evaluation of one criterion (or one gender group)
type CriterionResult struct {
	Criterion          string            `json:"criterion"`
	Normalized         string            `json:"normalized"`
	PatientHas         bool              `json:"patient_has"`
	Details            []ConditionDetail `json:"details,omitempty"`
	ReadableName       string            `json:"readable_name"`
	IsGenderGroup      bool              `json:"is_gender_group,omitempty"`
	GenderGroupOptions []string          `json:"gender_group_options,omitempty"`
}

// InclusionDetails holds the classified inclusion entries
type InclusionDetails struct {
	Met     []CriterionResult `json:"met"`
	Missing []CriterionResult `json:"missing"`
}

// InclusionResult summarises inclusion criteria
type InclusionResult struct {
	Total   int              `json:"total"`
	Met     int              `json:"met"`
	Missing int              `json:"missing"`
	Details InclusionDetails `json:"details"`
}

// ExclusionDetails holds the classified exclusion entries
type ExclusionDetails struct {
	Satisfied []CriterionResult `json:"satisfied"`
	Violated  []CriterionResult `json:"violated"`
}

// ExclusionResult summarises exclusion criteria
type ExclusionResult struct {
	Total     int              `json:"total"`
	Satisfied int              `json:"satisfied"`
	Violated  int              `json:"violated"`
	Details   ExclusionDetails `json:"details"`
}

// EligibilityReasoning is the explainable verdict for one patient and one trial
type EligibilityReasoning struct {
	Eligible          bool            `json:"eligible"`
	InclusionCriteria InclusionResult `json:"inclusion_criteria"`
	ExclusionCriteria ExclusionResult `json:"exclusion_criteria"`
}

// TrialEvaluation pairs a trial with its reasoning
type TrialEvaluation struct {
	TrialID   string                `json:"trial_id"`
	Title     string                `json:"title"`
	Rank      string                `json:"rank,omitempty"`
	FileName  string                `json:"file_name,omitempty"`
	Phase     string                `json:"phase,omitempty"`
	Drugs     []string              `json:"drugs,omitempty"`
	Diseases  []string              `json:"diseases,omitempty"`
	Eligible  bool                  `json:"eligible"`
	Reasoning *EligibilityReasoning `json:"reasoning"`
	Trial     *TrialProfile         `json:"-"`
}

// NewTrialEvaluation pairs a trial with the reasoning produced for it.
func NewTrialEvaluation(trial *TrialProfile, reasoning *EligibilityReasoning) TrialEvaluation {
	info := trial.Info()
	eval := TrialEvaluation{
		TrialID:   trial.ID(),
		Title:     info.Title,
		Phase:     info.Phase,
		Drugs:     info.Drugs,
		Diseases:  info.Diseases,
		Reasoning: reasoning,
		Trial:     trial,
	}
	if trial != nil {
		eval.Rank = trial.RankFolder
		eval.FileName = trial.FileName
	}
	if reasoning != nil {
		eval.Eligible = reasoning.Eligible
	}
	return eval
}

// EvaluationSummary counts the verdicts of one patient run
type EvaluationSummary struct {
	TotalTrials      int `json:"total_trials"`
	EligibleTrials   int `json:"eligible_trials"`
	IneligibleTrials int `json:"ineligible_trials"`
}

// PatientEvaluation is every trial verdict for one patient
type PatientEvaluation struct {
	PatientID      string            `json:"patient_id"`
	PatientSummary string            `json:"patient_summary,omitempty"`
	Summary        EvaluationSummary `json:"summary"`
	Trials         []TrialEvaluation `json:"trials"`
	EvaluatedAt    time.Time         `json:"evaluated_at"`
}

// Summarize recomputes the summary counts from the trial list.
func (p *PatientEvaluation) Summarize() {
	p.Summary = EvaluationSummary{TotalTrials: len(p.Trials)}
	for _, t := range p.Trials {
		if t.Eligible {
			p.Summary.EligibleTrials++
		}
	}
	p.Summary.IneligibleTrials = p.Summary.TotalTrials - p.Summary.EligibleTrials
}
