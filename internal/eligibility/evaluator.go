package eligibility

import (
	"strings"

	"github.com/trial-matching-mcp-server/internal/domain"
)

const genderLabelPrefix = "Gender: "

// Evaluate checks a patient against a trial. Every non-ignored inclusion
// criterion must be present (gender criteria are OR'd when two or more exist)
// and no exclusion criterion may be present. Evaluate is pure and never fails;
// nil inputs are treated as empty records.
func Evaluate(patient *domain.PatientProfile, trial *domain.TrialProfile) *domain.EligibilityReasoning {
	idx := BuildPatientIndex(patient)

	var inclusion, exclusion []string
	if trial != nil {
		inclusion = filterIgnored(trial.InclusionCriteria)
		exclusion = filterIgnored(trial.ExclusionCriteria)
	}

	group := GenderGroup(inclusion)

	met := []domain.CriterionResult{}
	missing := []domain.CriterionResult{}
	evaluated := 0

	for _, criterion := range inclusion {
		if group != nil && IsGenderCriterion(criterion) {
			continue
		}
		evaluated++
		result := evaluateCriterion(idx, criterion)
		if result.PatientHas {
			met = append(met, result)
		} else {
			missing = append(missing, result)
		}
	}

	if group != nil {
		evaluated++
		result := evaluateGenderGroup(idx, group)
		if result.PatientHas {
			met = append(met, result)
		} else {
			missing = append(missing, result)
		}
	}

	satisfied := []domain.CriterionResult{}
	violated := []domain.CriterionResult{}
	for _, criterion := range exclusion {
		result := evaluateCriterion(idx, criterion)
		if result.PatientHas {
			violated = append(violated, result)
		} else {
			satisfied = append(satisfied, result)
		}
	}

	return &domain.EligibilityReasoning{
		Eligible: len(missing) == 0 && len(violated) == 0,
		InclusionCriteria: domain.InclusionResult{
			Total:   evaluated,
			Met:     len(met),
			Missing: len(missing),
			Details: domain.InclusionDetails{Met: met, Missing: missing},
		},
		ExclusionCriteria: domain.ExclusionResult{
			Total:     len(exclusion),
			Satisfied: len(satisfied),
			Violated:  len(violated),
			Details:   domain.ExclusionDetails{Satisfied: satisfied, Violated: violated},
		},
	}
}

func evaluateCriterion(idx *PatientIndex, criterion string) domain.CriterionResult {
	key := Normalize(criterion)
	if !idx.Has(key) {
		return domain.CriterionResult{
			Criterion:    criterion,
			Normalized:   key,
			ReadableName: FormatCriterionName(criterion, nil),
		}
	}

	details := cloneDetails(idx.Details(key))
	return domain.CriterionResult{
		Criterion:    criterion,
		Normalized:   key,
		PatientHas:   true,
		Details:      details,
		ReadableName: FormatCriterionName(criterion, details),
	}
}

// evaluateGenderGroup reports the first option the patient has, or a single
// missing entry standing for the whole group.
func evaluateGenderGroup(idx *PatientIndex, group []string) domain.CriterionResult {
	options := make([]string, len(group))
	copy(options, group)

	for _, criterion := range group {
		result := evaluateCriterion(idx, criterion)
		if result.PatientHas {
			result.IsGenderGroup = true
			result.GenderGroupOptions = options
			return result
		}
	}

	labels := make([]string, 0, len(group))
	for _, criterion := range group {
		labels = append(labels, FormatCriterionName(criterion, nil))
	}

	return domain.CriterionResult{
		Criterion:          strings.Join(group, " OR "),
		Normalized:         domain.GenderGroupKey,
		ReadableName:       genderLabelPrefix + strings.Join(labels, " OR "),
		IsGenderGroup:      true,
		GenderGroupOptions: options,
	}
}

func cloneDetails(in []domain.ConditionDetail) []domain.ConditionDetail {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.ConditionDetail, len(in))
	copy(out, in)
	return out
}
