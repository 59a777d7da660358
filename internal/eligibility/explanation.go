package eligibility

import (
	"fmt"
	"strings"

	"github.com/trial-matching-mcp-server/internal/domain"
)

// MaxListedReasons caps the reasons listed for an ineligible verdict.
const MaxListedReasons = 5

// Explain renders an eligibility verdict as patient-facing text.
func Explain(reasoning *domain.EligibilityReasoning) string {
	if reasoning == nil {
		return ""
	}
	if reasoning.Eligible {
		return explainEligible(reasoning)
	}
	return explainIneligible(reasoning)
}

func explainEligible(r *domain.EligibilityReasoning) string {
	var parts []string

	met := r.InclusionCriteria.Details.Met
	if len(met) > 0 {
		var demographic, other []domain.CriterionResult
		for _, c := range met {
			if isDemographicLabel(labelOf(c)) {
				demographic = append(demographic, c)
			} else {
				other = append(other, c)
			}
		}

		switch {
		case len(demographic) > 0 && len(other) > 0:
			parts = append(parts, fmt.Sprintf("You meet all %d required inclusion criteria:", len(met)))
			parts = append(parts, "  • You meet the age and gender requirements")
			for _, c := range other {
				parts = append(parts, "  • "+PhraseCriterion(labelOf(c), true))
			}
		case len(demographic) > 0:
			parts = append(parts, "You meet the age and gender requirements for this trial.")
		default:
			parts = append(parts, fmt.Sprintf("You meet all %d required inclusion criteria:", len(met)))
			for _, c := range other {
				parts = append(parts, "  • "+PhraseCriterion(labelOf(c), true))
			}
		}
	}

	if total := r.ExclusionCriteria.Total; total > 0 {
		parts = append(parts, fmt.Sprintf("\nAdditionally, you don't have any of the %d exclusion conditions that would disqualify you from this trial.", total))
	}

	if len(parts) == 0 {
		return "This trial lists no criteria that rule you out."
	}
	return strings.Join(parts, "\n")
}

func explainIneligible(r *domain.EligibilityReasoning) string {
	parts := []string{"Unfortunately, you don't qualify for this trial. Here's why:\n"}
	listed := 0
	total := r.InclusionCriteria.Missing + r.ExclusionCriteria.Violated

	if missing := r.InclusionCriteria.Details.Missing; len(missing) > 0 {
		parts = append(parts, "**Missing Required Criteria:**")
		for i, c := range missing {
			if listed >= MaxListedReasons {
				break
			}
			parts = append(parts, fmt.Sprintf("  %d. %s", i+1, PhraseCriterion(labelOf(c), false)))
			listed++
		}
	}

	if violated := r.ExclusionCriteria.Details.Violated; len(violated) > 0 && listed < MaxListedReasons {
		parts = append(parts, "\n**Exclusion Criteria Violated:**")
		for i, c := range violated {
			if listed >= MaxListedReasons {
				break
			}
			parts = append(parts, fmt.Sprintf("  %d. %s", i+1, phraseViolation(labelOf(c))))
			listed++
		}
	}

	if total > MaxListedReasons {
		parts = append(parts, fmt.Sprintf("\n*Note: There are %d additional reason(s) not listed here for brevity*", total-MaxListedReasons))
	}
	return strings.Join(parts, "\n")
}

func phraseViolation(label string) string {
	lower := strings.ToLower(label)
	for _, prefix := range []string{"age", "gender", "sex", "male", "female"} {
		if strings.HasPrefix(lower, prefix) {
			return fmt.Sprintf("You have %s (which is an exclusion)", label)
		}
	}
	return fmt.Sprintf("You have %s %s (which is an exclusion)", indefiniteArticle(label), label)
}

// Summary is a one-line verdict.
func Summary(reasoning *domain.EligibilityReasoning) string {
	if reasoning == nil {
		return ""
	}
	inc := reasoning.InclusionCriteria
	exc := reasoning.ExclusionCriteria
	if reasoning.Eligible {
		return fmt.Sprintf("Patient is ELIGIBLE. %d of %d inclusion criteria met; none of the %d exclusion criteria violated.",
			inc.Met, inc.Total, exc.Total)
	}
	return fmt.Sprintf("Patient is INELIGIBLE. %d inclusion criteria missing, %d exclusion criteria violated.",
		inc.Missing, exc.Violated)
}

func labelOf(c domain.CriterionResult) string {
	if c.ReadableName != "" {
		return c.ReadableName
	}
	return c.Criterion
}
