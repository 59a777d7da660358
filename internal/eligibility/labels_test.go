package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trial-matching-mcp-server/internal/domain"
)

func TestFormatCriterionName(t *testing.T) {
	tests := []struct {
		name      string
		criterion string
		details   []domain.ConditionDetail
		want      string
	}{
		{"history window", "patient_has_diabetes_inthehistory", nil, "Diabetes in the past"},
		{"now becomes currently", "patient_has_asthma_now", nil, "Asthma currently"},
		{"abbreviation", "patient_has_cancer_hx", nil, "Cancer history"},
		{"dropped verb", "patient_has_undergone_appendectomy_inthehistory", nil, "Appendectomy in the past"},
		{"dropped finding", "patient_has_finding_of_fever_now", nil, "Fever currently"},
		{"can prefix", "patient_can_walk_unassisted", nil, "Walk unassisted"},
		{"patients prefix", "patients_must_consent", nil, "Must consent"},
		{"sex without value", "patient_sex_is_male", nil, "Sex is male"},
		{"empty", "", nil, ""},
		{
			"age with value",
			"patient_age_value_recorded_in_years",
			[]domain.ConditionDetail{{ExtractedValue: float64(58), HasExtractedValue: true, Type: "Int", HasType: true}},
			"age of 58 years",
		},
		{
			"female flag",
			"patient_sex_is_female",
			[]domain.ConditionDetail{{ExtractedValue: true, HasExtractedValue: true, Type: "Bool", HasType: true}},
			"female gender",
		},
		{
			"male flag",
			"patient_sex_is_male_now",
			[]domain.ConditionDetail{{ExtractedValue: true, HasExtractedValue: true, Type: "Bool", HasType: true}},
			"male gender",
		},
		{
			"false flag falls back",
			"patient_sex_is_male",
			[]domain.ConditionDetail{{ExtractedValue: false, HasExtractedValue: true, Type: "Bool", HasType: true}},
			"Sex is male",
		},
		{
			"value without type falls back",
			"patient_age_value_recorded_in_years",
			[]domain.ConditionDetail{{ExtractedValue: float64(40), HasExtractedValue: true}},
			"Age value recorded in years",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCriterionName(tt.criterion, tt.details))
		})
	}
}

func TestPhraseCriterion(t *testing.T) {
	tests := []struct {
		label string
		met   bool
		want  string
	}{
		{"Asthma currently", true, "You currently have asthma"},
		{"Diabetes in the past", true, "You've had diabetes"},
		{"Hypertension", true, "You have Hypertension"},
		{"age of 58 years", true, "You meet the age requirement"},
		{"female gender", true, "You meet the gender requirement"},
		{"Asthma currently", false, "You don't currently have an asthma"},
		{"Stroke in the past", false, "You haven't had a stroke"},
		{"Hypertension", false, "You don't have a Hypertension"},
		{"Gender: Sex is male OR Sex is female", false, "You don't meet the gender requirement"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, PhraseCriterion(tt.label, tt.met))
		})
	}
}
