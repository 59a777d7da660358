package eligibility

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/trial-matching-mcp-server/internal/domain"
)

var labelPrefixes = []string{
	"patient_has_",
	"patient_can_",
	"patients_",
	"patient_",
}

// labelReplacements run in order over the space-separated label.
var labelReplacements = []struct{ old, new string }{
	{"inthehistory", "in the past"},
	{"inthe history", "in the past"},
	{"in thehistory", "in the past"},
	{"in the history", "in the past"},
	{" now", " currently"},
	{" hx", " history"},
	{" dx", " diagnosis"},
	{" tx", " treatment"},
	{"undergone ", ""},
	{"underwent ", ""},
	{"diagnosis of ", ""},
	{"finding of ", ""},
	{"symptoms of ", ""},
}

// FormatCriterionName turns a criterion identifier into a readable label.
// Demographic criteria with an extracted value render as "age of N years" or
// "female gender" / "male gender".
func FormatCriterionName(criterion string, details []domain.ConditionDetail) string {
	lower := strings.ToLower(criterion)
	readable := lower
	for _, prefix := range labelPrefixes {
		if strings.HasPrefix(readable, prefix) {
			readable = strings.TrimPrefix(readable, prefix)
			break
		}
	}

	for _, d := range details {
		if !d.HasExtractedValue {
			continue
		}
		if strings.Contains(lower, "age") && d.Type == "Int" {
			return fmt.Sprintf("age of %s years", formatValue(d.ExtractedValue))
		}
		if strings.Contains(lower, "sex") && d.Type == "Bool" && truthy(d.ExtractedValue) {
			if strings.Contains(lower, "female") {
				return "female gender"
			}
			if strings.Contains(lower, "male") {
				return "male gender"
			}
		}
	}

	readable = strings.ReplaceAll(readable, "_", " ")
	for _, r := range labelReplacements {
		readable = strings.ReplaceAll(readable, r.old, r.new)
	}
	readable = strings.Join(strings.Fields(readable), " ")

	return capitalize(readable)
}

// PhraseCriterion renders a readable label as a second-person sentence
// fragment, for example "You currently have asthma".
func PhraseCriterion(label string, met bool) string {
	lower := strings.ToLower(label)

	switch {
	case strings.Contains(lower, "age") && strings.Contains(lower, "year"):
		if met {
			return "You meet the age requirement"
		}
		return "You don't meet the age requirement"
	case isGenderLabel(lower):
		if met {
			return "You meet the gender requirement"
		}
		return "You don't meet the gender requirement"
	}

	if met {
		switch {
		case strings.Contains(lower, "currently"):
			return "You currently have " + strings.TrimSpace(strings.ReplaceAll(lower, " currently", ""))
		case strings.Contains(lower, "in the past") || strings.Contains(lower, "history of"):
			condition := strings.ReplaceAll(lower, " in the past", "")
			condition = strings.ReplaceAll(condition, "history of ", "")
			return "You've had " + strings.TrimSpace(condition)
		default:
			return "You have " + label
		}
	}

	article := indefiniteArticle(label)
	switch {
	case strings.Contains(lower, "currently"):
		return fmt.Sprintf("You don't currently have %s %s", article, strings.TrimSpace(strings.ReplaceAll(lower, " currently", "")))
	case strings.Contains(lower, "in the past"):
		return fmt.Sprintf("You haven't had %s %s", article, strings.TrimSpace(strings.ReplaceAll(lower, " in the past", "")))
	default:
		return fmt.Sprintf("You don't have %s %s", article, label)
	}
}

func isGenderLabel(lower string) bool {
	switch lower {
	case "male gender", "female gender", "gender", "sex":
		return true
	}
	return strings.Contains(lower, "male") || strings.HasPrefix(lower, "gender:")
}

// isDemographicLabel matches labels collapsed into one bullet when eligible.
func isDemographicLabel(label string) bool {
	lower := strings.ToLower(label)
	for _, word := range []string{"age", "gender", "male", "female", "sex"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func indefiniteArticle(label string) string {
	r, _ := utf8.DecodeRuneInString(label)
	switch unicode.ToLower(r) {
	case 'a', 'e', 'i', 'o', 'u':
		return "an"
	}
	return "a"
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// truthy follows JSON truthiness: false, 0, "", null and empty containers are false.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}
