// Package eligibility decides whether a patient's extracted conditions satisfy
// a trial's inclusion and exclusion criteria and explains the verdict.
package eligibility

import (
	"regexp"
	"strings"
)

// rewriteRule is one step of the normalization pipeline. Rules run in table
// order and each is applied exactly once.
type rewriteRule struct {
	name    string
	pattern *regexp.Regexp
	replace string
}

var rewriteRules = []rewriteRule{
	{name: "contextual-window", pattern: regexp.MustCompile(`_inthe[a-z0-9]+$`), replace: ""},
	{name: "now-in-units", pattern: regexp.MustCompile(`_now_in`), replace: "_in"},
}

// temporalSuffixes are checked in order after the rewrite rules; only the
// first match is stripped.
var temporalSuffixes = []string{
	"_now",
	"_currently",
	"_present",
	"_active",
}

// Normalize canonicalizes a condition or criterion identifier so that temporal
// variants of the same fact compare equal.
func Normalize(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))

	for _, rule := range rewriteRules {
		normalized = rule.pattern.ReplaceAllString(normalized, rule.replace)
	}

	for _, suffix := range temporalSuffixes {
		if strings.HasSuffix(normalized, suffix) {
			normalized = strings.TrimSuffix(normalized, suffix)
			break
		}
	}

	return normalized
}

// IsGenderCriterion reports whether a raw criterion names a sex or gender fact.
func IsGenderCriterion(criterion string) bool {
	lower := strings.ToLower(criterion)
	return strings.Contains(lower, "patient_sex_is_") || strings.Contains(lower, "patient_gender_is_")
}

// ShouldIgnoreCriterion reports whether a criterion is dropped before
// evaluation. Age in months or days duplicates the age in years.
func ShouldIgnoreCriterion(criterion string) bool {
	lower := strings.ToLower(criterion)
	if !strings.Contains(lower, "patient_age_value_recorded") {
		return false
	}
	return strings.Contains(lower, "in_months") || strings.Contains(lower, "in_days")
}

// GenderGroup returns the gender criteria of an inclusion list in their listed
// order, or nil when fewer than two exist.
func GenderGroup(criteria []string) []string {
	var group []string
	for _, c := range criteria {
		if IsGenderCriterion(c) {
			group = append(group, c)
		}
	}
	if len(group) < 2 {
		return nil
	}
	return group
}

// filterIgnored drops criteria matched by ShouldIgnoreCriterion.
func filterIgnored(criteria []string) []string {
	kept := make([]string, 0, len(criteria))
	for _, c := range criteria {
		if !ShouldIgnoreCriterion(c) {
			kept = append(kept, c)
		}
	}
	return kept
}
