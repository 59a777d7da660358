package preference

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trial-matching-mcp-server/internal/domain"
)

// phasePatterns are checked in order; the first match decides the phase.
// Word boundaries keep "phase ii" from reading as phase i.
var phasePatterns = []struct {
	phase   int
	pattern *regexp.Regexp
}{
	{1, regexp.MustCompile(`phase\s*(1|i)\b`)},
	{2, regexp.MustCompile(`phase\s*(2|ii)\b`)},
	{3, regexp.MustCompile(`phase\s*(3|iii)\b`)},
	{4, regexp.MustCompile(`phase\s*(4|iv)\b`)},
}

var invasiveKeywords = []string{
	"surgery", "surgical", "invasive", "injection", "biopsy",
	"catheter", "endoscopy", "procedure", "operation",
}

// ParsePhaseNumber extracts the numeric phase from a phase label, or 0.
func ParsePhaseNumber(phase string) int {
	lower := strings.ToLower(strings.TrimSpace(phase))
	if lower == "" || lower == "not listed" || lower == "n/a" {
		return 0
	}
	for _, p := range phasePatterns {
		if p.pattern.MatchString(lower) {
			return p.phase
		}
	}
	return 0
}

// IsInvasive reports whether the interventions or summary mention an invasive procedure.
func IsInvasive(interventions []string, summary string) bool {
	text := strings.ToLower(strings.Join(interventions, " ") + " " + summary)
	for _, kw := range invasiveKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ClassifyPreferenceType decides which trial attribute a question is about.
func ClassifyPreferenceType(question string) Type {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "phase") || strings.Contains(q, "early") || strings.Contains(q, "late"):
		return TypePhase
	case strings.Contains(q, "invasive") || strings.Contains(q, "treatment approach"):
		return TypeInvasiveness
	case strings.Contains(q, "matter") || strings.Contains(q, "priority") || strings.Contains(q, "important"):
		return TypePriority
	}
	return TypeGeneral
}

// CharacteristicsFor derives the scoring attributes of the i-th eligible trial.
// A trial with an unknown phase counts as early phase.
func CharacteristicsFor(sessionID string, index int, eval domain.TrialEvaluation) TrialCharacteristics {
	var info domain.TrialInfo
	if eval.Trial != nil {
		info = eval.Trial.Info()
	}

	trialID := eval.TrialID
	if trialID == "" {
		trialID = info.TrialID
	}
	if trialID == "" {
		trialID = fmt.Sprintf("trial_%d", index)
	}
	title := firstNonEmpty(eval.Title, info.Title, "Unknown")
	phase := firstNonEmpty(eval.Phase, info.Phase, "Not listed")
	diseases := eval.Diseases
	if len(diseases) == 0 {
		diseases = info.Diseases
	}

	phaseNumeric := ParsePhaseNumber(phase)
	return TrialCharacteristics{
		SessionID:     sessionID,
		TrialID:       trialID,
		TrialIndex:    index,
		Title:         title,
		Phase:         phase,
		PhaseNumeric:  phaseNumeric,
		Diseases:      nonNil(diseases),
		Interventions: nonNil(info.Interventions),
		BriefSummary:  info.BriefSummary,
		IsEarlyPhase:  phaseNumeric <= 2,
		IsLatePhase:   phaseNumeric >= 3,
		IsInvasive:    IsInvasive(info.Interventions, info.BriefSummary),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
