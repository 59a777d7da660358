package preference

import (
	"fmt"
	"strings"
)

const maxListedItems = 3

// RecommendationMessage renders a recommendation as markdown for the patient.
func RecommendationMessage(rec *Recommendation) string {
	if rec == nil {
		return ""
	}

	t := rec.Trial
	title := t.Title
	if title == "" {
		title = "Unknown trial"
	}
	phase := t.Phase
	if phase == "" {
		phase = "Not listed"
	}

	var interventions []string
	if t.Trial != nil {
		interventions = t.Trial.Info().Interventions
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on your preferences, I recommend: **%s**\n\n", title)
	b.WriteString("**Trial Details:**\n")
	fmt.Fprintf(&b, "• Trial ID: %s\n", t.TrialID)
	fmt.Fprintf(&b, "• Phase: %s\n", phase)
	if len(t.Diseases) > 0 {
		fmt.Fprintf(&b, "• Focus: %s\n", strings.Join(firstN(t.Diseases, maxListedItems), ", "))
	}
	if len(interventions) > 0 {
		fmt.Fprintf(&b, "• Interventions: %s\n", strings.Join(firstN(interventions, maxListedItems), ", "))
	}

	b.WriteString("\n**Learn More:**\n")
	fmt.Fprintf(&b, "Visit ClinicalTrials.gov and search for trial ID: **%s**\n\n", t.TrialID)
	fmt.Fprintf(&b, "Direct link: https://clinicaltrials.gov/study/%s\n\n", t.TrialID)
	b.WriteString(rec.Reasoning)
	return b.String()
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
