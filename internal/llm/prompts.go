package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/preference"
)

// FinalPreferenceQuestion is the number of the last preference question.
const FinalPreferenceQuestion = 3

const maxListedCriteria = 10

// Conversation states that shape the chat context.
const (
	StateReviewingTrials      = "reviewing_trials"
	StateGatheringPreferences = "gathering_preferences"
	StatePostRecommendation   = "post_recommendation"
	StateInteractive          = "interactive"
)

// PatientIntroPrompt asks for a short first-person introduction drawn from the note.
func PatientIntroPrompt(patientName, note string) string {
	return fmt.Sprintf(`Convert the following medical note into a brief, natural first-person introduction for a patient seeking clinical trial matches.

IMPORTANT CONTEXT: The patient (%s) is talking to an AI assistant that helps match patients with clinical trials. They are NOT talking to a doctor or healthcare provider.

The patient should:
- Introduce themselves briefly by name
- Mention they're looking for clinical trial opportunities
- Briefly describe their main condition or symptoms (2-3 sentences)
- Keep it conversational and concise

Do NOT include age, gender, detailed medical history, test results, specific diagnoses, procedures or medications. Just the basics of what brought them to seek trials.

Medical Note: %s

First-Person Introduction:`, patientName, note)
}

// AdditionalInfoPrompt asks for a request covering what the introduction left out.
func AdditionalInfoPrompt(intro, note string) string {
	return fmt.Sprintf(`The patient said: "%s"

Based on the complete medical record below, identify what KEY information the patient did NOT mention that would be important for clinical trial matching.

Complete Medical Record: %s

Generate a warm, conversational request asking the patient to provide the missing information needed for trial matching. Ask about:
- Age and gender (if not mentioned)
- Relevant medical history
- Current medications
- Other conditions or diagnoses
- Any procedures or treatments

Keep it friendly. Make it clear you're an AI assistant helping them find clinical trials.

Agent's Request:`, intro, note)
}

// PreferenceQuestionPrompt builds the prompt for preference question n. It
// returns false when n is past the final question.
func PreferenceQuestionPrompt(n int, eligible []domain.TrialEvaluation, previous []preference.QA) (string, bool) {
	var topic string
	switch n {
	case 1:
		topic = "Generate ONE conversational question to understand the patient's preference regarding trial phase (early vs. later phase trials).\n\nMake it warm, empathetic, and focused on helping them understand the choice."
	case 2:
		topic = "Based on their previous answer, generate ONE follow-up question about treatment approaches or specific aspects they're interested in or want to avoid.\n\nMake it warm, conversational, and build on their previous response."
	case 3:
		topic = "Based on their previous answers, generate ONE final question to understand what matters most to them (innovation, safety, convenience, duration).\n\nMake it warm, conversational, and help them prioritize."
	default:
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are helping a patient narrow down %d eligible clinical trials.\n\n", len(eligible))
	b.WriteString(trialCharacteristicsContext(eligible))
	if n > 1 && len(previous) > 0 {
		b.WriteString("\nPrevious questions and answers:\n")
		for i, qa := range previous {
			fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, qa.Question, i+1, qa.Answer)
		}
	}
	fmt.Fprintf(&b, "\n%s Keep it to 2-3 sentences maximum.\n\nYour question:", topic)
	return b.String(), true
}

func trialCharacteristicsContext(eligible []domain.TrialEvaluation) string {
	phases := map[string]struct{}{}
	diseases := map[string]struct{}{}
	for _, e := range eligible {
		if e.Phase != "" && e.Phase != "N/A" {
			phases[e.Phase] = struct{}{}
		}
		for _, d := range e.Diseases {
			diseases[d] = struct{}{}
		}
	}

	phaseList := "Not specified"
	if len(phases) > 0 {
		phaseList = strings.Join(sortedKeys(phases), ", ")
	}
	diseaseList := "Various"
	if len(diseases) > 0 {
		sorted := sortedKeys(diseases)
		if len(sorted) > 5 {
			sorted = sorted[:5]
		}
		diseaseList = strings.Join(sorted, ", ")
	}

	return fmt.Sprintf("Available trial characteristics:\n- Phases: %s\n- Focus areas/diseases: %s\n- Number of trials: %d\n",
		phaseList, diseaseList, len(eligible))
}

// FollowUpPrompt asks for questions that narrow further after a rejected recommendation.
func FollowUpPrompt(feedback string, eligibleCount int) string {
	return fmt.Sprintf(`The patient was not satisfied with the recommended trial. Their feedback: "%s"

Based on their feedback and the %d eligible trials, generate 1-2 follow-up questions to better understand what they're looking for.

Be empathetic and acknowledge their concerns. Ask about specific aspects that might help narrow down the options further.

Follow-up questions:`, feedback, eligibleCount)
}

// ChatContext is what the assistant knows when answering a free-form question.
type ChatContext struct {
	State            string                   `json:"state"`
	Patient          *domain.PatientProfile   `json:"-"`
	CurrentTrial     *domain.TrialEvaluation  `json:"current_trial,omitempty"`
	RecommendedTrial *domain.TrialEvaluation  `json:"recommended_trial,omitempty"`
	EligibleTrials   []domain.TrialEvaluation `json:"eligible_trials,omitempty"`
	Scores           []preference.TrialScore  `json:"scores,omitempty"`
}

// ChatPrompt answers a patient question grounded in the conversation context.
func ChatPrompt(message string, c ChatContext) string {
	var sections []string

	if c.Patient != nil && c.Patient.NoteText() != "" {
		sections = append(sections, "Patient Information:\n"+c.Patient.NoteText())
	}

	switch c.State {
	case StateReviewingTrials:
		if c.CurrentTrial != nil {
			sections = append(sections, "Current Trial Being Reviewed:\n"+describeTrial(*c.CurrentTrial, false))
		}
	case StatePostRecommendation, StateGatheringPreferences:
		if c.RecommendedTrial != nil {
			sections = append(sections, "Recommended Trial (Complete Profile):\n"+describeTrial(*c.RecommendedTrial, true))
		}
		if len(c.Scores) > 0 {
			sections = append(sections, describeScores(c.Scores, c.EligibleTrials))
		}
		if len(c.EligibleTrials) > 1 {
			var b strings.Builder
			b.WriteString("All Eligible Trials for Comparison:\n")
			for i, e := range c.EligibleTrials {
				fmt.Fprintf(&b, "%d. %s\n   - Trial ID: %s\n   - Phase: %s\n   - Focus: %s\n",
					i+1, orNA(e.Title), orNA(e.TrialID), orDefault(e.Phase, "Not listed"), strings.Join(e.Diseases, ", "))
			}
			sections = append(sections, b.String())
		}
	case StateInteractive:
		if c.RecommendedTrial != nil {
			sections = append(sections, "Recommended Trial:\n"+describeTrial(*c.RecommendedTrial, false))
		}
		if len(c.EligibleTrials) > 1 {
			sections = append(sections, fmt.Sprintf("You also have %d other eligible trial(s) available.", len(c.EligibleTrials)-1))
		}
	}

	background := "No specific trial context available yet."
	if len(sections) > 0 {
		background = strings.Join(sections, "\n\n")
	}

	return fmt.Sprintf(`You are a compassionate clinical trial matching assistant helping a patient explore their clinical trial options.

CONTEXT:
%s

PATIENT QUESTION:
%s

INSTRUCTIONS:
- Answer the patient's question accurately using the context provided
- For questions about inclusion or exclusion criteria, list them clearly and explain why the patient meets or doesn't meet them
- For questions about treatments or trial details, use the trial information
- For questions comparing trials or about preference scores, explain the scoring rationale
- If the information isn't in the context, say so honestly
- Be empathetic, supportive, and clear
- Format lists with bullet points for readability
- After answering, ask if they have any other questions

Your response:`, background, message)
}

func describeTrial(e domain.TrialEvaluation, complete bool) string {
	var info domain.TrialInfo
	if e.Trial != nil {
		info = e.Trial.Info()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Title: %s\n- Trial ID: %s\n- Phase: %s\n- Focus Areas: %s\n",
		orNA(e.Title), orNA(e.TrialID), orDefault(e.Phase, "Not listed"), strings.Join(e.Diseases, ", "))
	if complete && len(info.Interventions) > 0 {
		fmt.Fprintf(&b, "- Interventions: %s\n", strings.Join(info.Interventions, ", "))
	}
	fmt.Fprintf(&b, "- Brief Summary: %s\n", orNA(info.BriefSummary))
	verdict := "NOT ELIGIBLE"
	if e.Eligible {
		verdict = "ELIGIBLE"
	}
	fmt.Fprintf(&b, "- Eligibility: %s\n", verdict)

	if !complete || e.Trial == nil {
		return b.String()
	}

	b.WriteString("\nInclusion Criteria:\n")
	for _, c := range firstN(e.Trial.InclusionCriteria, maxListedCriteria) {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	b.WriteString("\nExclusion Criteria:\n")
	for _, c := range firstN(e.Trial.ExclusionCriteria, maxListedCriteria) {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	if r := e.Reasoning; r != nil {
		fmt.Fprintf(&b, "\nEligibility Reasoning:\n- Patient meets %d of %d inclusion criteria\n- Patient violates %d of %d exclusion criteria\n",
			r.InclusionCriteria.Met, r.InclusionCriteria.Total, r.ExclusionCriteria.Violated, r.ExclusionCriteria.Total)
	}
	return b.String()
}

func describeScores(scores []preference.TrialScore, eligible []domain.TrialEvaluation) string {
	titles := make(map[string]string, len(eligible))
	for _, e := range eligible {
		titles[e.TrialID] = e.Title
	}

	var b strings.Builder
	b.WriteString("Preference Matching Scores:\n")
	for i, s := range scores {
		title := titles[s.TrialID]
		if title == "" {
			title = s.TrialID
		}
		if len(title) > 60 {
			title = title[:60]
		}
		fmt.Fprintf(&b, "%d. %s - %d points\n", i+1, title, s.Score)
		if len(s.Reasons) > 0 {
			fmt.Fprintf(&b, "   Reasons: %s\n", strings.Join(s.Reasons, ", "))
		}
	}
	return b.String()
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func orNA(s string) string {
	return orDefault(s, "N/A")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
