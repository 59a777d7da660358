package llm

import "strings"

var (
	satisfiedPhrases = []string{
		"no", "nope", "no thanks", "i'm good", "im good", "all good",
		"that's all", "thats all", "that's it", "thats it",
		"perfect", "sounds good", "looks good", "this is great", "that's great", "thats great",
		"i'm satisfied", "im satisfied", "i'm all set", "im all set", "all set",
	}
	gratitudePhrases = []string{"thank you", "thanks", "appreciate it", "appreciate this"}

	// Any of these keeps the conversation going.
	dissatisfiedPhrases = []string{
		"not sure", "don't think", "dont think", "other options", "different trial",
		"not right", "not interested", "tell me more", "what about", "can you explain",
	}
)

const shortMessageWords = 10

// DetectConversationEnd reports whether a message signals the patient is done.
// Phrases are matched as substrings of the lower-cased message.
func DetectConversationEnd(message string) bool {
	lower := strings.ToLower(message)

	if containsAny(lower, dissatisfiedPhrases) {
		return false
	}

	grateful := containsAny(lower, gratitudePhrases)
	satisfied := containsAny(lower, satisfiedPhrases)
	if grateful && satisfied {
		return true
	}

	if len(strings.Fields(message)) <= shortMessageWords {
		return grateful || satisfied
	}
	return false
}

// OutroMessage closes a conversation with the medical-advice disclaimer.
func OutroMessage() string {
	return `Thank you for exploring your clinical trial options with me. I hope this helped you find a promising match.

**Important Disclaimer:** This assistant helps you discover potential clinical trial matches, but it is **not a substitute for professional medical advice**. Please consult with your healthcare provider before making any medical decisions, including enrollment in clinical trials. Your doctor can provide personalized guidance based on your complete medical history and current health status.

I wish you the very best on your health journey. Take care!`
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
