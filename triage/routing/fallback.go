package routing

import (
	"strings"

	"github.com/vaidyahealth/vaidya/triage"
)

// Keyword tables for the deterministic fallback router. Matching is
// case-insensitive substring search over the last user message.
var (
	crisisKeywords = []string{
		"kill myself", "suicide", "end my life", "want to die", "hurt myself",
		"self harm", "self-harm",
	}
	providerKeywords = []string{
		"find a doctor", "find doctor", "nearest hospital", "hospital near",
		"doctor near", "near me", "nearby", "find clinic", "recommend a doctor",
		"specialist near",
	}
	medicationKeywords = []string{
		"drug interaction", "interactions", "can i take", "take together",
		"safe to take", "mix my med", "combine my med", "my medications",
	}
)

// FallbackDecide routes without a model. It keys off the last user message and
// the workflow's progress flags, so routing stays functional when the
// classification model is down or its reply cannot be decoded.
func FallbackDecide(state triage.ConversationState) Decision {
	if state.EmergencyMode {
		return Decision{
			NextStage:   DestFinalResponse,
			Reason:      "Emergency mode is active; all turns route to the final response.",
			StatusEvent: StatusEventFor(DestFinalResponse),
		}
	}

	lastMessage := strings.ToLower(state.LastUserMessage())

	if matchesAny(lastMessage, crisisKeywords) {
		return Decision{
			NextStage:   DestSymptomAnalysis,
			Reason:      "Crisis language detected in the user message.",
			Intent:      "crisis",
			StatusEvent: StatusEventFor(DestSymptomAnalysis),
		}
	}
	if matchesAny(lastMessage, providerKeywords) {
		return Decision{
			NextStage:   DestProviderLocator,
			Reason:      "User asked to find a provider.",
			Intent:      "find_provider",
			StatusEvent: StatusEventFor(DestProviderLocator),
		}
	}
	if matchesAny(lastMessage, medicationKeywords) {
		return Decision{
			NextStage:   DestDrugInteraction,
			Reason:      "User asked about medications.",
			Intent:      "check_medications",
			StatusEvent: StatusEventFor(DestDrugInteraction),
		}
	}

	// No keyword hit: advance the workflow by progress.
	if !state.GoldenFourComplete {
		return Decision{
			NextStage:   DestSymptomAnalysis,
			Reason:      "Symptom interview is incomplete.",
			Intent:      "symptom_report",
			StatusEvent: StatusEventFor(DestSymptomAnalysis),
		}
	}
	if !state.HistoryAnalyzed {
		return Decision{
			NextStage:   DestHistory,
			Reason:      "Medical history has not been reviewed yet.",
			StatusEvent: StatusEventFor(DestHistory),
		}
	}

	return Decision{
		NextStage:   DestFinalResponse,
		Reason:      "All workflow steps complete; generating the final response.",
		StatusEvent: StatusEventFor(DestFinalResponse),
	}
}

func matchesAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
