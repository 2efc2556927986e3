package routing

import (
	"github.com/vaidyahealth/vaidya/triage"
)

// Canned reasons the overrides attach so the audit trail shows a safety rule
// fired rather than a policy choice.
const (
	reasonEmergencySticky   = "Emergency mode is active; every subsequent turn goes to the final response."
	reasonERClassified      = "Conversation is classified ER_NOW; only emergency-relevant specialists may run."
	reasonTooFewMedications = "Need at least 2 medications to check interactions."
)

// ApplyOverrides enforces the safety rules on a candidate decision. The rules
// run in priority order and are absolute: no routing path, LLM or fallback,
// bypasses them.
//
//  1. Sticky emergency: once EmergencyMode latched, everything routes to the
//     final response.
//  2. An ER_NOW classification confines routing to the final response unless
//     the candidate is already the final response, the provider locator, or
//     the ER emergency stage.
//  3. A drug interaction check with fewer than two known medications becomes
//     a clarification request instead.
func ApplyOverrides(state triage.ConversationState, decision Decision) Decision {
	if state.EmergencyMode && decision.NextStage != DestFinalResponse {
		return Decision{
			NextStage:   DestFinalResponse,
			Reason:      reasonEmergencySticky,
			Intent:      decision.Intent,
			StatusEvent: StatusEventFor(DestFinalResponse),
		}
	}

	if state.Classification == triage.LevelERNow && !emergencyCompatible(decision.NextStage) {
		return Decision{
			NextStage:   DestFinalResponse,
			Reason:      reasonERClassified,
			Intent:      decision.Intent,
			StatusEvent: StatusEventFor(DestFinalResponse),
		}
	}

	if decision.NextStage == DestDrugInteraction && len(state.AllMedications()) < 2 {
		return Decision{
			NextStage: DestClarification,
			Reason:    reasonTooFewMedications,
			Intent:    decision.Intent,
		}
	}

	return decision
}

// emergencyCompatible reports whether a destination may still run once the
// conversation is classified ER_NOW.
func emergencyCompatible(destination Destination) bool {
	switch destination {
	case DestFinalResponse, DestProviderLocator, DestEREmergency:
		return true
	default:
		return false
	}
}
