package routing

import (
	"testing"

	"github.com/vaidyahealth/vaidya/triage"
)

func TestOverridesStickyEmergencyRedirectsEverything(t *testing.T) {
	state := triage.ConversationState{EmergencyMode: true}

	for _, candidate := range []Destination{
		DestSymptomAnalysis, DestHistory, DestPreventive, DestDrugInteraction,
		DestProviderLocator, DestEREmergency, DestClarification,
	} {
		decision := ApplyOverrides(state, Decision{NextStage: candidate, Intent: "whatever"})
		if decision.NextStage != DestFinalResponse {
			t.Errorf("emergency mode routed %s to %s, want final_response", candidate, decision.NextStage)
		}
		if decision.Intent != "whatever" {
			t.Errorf("override dropped the inferred intent")
		}
	}
}

func TestOverridesEmergencyModeKeepsFinalResponse(t *testing.T) {
	state := triage.ConversationState{EmergencyMode: true}
	original := Decision{NextStage: DestFinalResponse, Reason: "policy said so"}

	decision := ApplyOverrides(state, original)
	if decision.Reason != "policy said so" {
		t.Error("final_response decision was rewritten under emergency mode")
	}
}

func TestOverridesERNowConfinesDestinations(t *testing.T) {
	state := triage.ConversationState{Classification: triage.LevelERNow}

	for _, candidate := range []Destination{DestSymptomAnalysis, DestHistory, DestPreventive, DestDrugInteraction} {
		decision := ApplyOverrides(state, Decision{NextStage: candidate})
		if decision.NextStage != DestFinalResponse {
			t.Errorf("ER_NOW allowed %s, want redirect to final_response", candidate)
		}
	}

	for _, allowed := range []Destination{DestFinalResponse, DestProviderLocator, DestEREmergency} {
		decision := ApplyOverrides(state, Decision{NextStage: allowed})
		if decision.NextStage != allowed {
			t.Errorf("ER_NOW redirected compatible destination %s to %s", allowed, decision.NextStage)
		}
	}
}

func TestOverridesStickyEmergencyWinsOverERNow(t *testing.T) {
	state := triage.ConversationState{
		EmergencyMode:  true,
		Classification: triage.LevelERNow,
	}

	// The provider locator is ER_NOW-compatible, but sticky emergency mode
	// still forces the final response.
	decision := ApplyOverrides(state, Decision{NextStage: DestProviderLocator})
	if decision.NextStage != DestFinalResponse {
		t.Errorf("got %s, want final_response from the sticky rule", decision.NextStage)
	}
	if decision.Reason != reasonEmergencySticky {
		t.Errorf("reason = %q, want the sticky emergency reason", decision.Reason)
	}
}

func TestOverridesDrugCheckNeedsTwoMedications(t *testing.T) {
	state := triage.ConversationState{UserMedications: []string{"warfarin"}}

	decision := ApplyOverrides(state, Decision{NextStage: DestDrugInteraction})
	if decision.NextStage != DestClarification {
		t.Fatalf("got %s, want clarification", decision.NextStage)
	}
	if decision.Reason != "Need at least 2 medications to check interactions." {
		t.Errorf("reason = %q", decision.Reason)
	}
}

func TestOverridesDrugCheckCountsRecordMedications(t *testing.T) {
	// One self-reported plus one from the record is enough.
	state := triage.ConversationState{
		UserMedications:    []string{"warfarin"},
		CurrentMedications: []string{"ibuprofen"},
	}

	decision := ApplyOverrides(state, Decision{NextStage: DestDrugInteraction})
	if decision.NextStage != DestDrugInteraction {
		t.Errorf("got %s, want drug_interaction to proceed", decision.NextStage)
	}
}

func TestOverridesPassThroughWhenNoRuleFires(t *testing.T) {
	decision := ApplyOverrides(triage.ConversationState{}, Decision{
		NextStage: DestSymptomAnalysis,
		Reason:    "interview incomplete",
		Intent:    "symptom_report",
	})
	if decision.NextStage != DestSymptomAnalysis || decision.Reason != "interview incomplete" {
		t.Errorf("clean decision was modified: %+v", decision)
	}
}
