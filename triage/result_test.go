package triage

import (
	"testing"
)

func TestApplyAppendsMessagesWithoutRewritingHistory(t *testing.T) {
	state := ConversationState{
		Messages:     []Message{NewMessage(RoleUser, "hi")},
		MessageCount: 1,
	}

	merged := Reducer{}.Apply(state, StageResult{
		Messages: []Message{NewMessage(RoleAssistant, "hello")},
	})

	if len(merged.Messages) != 2 || merged.MessageCount != 2 {
		t.Fatalf("message log = %d entries (count %d), want 2", len(merged.Messages), merged.MessageCount)
	}
	if merged.Messages[0].Content != "hi" {
		t.Errorf("existing history changed: %q", merged.Messages[0].Content)
	}
	if len(state.Messages) != 1 {
		t.Errorf("input state mutated: %d messages", len(state.Messages))
	}
}

func TestApplyMonotonicFlagsNeverReset(t *testing.T) {
	state := ConversationState{EmergencyMode: true, GoldenFourComplete: true}

	merged := Reducer{}.Apply(state, StageResult{})

	if !merged.EmergencyMode || !merged.GoldenFourComplete {
		t.Error("latched flags were cleared by an empty result")
	}

	merged = Reducer{}.Apply(ConversationState{}, StageResult{HistoryAnalyzed: true})
	if !merged.HistoryAnalyzed {
		t.Error("HistoryAnalyzed did not latch")
	}
}

func TestApplyOverwritableFieldsAreSparse(t *testing.T) {
	state := ConversationState{ChiefComplaint: "headache", Severity: 7}

	// A result that does not touch a field leaves it alone.
	merged := Reducer{}.Apply(state, StageResult{Duration: String("two days")})
	if merged.ChiefComplaint != "headache" || merged.Severity != 7 {
		t.Errorf("untouched fields changed: %+v", merged)
	}
	if merged.Duration != "two days" {
		t.Errorf("Duration = %q, want %q", merged.Duration, "two days")
	}

	// A set pointer overwrites, even to a zero value.
	merged = Reducer{}.Apply(merged, StageResult{ChiefComplaint: String("")})
	if merged.ChiefComplaint != "" {
		t.Errorf("explicit zero overwrite ignored: %q", merged.ChiefComplaint)
	}
}

func TestApplyClassificationAndSlices(t *testing.T) {
	merged := Reducer{}.Apply(ConversationState{}, StageResult{
		Classification:  Level(LevelERNow),
		Recommendations: []string{"call an ambulance"},
	})
	if merged.Classification != LevelERNow {
		t.Errorf("Classification = %q", merged.Classification)
	}
	if len(merged.Recommendations) != 1 {
		t.Errorf("Recommendations = %v", merged.Recommendations)
	}

	// nil slice in the result leaves the stored slice alone.
	merged = Reducer{}.Apply(merged, StageResult{})
	if len(merged.Recommendations) != 1 {
		t.Error("nil slice overwrote stored recommendations")
	}
}

func TestApplyMergesHistoryLookupFields(t *testing.T) {
	merged := Reducer{}.Apply(ConversationState{}, StageResult{
		PatientID:          String("patient-17"),
		HistorySummary:     String("hypertension, managed"),
		RiskLevel:          String("moderate"),
		CurrentMedications: []string{"lisinopril"},
	})

	if merged.PatientID != "patient-17" {
		t.Errorf("PatientID = %q, want patient-17", merged.PatientID)
	}
	if merged.HistorySummary != "hypertension, managed" || merged.RiskLevel != "moderate" {
		t.Errorf("history fields not merged: %+v", merged)
	}

	// Untouched by later results.
	merged = Reducer{}.Apply(merged, StageResult{RiskLevel: String("high")})
	if merged.PatientID != "patient-17" {
		t.Errorf("PatientID lost on an unrelated merge: %q", merged.PatientID)
	}

	folded := Reducer{}.Fold(StageResult{PatientID: String("old")}, StageResult{PatientID: String("new")})
	if folded.PatientID == nil || *folded.PatientID != "new" {
		t.Errorf("folded PatientID = %v, want the later value", folded.PatientID)
	}
}

func TestFoldMatchesSequentialApply(t *testing.T) {
	first := StageResult{
		Messages:       []Message{NewMessage(RoleAssistant, "one")},
		EmergencyMode:  true,
		Severity:       Int(4),
		StatusEvents:   []string{"STATUS:SYMPTOM_ANALYSIS"},
		ShouldContinue: Bool(true),
	}
	second := StageResult{
		Messages:       []Message{NewMessage(RoleAssistant, "two")},
		Severity:       Int(9),
		StatusEvents:   []string{"STATUS:TRIAGE_ASSESSMENT"},
		ShouldContinue: Bool(false),
	}

	folded := Reducer{}.Fold(first, second)
	viaFold := Reducer{}.Apply(ConversationState{}, folded)
	sequential := Reducer{}.Apply(Reducer{}.Apply(ConversationState{}, first), second)

	if len(viaFold.Messages) != 2 || viaFold.Messages[1].Content != "two" {
		t.Errorf("folded messages = %v", viaFold.Messages)
	}
	if viaFold.Severity != sequential.Severity {
		t.Errorf("folded severity %d != sequential %d", viaFold.Severity, sequential.Severity)
	}
	if viaFold.EmergencyMode != sequential.EmergencyMode {
		t.Error("folded emergency flag diverges from sequential apply")
	}
	if viaFold.ShouldContinue != sequential.ShouldContinue {
		t.Error("folded ShouldContinue diverges from sequential apply")
	}
	if len(folded.StatusEvents) != 2 {
		t.Errorf("folded status events = %v, want both preserved", folded.StatusEvents)
	}
}

func TestMissingGoldenFourOrder(t *testing.T) {
	state := ConversationState{ChiefComplaint: "chest pain"}
	missing := state.MissingGoldenFour()

	want := []QuestionType{AskLocation, AskDuration, AskSeverity}
	if len(missing) != len(want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
	for index := range want {
		if missing[index] != want[index] {
			t.Errorf("missing[%d] = %q, want %q", index, missing[index], want[index])
		}
	}
}

func TestAllMedicationsDeduplicates(t *testing.T) {
	state := ConversationState{
		CurrentMedications: []string{"warfarin", "lisinopril"},
		UserMedications:    []string{"lisinopril", "ibuprofen", ""},
	}

	combined := state.AllMedications()
	want := []string{"warfarin", "lisinopril", "ibuprofen"}
	if len(combined) != len(want) {
		t.Fatalf("AllMedications = %v, want %v", combined, want)
	}
	for index := range want {
		if combined[index] != want[index] {
			t.Errorf("combined[%d] = %q, want %q", index, combined[index], want[index])
		}
	}
}

func TestLastUserMessage(t *testing.T) {
	state := ConversationState{Messages: []Message{
		NewMessage(RoleUser, "first"),
		NewMessage(RoleAssistant, "reply"),
		NewMessage(RoleUser, "second"),
	}}
	if got := state.LastUserMessage(); got != "second" {
		t.Errorf("LastUserMessage = %q, want %q", got, "second")
	}
	if got := (ConversationState{}).LastUserMessage(); got != "" {
		t.Errorf("empty log LastUserMessage = %q, want empty", got)
	}
}
