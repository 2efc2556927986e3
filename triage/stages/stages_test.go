package stages

import (
	"errors"
	"strings"
	"testing"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/routing"
)

func TestBuildFlowCompilesWithoutClients(t *testing.T) {
	if _, err := BuildFlow(Deps{}); err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	if _, err := BuildSymptomFlow(Deps{}); err != nil {
		t.Fatalf("BuildSymptomFlow: %v", err)
	}
}

func TestSilentStageTable(t *testing.T) {
	silent := []graph.StageID{
		StageCompactor, StageSupervisor, StageHistory, StagePreventive,
		StageSaveAssessment, StageExtract, StageRedFlagCheck, StageEmergency, StageAssess,
	}
	for _, id := range silent {
		if !IsSilent(id) {
			t.Errorf("%s should be silent", id)
		}
	}

	conversational := []graph.StageID{
		StageGreeting, StageInterview, StageDrugInteraction, StageProviderLocator,
		StageEREmergency, StageClarification, StageFinalResponse,
	}
	for _, id := range conversational {
		if IsSilent(id) {
			t.Errorf("%s should be conversational", id)
		}
	}
}

func TestStatusText(t *testing.T) {
	text, known := StatusText("STATUS:SYMPTOM_ANALYSIS")
	if !known || text != "Analyzing your symptoms..." {
		t.Errorf("StatusText = %q/%v", text, known)
	}
	if _, known := StatusText("STATUS:NOT_A_THING"); known {
		t.Error("unknown status event resolved")
	}
}

func TestDispatchToSpecialist(t *testing.T) {
	cases := map[string]graph.StageID{
		string(routing.DestSymptomAnalysis): StageSymptomAnalysis,
		string(routing.DestHistory):         StageHistory,
		string(routing.DestPreventive):      StagePreventive,
		string(routing.DestDrugInteraction): StageDrugInteraction,
		string(routing.DestProviderLocator): StageProviderLocator,
		string(routing.DestEREmergency):     StageEREmergency,
		string(routing.DestClarification):   StageClarification,
		string(routing.DestFinalResponse):   StageFinalResponse,
		"":                                  StageFinalResponse,
		"something_unknown":                 StageFinalResponse,
		string(graph.End):                   graph.End,
	}
	for nextStage, want := range cases {
		got := dispatchToSpecialist(State{NextStage: nextStage})
		if got != want {
			t.Errorf("dispatch(%q) = %s, want %s", nextStage, got, want)
		}
	}
}

func TestAfterRedFlagCheck(t *testing.T) {
	redFlagged := State{RedFlagsDetected: []string{"cardiac_emergency"}}
	if got := afterRedFlagCheck(redFlagged); got != StageEmergency {
		t.Errorf("red flags routed to %s, want emergency", got)
	}

	// Already latched emergencies do not re-enter the emergency stage.
	redFlagged.EmergencyMode = true
	redFlagged.GoldenFourComplete = true
	if got := afterRedFlagCheck(redFlagged); got != StageAssess {
		t.Errorf("latched emergency routed to %s, want assessment", got)
	}

	complete := State{
		ChiefComplaint:  "headache",
		SymptomLocation: "temples",
		Duration:        "two days",
		Severity:        3,
	}
	if got := afterRedFlagCheck(complete); got != StageAssess {
		t.Errorf("complete interview routed to %s, want assessment", got)
	}

	if got := afterRedFlagCheck(State{ChiefComplaint: "headache"}); got != StageInterview {
		t.Errorf("incomplete interview routed to %s, want interview", got)
	}
}

func TestAfterSymptomAnalysis(t *testing.T) {
	emergency := State{EmergencyMode: true}
	if got := afterSymptomAnalysis(emergency); got != StageEREmergency {
		t.Errorf("fresh emergency routed to %s, want er_emergency", got)
	}

	// Everything else loops back through the compactor; the supervisor
	// decides whether the turn continues or ends.
	emergency.ERSearchTriggered = true
	if got := afterSymptomAnalysis(emergency); got != StageCompactor {
		t.Errorf("searched emergency routed to %s, want compactor", got)
	}
	if got := afterSymptomAnalysis(State{ShouldContinue: false}); got != StageCompactor {
		t.Errorf("paused turn routed to %s, want compactor", got)
	}
	if got := afterSymptomAnalysis(State{ShouldContinue: true}); got != StageCompactor {
		t.Errorf("continuing turn routed to %s, want compactor", got)
	}
}

func TestStageFallbackProducesApology(t *testing.T) {
	result := stageFallback(StageSupervisor, errors.New("model unavailable"))

	if len(result.Messages) != 1 || result.Messages[0].Role != triage.RoleAssistant {
		t.Fatalf("fallback messages = %+v", result.Messages)
	}
	if !strings.Contains(result.Messages[0].Content, "emergency number") {
		t.Errorf("fallback reply lacks the emergency escape hatch: %q", result.Messages[0].Content)
	}
	if result.LastError == nil || !strings.Contains(*result.LastError, "supervisor") {
		t.Errorf("LastError = %v, want the failing stage recorded", result.LastError)
	}
	if result.ShouldContinue == nil || *result.ShouldContinue {
		t.Error("fallback did not pause the turn")
	}
}

func TestAfterFinalResponse(t *testing.T) {
	if got := afterFinalResponse(State{Classification: triage.LevelHome}); got != StageSaveAssessment {
		t.Errorf("unsaved assessment routed to %s, want save_assessment", got)
	}
	if got := afterFinalResponse(State{Classification: triage.LevelHome, AssessmentSaved: true}); got != graph.End {
		t.Errorf("saved assessment routed to %s, want end", got)
	}
	if got := afterFinalResponse(State{}); got != graph.End {
		t.Errorf("unclassified turn routed to %s, want end", got)
	}
}

func TestCaptureAnswerKeyedByLastQuestion(t *testing.T) {
	result := captureAnswer(State{LastQuestionType: triage.AskLocation}, "in my lower back")
	if result.SymptomLocation == nil || *result.SymptomLocation != "in my lower back" {
		t.Errorf("location answer not captured: %+v", result)
	}

	result = captureAnswer(State{LastQuestionType: triage.AskDuration}, "about two days")
	if result.Duration == nil || *result.Duration != "about two days" {
		t.Errorf("duration answer not captured: %+v", result)
	}
}

func TestCaptureAnswerSeverityNumbers(t *testing.T) {
	state := State{LastQuestionType: triage.AskSeverity}

	result := captureAnswer(state, "it's about a 7 I'd say")
	if result.Severity == nil || *result.Severity != 7 {
		t.Errorf("severity not captured from prose: %+v", result)
	}

	result = captureAnswer(state, "10")
	if result.Severity == nil || *result.Severity != 10 {
		t.Errorf("severity 10 not captured: %+v", result)
	}

	// No 1-10 number leaves the field unset so the question is re-asked.
	result = captureAnswer(state, "pretty bad honestly")
	if result.Severity != nil {
		t.Errorf("non-numeric severity answer captured: %+v", result)
	}
}

func TestCaptureAnswerFirstMessageBecomesComplaint(t *testing.T) {
	result := captureAnswer(State{}, "I have a sharp pain in my side")
	if result.ChiefComplaint == nil || *result.ChiefComplaint != "I have a sharp pain in my side" {
		t.Errorf("first substantive message not captured as complaint: %+v", result)
	}

	if result := captureAnswer(State{}, "hello"); result.ChiefComplaint != nil {
		t.Errorf("bare greeting captured as complaint: %+v", result)
	}

	existing := State{ChiefComplaint: "headache"}
	if result := captureAnswer(existing, "something unrelated"); result.ChiefComplaint != nil {
		t.Errorf("complaint overwritten outside an interview question: %+v", result)
	}
}

func TestIsBareGreeting(t *testing.T) {
	for _, greeting := range []string{"hi", "  Hello!  ", "HEY", "good morning", "namaste"} {
		if !isBareGreeting(greeting) {
			t.Errorf("isBareGreeting(%q) = false", greeting)
		}
	}
	for _, message := range []string{"hi, my chest hurts", "help", ""} {
		if isBareGreeting(message) {
			t.Errorf("isBareGreeting(%q) = true", message)
		}
	}
}

func TestSeverityOnlyLevel(t *testing.T) {
	cases := map[int]triage.TriageLevel{
		0: triage.LevelHome, 3: triage.LevelHome,
		5: triage.LevelGPSoon, 7: triage.LevelGPSoon,
		8: triage.LevelGP24h, 10: triage.LevelGP24h,
	}
	for severity, want := range cases {
		if got := severityOnlyLevel(severity); got != want {
			t.Errorf("severityOnlyLevel(%d) = %s, want %s", severity, got, want)
		}
	}
}

func TestNormalizeLevel(t *testing.T) {
	if level, valid := normalizeLevel("  er_now "); !valid || level != triage.LevelERNow {
		t.Errorf("normalizeLevel lowercase = %q/%v", level, valid)
	}
	if _, valid := normalizeLevel("CRITICAL"); valid {
		t.Error("invented level accepted")
	}
}

func TestUrgencyBanner(t *testing.T) {
	if banner := urgencyBanner(State{EmergencyMode: true}); banner == "" {
		t.Error("emergency mode produced no banner")
	}
	if banner := urgencyBanner(State{Classification: triage.LevelGP24h}); banner == "" {
		t.Error("GP_24H produced no banner")
	}
	if banner := urgencyBanner(State{}); banner != "" {
		t.Errorf("unclassified state produced banner %q", banner)
	}
}
