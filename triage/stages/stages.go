// Package stages implements the conversational triage flow: the specialist
// stage handlers, the symptom analysis sub-flow, and the graph wiring that
// connects them. Stage handlers are pure with respect to state: they read a
// snapshot and return a sparse [triage.StageResult]; the shared reducer does
// every merge.
package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vaidyahealth/vaidya/core/client"
	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/providers/ai"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/routing"
	"github.com/vaidyahealth/vaidya/triage/tools"
)

// Shorthand instantiations of the generic graph types for the triage domain.
type (
	State   = triage.ConversationState
	Result  = triage.StageResult
	Emitter = graph.Emitter[State, Result]
	Flow    = graph.Graph[State, Result]
)

var _ graph.Reducer[State, Result] = triage.Reducer{}

// Stage IDs of the outer flow and the symptom analysis sub-flow.
const (
	StageGreeting        graph.StageID = "greeting"
	StageCompactor       graph.StageID = "compactor"
	StageSupervisor      graph.StageID = "supervisor"
	StageSymptomAnalysis graph.StageID = "symptom_analysis"
	StageHistory         graph.StageID = "history"
	StagePreventive      graph.StageID = "preventive"
	StageDrugInteraction graph.StageID = "drug_interaction"
	StageProviderLocator graph.StageID = "provider_locator"
	StageEREmergency     graph.StageID = "er_emergency"
	StageClarification   graph.StageID = "clarification"
	StageFinalResponse   graph.StageID = "final_response"
	StageSaveAssessment  graph.StageID = "save_assessment"

	// Symptom analysis sub-flow stages.
	StageExtract      graph.StageID = "symptom_extract"
	StageRedFlagCheck graph.StageID = "red_flag_check"
	StageEmergency    graph.StageID = "emergency"
	StageInterview    graph.StageID = "interview"
	StageAssess       graph.StageID = "triage_assessment"
)

// silentStages never speak to the user. Any token they emit, and any message
// the synthesis layer would otherwise replay for them, is dropped.
var silentStages = map[graph.StageID]bool{
	StageCompactor:      true,
	StageSupervisor:     true,
	StageHistory:        true,
	StagePreventive:     true,
	StageSaveAssessment: true,
	StageExtract:        true,
	StageRedFlagCheck:   true,
	StageEmergency:      true,
	StageAssess:         true,
}

// IsSilent reports whether a stage's output is hidden from the user.
func IsSilent(id graph.StageID) bool {
	return silentStages[id]
}

// statusEventText maps the STATUS:* vocabulary to the progress text shown to
// the user while the corresponding work runs.
var statusEventText = map[string]string{
	"STATUS:SYMPTOM_ANALYSIS":     "Analyzing your symptoms...",
	"STATUS:CHECKING_HISTORY":     "Checking your medical history...",
	"STATUS:SEARCHING_PROVIDERS":  "Searching for healthcare providers near you...",
	"STATUS:CHECKING_MEDICATIONS": "Checking your medications for interactions...",
	"STATUS:PREVENTIVE_CARE":      "Reviewing preventive care recommendations...",
	"STATUS:TRIAGE_ASSESSMENT":    "Assessing how urgent this is...",
	"STATUS:GENERATING_RESPONSE":  "Preparing your response...",
	"STATUS:EMERGENCY_DETECTED":   "Emergency indicators detected...",
	"STATUS:ER_SEARCH":            "Finding emergency services near you...",
	"STATUS:ER_FOUND":             "Emergency information found.",
	"STATUS:ER_SEARCH_FAILED":     "Could not reach the emergency directory; showing default numbers.",
	"STATUS:WAITING_LOCATION":     "Waiting for your location to find nearby help...",
}

// StatusText resolves a status event to its user-facing progress text. Unknown
// events resolve to ("", false) and are not displayed.
func StatusText(event string) (string, bool) {
	text, known := statusEventText[event]
	return text, known
}

// AssessmentSaver persists a completed triage assessment. Implemented by the
// session store; kept narrow here so stage tests can stub it.
type AssessmentSaver interface {
	SaveAssessment(ctx context.Context, sessionID string, state State) error
}

// Deps carries everything the stage handlers need. Classifier drives routing,
// compaction, and extraction prompts; Interviewer phrases interview questions;
// Clinical produces assessments and final responses. Any client may be nil, in
// which case the owning handler uses its deterministic fallback.
type Deps struct {
	Policy      *routing.Policy
	Classifier  *client.Client
	Interviewer *client.Client
	Clinical    *client.Client

	Records   *tools.RecordService
	Directory *tools.Directory
	Saver     AssessmentSaver

	Logger *slog.Logger

	CompactFirstThreshold  int
	CompactRepeatThreshold int
	WindowMinMessages      int
	WindowTailMessages     int
}

func (deps Deps) logger() *slog.Logger {
	if deps.Logger == nil {
		return slog.Default()
	}
	return deps.Logger
}

// window builds the prompt window for the current state using the configured
// compaction shape.
func (deps Deps) window(state State) []ai.Message {
	return triage.PromptWindow(state, deps.WindowMinMessages, deps.WindowTailMessages)
}

// BuildFlow compiles the full triage flow. The symptom analysis stage is a
// nested sub-flow whose inner tokens stream through with their own stage
// attribution.
func BuildFlow(deps Deps) (*Flow, error) {
	symptomFlow, err := BuildSymptomFlow(deps)
	if err != nil {
		return nil, err
	}

	builder := graph.NewBuilder[State, Result](triage.Reducer{})

	builder.
		AddStage(StageGreeting, greetingHandler(deps)).
		AddStage(StageCompactor, compactorHandler(deps)).
		AddStage(StageSupervisor, supervisorHandler(deps)).
		AddStage(StageSymptomAnalysis, graph.Subflow(symptomFlow)).
		AddStage(StageHistory, historyHandler(deps)).
		AddStage(StagePreventive, preventiveHandler(deps)).
		AddStage(StageDrugInteraction, drugInteractionHandler(deps)).
		AddStage(StageProviderLocator, providerLocatorHandler(deps)).
		AddStage(StageEREmergency, erEmergencyHandler(deps)).
		AddStage(StageClarification, clarificationHandler(deps)).
		AddStage(StageFinalResponse, finalResponseHandler(deps)).
		AddStage(StageSaveAssessment, saveAssessmentHandler(deps))

	// Every specialist loops back through the compactor to the supervisor,
	// which routes again (or ends the turn) until the final response is
	// reached. Only the final response and the assessment save sit past the
	// supervisor loop.
	builder.
		SetEntry(StageGreeting).
		AddConditionalEdge(StageGreeting, afterGreeting).
		AddEdge(StageCompactor, StageSupervisor).
		AddConditionalEdge(StageSupervisor, dispatchToSpecialist).
		AddConditionalEdge(StageSymptomAnalysis, afterSymptomAnalysis).
		AddEdge(StageHistory, StageCompactor).
		AddEdge(StagePreventive, StageCompactor).
		AddEdge(StageDrugInteraction, StageCompactor).
		AddEdge(StageProviderLocator, StageCompactor).
		AddEdge(StageEREmergency, StageCompactor).
		AddEdge(StageClarification, StageCompactor).
		AddConditionalEdge(StageFinalResponse, afterFinalResponse).
		AddEdge(StageSaveAssessment, graph.End)

	return builder.Build(
		graph.WithLogger[State, Result](deps.logger()),
		graph.WithFallback[State, Result](stageFallback),
	)
}

// BuildSymptomFlow compiles the symptom analysis sub-flow: deterministic
// extraction, red-flag screening, then either emergency latching, the next
// interview question, or the triage assessment.
func BuildSymptomFlow(deps Deps) (*Flow, error) {
	builder := graph.NewBuilder[State, Result](triage.Reducer{})

	builder.
		AddStage(StageExtract, extractHandler(deps)).
		AddStage(StageRedFlagCheck, redFlagHandler(deps)).
		AddStage(StageEmergency, emergencyHandler(deps)).
		AddStage(StageInterview, interviewHandler(deps)).
		AddStage(StageAssess, assessHandler(deps))

	builder.
		SetEntry(StageExtract).
		AddEdge(StageExtract, StageRedFlagCheck).
		AddConditionalEdge(StageRedFlagCheck, afterRedFlagCheck).
		AddEdge(StageEmergency, graph.End).
		AddEdge(StageInterview, graph.End).
		AddEdge(StageAssess, graph.End)

	return builder.Build(
		graph.WithLogger[State, Result](deps.logger()),
		graph.WithFallback[State, Result](stageFallback),
	)
}

const stageFailureReply = "I'm sorry, something went wrong on my side while I was " +
	"working on that. Please send your message again in a moment. If this is a " +
	"life-threatening emergency, don't wait for me: call your local emergency number now."

// stageFallback is the partial merged when a stage fails or panics. It ends
// the turn with an apologetic message so the user is never left without a
// reply, and records the failure on the state for the synthesis layer and the
// next turn's routing.
func stageFallback(stageID graph.StageID, err error) Result {
	wrapped := &triage.StageExecutionError{Stage: string(stageID), Err: err}
	result := triage.AssistantSays(stageFailureReply)
	result.LastError = triage.String(wrapped.Error())
	result.ShouldContinue = triage.Bool(false)
	return result
}

// afterGreeting ends the turn when the greeting stage answered it directly.
func afterGreeting(state State) graph.StageID {
	if state.NextStage == string(graph.End) {
		return graph.End
	}
	return StageCompactor
}

// dispatchToSpecialist maps the supervisor's routing decision onto a stage.
// An unset or unknown target falls through to the final response so a turn
// can never stall.
func dispatchToSpecialist(state State) graph.StageID {
	if state.NextStage == string(graph.End) {
		return graph.End
	}
	switch routing.Destination(state.NextStage) {
	case routing.DestSymptomAnalysis:
		return StageSymptomAnalysis
	case routing.DestHistory:
		return StageHistory
	case routing.DestPreventive:
		return StagePreventive
	case routing.DestDrugInteraction:
		return StageDrugInteraction
	case routing.DestProviderLocator:
		return StageProviderLocator
	case routing.DestEREmergency:
		return StageEREmergency
	case routing.DestClarification:
		return StageClarification
	default:
		return StageFinalResponse
	}
}

// afterSymptomAnalysis routes out of the symptom sub-flow. A fresh emergency
// goes straight to the ER lookup; everything else loops back through the
// compactor so the supervisor can route the next step (history review, final
// response) or end the turn while an interview question waits for its answer.
func afterSymptomAnalysis(state State) graph.StageID {
	if state.EmergencyMode && !state.ERSearchTriggered {
		return StageEREmergency
	}
	return StageCompactor
}

// afterFinalResponse persists the assessment once one exists, then ends.
func afterFinalResponse(state State) graph.StageID {
	if state.Classification != "" && !state.AssessmentSaved {
		return StageSaveAssessment
	}
	return graph.End
}

// streamCompletion streams a model response through the emitter token by
// token and returns the accumulated text. A mid-stream failure returns the
// partial text together with the error so callers can decide whether it is
// usable.
func streamCompletion(ctx context.Context, aiClient *client.Client, emitter *Emitter, systemPrompt string, messages []ai.Message) (string, error) {
	stream, err := aiClient.StreamMessage(ctx, systemPrompt, messages)
	if err != nil {
		return "", err
	}

	var accumulated strings.Builder
	for event, streamErr := range stream.Iter() {
		if streamErr != nil {
			return accumulated.String(), streamErr
		}
		if event.Type != ai.StreamEventContent || event.Content == "" {
			continue
		}
		accumulated.WriteString(event.Content)
		if !emitter.Emit(event.Content) {
			break
		}
	}
	return accumulated.String(), nil
}
