package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/stages"
)

// The synthesizer tests run real offline turns: no model clients, so every
// stage takes its deterministic path and all visible text arrives via the
// zero-token replay.

func offlineSynthesizer(t *testing.T, options ...Option) *Synthesizer {
	t.Helper()
	flow, err := stages.BuildFlow(stages.Deps{})
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}
	options = append([]Option{WithTokenPacing(0), WithReplayPacing(0)}, options...)
	return New(flow, options...)
}

func collectTurn(t *testing.T, synthesizer *Synthesizer, state triage.ConversationState, message string) []Event {
	t.Helper()
	var events []Event
	for event := range synthesizer.Turn(context.Background(), state, message) {
		events = append(events, event)
	}
	if len(events) == 0 {
		t.Fatal("turn yielded no events")
	}
	return events
}

func tokenText(events []Event) string {
	var builder strings.Builder
	for _, event := range events {
		if event.Type == EventToken {
			builder.WriteString(event.Content)
		}
	}
	return builder.String()
}

func finalEvent(t *testing.T, events []Event) Event {
	t.Helper()
	last := events[len(events)-1]
	if last.Type != EventComplete {
		t.Fatalf("last event = %s (%q), want complete", last.Type, last.Content)
	}
	return last
}

func TestTurnReplaysStaticReplyAsTokens(t *testing.T) {
	synthesizer := offlineSynthesizer(t)

	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s1"}, "hi")
	complete := finalEvent(t, events)

	if complete.State == nil {
		t.Fatal("complete event carries no state")
	}
	replayed := tokenText(events)
	if replayed == "" {
		t.Fatal("static greeting was not replayed as tokens")
	}
	if complete.Content != replayed {
		t.Errorf("transcript %q does not match the replayed tokens", complete.Content)
	}
	if want := complete.State.Messages[len(complete.State.Messages)-1].Content; replayed != want {
		t.Errorf("replayed text %q differs from the recorded message %q", replayed, want)
	}
}

func TestTurnEmitsStatusBeforeVisibleOutput(t *testing.T) {
	synthesizer := offlineSynthesizer(t)

	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s1"}, "I've had a dull headache")

	firstStatus, firstToken := -1, -1
	for index, event := range events {
		if event.Type == EventStatus && firstStatus < 0 {
			firstStatus = index
		}
		if event.Type == EventToken && firstToken < 0 {
			firstToken = index
		}
	}
	if firstStatus < 0 {
		t.Fatal("no status event emitted")
	}
	if firstToken >= 0 && firstStatus > firstToken {
		t.Error("status arrived after the first visible token")
	}

	for _, event := range events {
		if event.Type == EventStatus && event.StatusCode == "STATUS:SYMPTOM_ANALYSIS" {
			if event.Content != "Analyzing your symptoms..." {
				t.Errorf("status text = %q", event.Content)
			}
			return
		}
	}
	t.Error("symptom analysis status never surfaced")
}

func TestTurnDeduplicatesStatusEvents(t *testing.T) {
	synthesizer := offlineSynthesizer(t)

	// Emergency turns announce STATUS:EMERGENCY_DETECTED both in-band and in
	// the stage result; the client must see it once.
	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s1"},
		"crushing chest pain and I can't breathe")

	counts := map[string]int{}
	for _, event := range events {
		if event.Type == EventStatus {
			counts[event.StatusCode]++
		}
	}
	for code, count := range counts {
		if count > 1 {
			t.Errorf("status %s emitted %d times", code, count)
		}
	}
	if counts["STATUS:EMERGENCY_DETECTED"] != 1 {
		t.Errorf("emergency status emitted %d times, want once", counts["STATUS:EMERGENCY_DETECTED"])
	}

	complete := finalEvent(t, events)
	if !complete.State.EmergencyMode {
		t.Error("final state did not latch emergency mode")
	}
}

func TestTurnAttributesTokensToConversationalStages(t *testing.T) {
	synthesizer := offlineSynthesizer(t)

	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s1"},
		"crushing chest pain and I can't breathe")

	for _, event := range events {
		if event.Type != EventToken {
			continue
		}
		if stages.IsSilent(graph.StageID(event.Stage)) {
			t.Fatalf("token attributed to silent stage %q: %q", event.Stage, event.Content)
		}
	}
}

func TestTurnReplaysFallbackApologyFromSilentStage(t *testing.T) {
	// A flow whose only stage shares its name with a silent production stage
	// and always fails. The fallback partial mirrors the production one: an
	// apology plus the recorded failure.
	builder := graph.NewBuilder[stages.State, stages.Result](triage.Reducer{})
	builder.AddStage(stages.StageSupervisor,
		graph.HandlerFunc[stages.State, stages.Result](func(ctx context.Context, state stages.State, emitter *graph.Emitter[stages.State, stages.Result]) (stages.Result, error) {
			return stages.Result{}, errors.New("routing model unavailable")
		}))
	builder.SetEntry(stages.StageSupervisor).AddEdge(stages.StageSupervisor, graph.End)
	flow, err := builder.Build(graph.WithFallback[stages.State, stages.Result](
		func(stageID graph.StageID, stageErr error) stages.Result {
			result := triage.AssistantSays("I'm sorry, something went wrong on my side.")
			result.LastError = triage.String(stageErr.Error())
			return result
		}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	synthesizer := New(flow, WithTokenPacing(0), WithReplayPacing(0))
	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s1"}, "my head hurts")
	complete := finalEvent(t, events)

	// Silent stages normally replay nothing, but a failure's apology must
	// still reach the user.
	if !strings.Contains(tokenText(events), "something went wrong") {
		t.Fatalf("apology was not streamed: %q", tokenText(events))
	}
	if complete.State == nil || complete.State.LastError == "" {
		t.Error("failure was not recorded on the final state")
	}
}

type recordingPersister struct {
	sessionID string
	state     triage.ConversationState
	err       error
}

func (persister *recordingPersister) SaveState(ctx context.Context, sessionID string, state triage.ConversationState) error {
	persister.sessionID = sessionID
	persister.state = state
	return persister.err
}

// appendingPersister also records per-message appends.
type appendingPersister struct {
	recordingPersister
	appended []triage.Message
}

func (persister *appendingPersister) AppendMessage(ctx context.Context, sessionID string, message triage.Message) error {
	persister.appended = append(persister.appended, message)
	return nil
}

func TestTurnAppendsMessagesToLog(t *testing.T) {
	persister := &appendingPersister{}
	synthesizer := offlineSynthesizer(t, WithPersister(persister))

	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s7"}, "hi")
	finalEvent(t, events)

	if len(persister.appended) != 2 {
		t.Fatalf("appended %d messages, want user turn plus reply", len(persister.appended))
	}
	if persister.appended[0].Role != triage.RoleUser || persister.appended[0].Content != "hi" {
		t.Errorf("first append = %+v", persister.appended[0])
	}
	if persister.appended[1].Role != triage.RoleAssistant {
		t.Errorf("second append = %+v", persister.appended[1])
	}
}

func TestTurnPersistsFinalState(t *testing.T) {
	persister := &recordingPersister{}
	synthesizer := offlineSynthesizer(t, WithPersister(persister))

	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s42"}, "hi")
	finalEvent(t, events)

	if persister.sessionID != "s42" {
		t.Errorf("persisted session = %q, want s42", persister.sessionID)
	}
	if len(persister.state.Messages) != 2 {
		t.Errorf("persisted %d messages, want user turn plus reply", len(persister.state.Messages))
	}
}

func TestTurnPersistenceFailureStillCompletes(t *testing.T) {
	persister := &recordingPersister{err: errors.New("database gone")}
	synthesizer := offlineSynthesizer(t, WithPersister(persister))

	events := collectTurn(t, synthesizer, triage.ConversationState{SessionID: "s1"}, "hi")

	sawPersistenceError := false
	for _, event := range events {
		if event.Type == EventError && event.Code == CodePersistence {
			sawPersistenceError = true
		}
	}
	if !sawPersistenceError {
		t.Error("persistence failure was not reported")
	}
	finalEvent(t, events)
}

func TestTurnStopsWhenConsumerBreaks(t *testing.T) {
	synthesizer := offlineSynthesizer(t)

	seen := 0
	for range synthesizer.Turn(context.Background(), triage.ConversationState{SessionID: "s1"}, "hi") {
		seen++
		break
	}
	if seen != 1 {
		t.Errorf("saw %d events after breaking, want 1", seen)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&triage.ClassificationParseError{Raw: "x"}, CodeClassificationParse},
		{&triage.ExternalProviderError{Service: "maps"}, CodeExternalProvider},
		{&triage.PersistenceError{Op: "save"}, CodePersistence},
		{&triage.StageExecutionError{Stage: "interview"}, CodeStageExecution},
		{&triage.GenerationTimeoutError{Model: "gpt-4o", Err: context.DeadlineExceeded}, CodeGenerationTimeout},
		{context.DeadlineExceeded, CodeGenerationTimeout},
		{errors.New("who knows"), CodeInternal},
	}
	for _, testCase := range cases {
		if got := errorCode(testCase.err); got != testCase.want {
			t.Errorf("errorCode(%v) = %s, want %s", testCase.err, got, testCase.want)
		}
	}
}
