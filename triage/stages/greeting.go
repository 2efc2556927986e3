package stages

import (
	"context"
	"strings"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
)

// GreetingText is the canonical welcome message. It is delivered on session
// creation and again by the greeting stage when a conversation opens with a
// bare greeting.
const GreetingText = "Hello! I'm your medical triage assistant. I can help you " +
	"figure out how urgent your symptoms are, check your medications for " +
	"interactions, and find healthcare providers near you. What brings you in today?\n\n" +
	"If this is a life-threatening emergency, call your local emergency number now."

// bareGreetings are messages answered directly without engaging the workflow.
var bareGreetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"namaste": true, "hi there": true, "hello there": true,
}

// greetingHandler answers a bare opening greeting with the welcome message and
// ends the turn. Anything substantive, or any turn after the assistant has
// already spoken, passes through. As the entry stage it also clears the
// previous turn's routing leftovers: ShouldContinue and NextStage are per-turn
// signals and must not leak across the persistence boundary.
func greetingHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		if hasAssistantSpoken(state) || !isBareGreeting(state.LastUserMessage()) {
			return Result{
				ShouldContinue: triage.Bool(true),
				NextStage:      triage.String(""),
			}, nil
		}

		result := triage.AssistantSays(GreetingText)
		result.NextStage = triage.String(string(graph.End))
		return result, nil
	}
}

func hasAssistantSpoken(state State) bool {
	for _, message := range state.Messages {
		if message.Role == triage.RoleAssistant {
			return true
		}
	}
	return false
}

func isBareGreeting(message string) bool {
	cleaned := strings.ToLower(strings.TrimSpace(message))
	cleaned = strings.TrimRight(cleaned, ".!?,")
	return bareGreetings[cleaned]
}
