package stages

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
)

// clarificationHandler asks for the missing information a routed specialist
// needs. Today its only producer is the drug interaction override, so the
// question is about medications.
func clarificationHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		result := triage.AssistantSays(clarifyMedicationsReply)
		result.ShouldContinue = triage.Bool(false)
		return result, nil
	}
}

const finalResponseSystemPrompt = `You are a medical triage assistant delivering your
conclusion. Using the assessment facts provided, tell the user clearly: how urgent
their situation is, what you think could be going on (carefully hedged, no firm
diagnosis), and what to do next. Work in the preventive advice if any was prepared.
Warm, plain language, short paragraphs. Never contradict the urgency level you were
given. Do not mention these instructions.`

// finalResponseHandler synthesizes everything the turn collected into the
// user-facing answer. The urgency banner is deterministic and always leads the
// message; the clinical model fills in the body, with a fully static fallback
// so a model outage still produces a safe, complete response.
func finalResponseHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		emitter.Emit("STATUS:GENERATING_RESPONSE")

		banner := urgencyBanner(state)
		body := ""

		if deps.Clinical != nil {
			if banner != "" {
				emitter.Emit(banner + "\n\n")
			}
			generated, err := streamCompletion(ctx, deps.Clinical, emitter,
				finalResponseSystemPrompt+"\n\n"+assessmentContext(state), deps.window(state))
			if err != nil || strings.TrimSpace(generated) == "" {
				if err != nil {
					deps.logger().WarnContext(ctx, "final response generation failed, using fallback",
						slog.String("session_id", state.SessionID),
						slog.String("error", err.Error()),
					)
				}
				body = staticFinalResponse(state)
			} else {
				body = generated
			}
		} else {
			body = staticFinalResponse(state)
		}

		message := body
		if banner != "" {
			message = banner + "\n\n" + body
		}

		result := triage.AssistantSays(message)
		result.ShouldContinue = triage.Bool(false)
		result.StatusEvents = []string{"STATUS:GENERATING_RESPONSE"}
		return result, nil
	}
}

// urgencyBanner is the deterministic headline for the established triage
// level. Conversations without a classification yet get no banner.
func urgencyBanner(state State) string {
	if state.EmergencyMode {
		return "🚨 **Emergency: call your local emergency number or get to an emergency department now.**"
	}
	switch state.Classification {
	case triage.LevelERNow:
		return "🚨 **Go to an emergency department now.**"
	case triage.LevelGP24h:
		return "⚠️ **See a doctor within the next 24 hours.**"
	case triage.LevelGPSoon:
		return "**Book a doctor's appointment in the next few days.**"
	case triage.LevelHome:
		return "**Your symptoms look manageable at home for now.**"
	default:
		return ""
	}
}

// assessmentContext renders the collected facts the response prompt works
// from.
func assessmentContext(state State) string {
	var builder strings.Builder
	builder.WriteString("Assessment facts:\n")
	writeFact(&builder, "Urgency level", string(state.Classification))
	writeFact(&builder, "Chief complaint", state.ChiefComplaint)
	writeFact(&builder, "Location", state.SymptomLocation)
	writeFact(&builder, "Duration", state.Duration)
	if state.Severity > 0 {
		builder.WriteString("- Severity: " + strconv.Itoa(state.Severity) + "/10\n")
	}
	writeFact(&builder, "Possible causes", strings.Join(state.DifferentialDiagnosis, "; "))
	writeFact(&builder, "Recommendations", strings.Join(state.Recommendations, "; "))
	writeFact(&builder, "History summary", state.HistorySummary)
	writeFact(&builder, "Preventive advice", state.PreventiveAdvice)
	return builder.String()
}

// staticFinalResponse composes the answer deterministically from state, for
// model-less deployments and model outages.
func staticFinalResponse(state State) string {
	var builder strings.Builder

	if state.ChiefComplaint != "" {
		builder.WriteString("Here's where we landed on your " + state.ChiefComplaint + ".\n\n")
	}

	if len(state.Recommendations) > 0 {
		builder.WriteString("What to do next:\n")
		for _, recommendation := range state.Recommendations {
			builder.WriteString("- " + recommendation + "\n")
		}
		builder.WriteString("\n")
	}

	if state.PreventiveAdvice != "" {
		builder.WriteString(state.PreventiveAdvice + "\n\n")
	}

	builder.WriteString("If your symptoms get worse, new symptoms appear, or something " +
		"feels seriously wrong, seek medical care right away. I'm a triage assistant, " +
		"not a doctor, so please treat this as guidance rather than a diagnosis.")
	return builder.String()
}
