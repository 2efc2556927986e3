package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/providers/ai"
	"github.com/vaidyahealth/vaidya/triage"
)

const preventiveSystemPrompt = `Given the patient's age, sex, chronic conditions, and
risk level, list the screening tests and vaccinations currently recommended for them.
Short bullet list, general guidance only, no diagnosis. If age or sex is unknown, give
general adult recommendations and say what extra detail would sharpen them.`

// preventiveHandler produces screening and vaccination guidance for the final
// response to include. Active emergencies skip it entirely; preventive advice
// has no place in an ER_NOW conversation.
func preventiveHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		if state.EmergencyMode || state.Classification == triage.LevelERNow {
			return Result{}, nil
		}

		emitter.Emit("STATUS:PREVENTIVE_CARE")
		result := Result{StatusEvents: []string{"STATUS:PREVENTIVE_CARE"}}

		if deps.Classifier == nil {
			result.PreventiveAdvice = triage.String(genericPreventiveAdvice)
			return result, nil
		}

		prompt := preventiveContext(state)
		response, err := deps.Classifier.SendMessage(ctx, preventiveSystemPrompt, []ai.Message{
			{Role: ai.RoleUser, Content: prompt},
		})
		if err != nil || strings.TrimSpace(response.Content) == "" {
			if err != nil {
				deps.logger().WarnContext(ctx, "preventive advice generation failed",
					slog.String("session_id", state.SessionID),
					slog.String("error", err.Error()),
				)
			}
			result.PreventiveAdvice = triage.String(genericPreventiveAdvice)
			return result, nil
		}

		result.PreventiveAdvice = triage.String(strings.TrimSpace(response.Content))
		return result, nil
	}
}

const genericPreventiveAdvice = "General preventive care: an annual check-up with " +
	"blood pressure and cholesterol screening, staying current on routine vaccinations " +
	"(including seasonal flu), dental checks twice a year, and age-appropriate cancer " +
	"screening as advised by your doctor."

// preventiveContext renders the demographic and history facts the advice
// prompt works from.
func preventiveContext(state State) string {
	var builder strings.Builder
	builder.WriteString("Patient context:\n")
	writeFact(&builder, "Age", state.Age)
	writeFact(&builder, "Sex", state.Sex)
	writeFact(&builder, "Chronic conditions", strings.Join(state.ChronicConditions, ", "))
	writeFact(&builder, "Risk level", state.RiskLevel)
	writeFact(&builder, "Current complaint", state.ChiefComplaint)
	return builder.String()
}

func writeFact(builder *strings.Builder, label, value string) {
	if value == "" {
		value = "unknown"
	}
	builder.WriteString("- " + label + ": " + value + "\n")
}
