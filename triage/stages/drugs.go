package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/providers/ai"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/tools"
)

const drugSummarySystemPrompt = `You are a pharmacist explaining drug interaction
findings to a patient. Explain what each finding means in plain language and what the
patient should do about it, most serious first. Do not invent interactions beyond the
findings given. End by telling the patient to confirm any medication change with their
doctor or pharmacist.`

// drugInteractionHandler checks the user's medications against the interaction
// database and responds directly. The database lookup is authoritative; the
// model only phrases the findings, and a model failure falls back to the
// deterministic rendering.
func drugInteractionHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		medications := state.AllMedications()
		if len(medications) < 2 {
			// The routing override normally catches this before dispatch.
			result := triage.AssistantSays(clarifyMedicationsReply)
			result.ShouldContinue = triage.Bool(false)
			return result, nil
		}

		emitter.Emit("STATUS:CHECKING_MEDICATIONS")

		interactions := tools.CheckInteractions(medications)
		deps.logger().InfoContext(ctx, "drug interaction check",
			slog.String("session_id", state.SessionID),
			slog.Int("medications", len(medications)),
			slog.Int("interactions", len(interactions)),
		)

		summary := summarizeInteractions(ctx, deps, emitter, state, medications, interactions)

		result := triage.AssistantSays(summary)
		result.InteractionCheckDone = true
		result.InteractionResults = interactions
		result.UserMedications = medications
		result.ShouldContinue = triage.Bool(false)
		result.StatusEvents = []string{"STATUS:CHECKING_MEDICATIONS"}
		return result, nil
	}
}

// summarizeInteractions streams a model phrasing of the findings, degrading to
// the deterministic Markdown rendering when no clinical model is available or
// the call fails.
func summarizeInteractions(ctx context.Context, deps Deps, emitter *Emitter, state State, medications []string, interactions []triage.Interaction) string {
	fallback := tools.FormatInteractions(interactions)
	if deps.Clinical == nil {
		return fallback
	}

	findings := "Medications checked: " + strings.Join(medications, ", ") + "\n\nFindings:\n" + fallback
	summary, err := streamCompletion(ctx, deps.Clinical, emitter, drugSummarySystemPrompt, []ai.Message{
		{Role: ai.RoleUser, Content: findings},
	})
	if err != nil || strings.TrimSpace(summary) == "" {
		if err != nil {
			deps.logger().WarnContext(ctx, "interaction summary generation failed",
				slog.String("session_id", state.SessionID),
				slog.String("error", err.Error()),
			)
		}
		return fallback
	}
	return summary
}
