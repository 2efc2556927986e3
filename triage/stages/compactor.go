package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/providers/ai"
	"github.com/vaidyahealth/vaidya/triage"
)

// Default compaction thresholds: the first summary is produced once the log
// reaches 20 messages, and refreshed once it reaches 40.
const (
	DefaultCompactFirstThreshold  = 20
	DefaultCompactRepeatThreshold = 40
)

const compactionSystemPrompt = `Summarize this medical triage conversation for a clinician
picking it up mid-stream. Capture: the chief complaint, symptom details collected so far
(location, duration, severity, triggers), any red flags or emergencies, medications
discussed, and what the assistant has already told the user. Be factual and compact;
plain prose, no preamble.`

// compactorHandler maintains the rolling conversation summary. It only writes
// the summary field; the message log itself is never rewritten or truncated.
// Summarization is best-effort: when the model is unavailable or fails, a
// deterministic summary built from the collected facts stands in, and an
// existing summary is never replaced with a worse one.
func compactorHandler(deps Deps) graph.HandlerFunc[State, Result] {
	firstThreshold := deps.CompactFirstThreshold
	if firstThreshold <= 0 {
		firstThreshold = DefaultCompactFirstThreshold
	}
	repeatThreshold := deps.CompactRepeatThreshold
	if repeatThreshold <= 0 {
		repeatThreshold = DefaultCompactRepeatThreshold
	}

	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		count := len(state.Messages)
		needsFirst := state.ConversationSummary == "" && count >= firstThreshold
		needsRefresh := state.ConversationSummary != "" && count >= repeatThreshold
		if !needsFirst && !needsRefresh {
			return Result{}, nil
		}

		if deps.Classifier == nil {
			if needsFirst {
				return Result{ConversationSummary: triage.String(fallbackSummary(state))}, nil
			}
			return Result{}, nil
		}

		summary, err := summarize(ctx, deps, state)
		if err != nil {
			deps.logger().WarnContext(ctx, "conversation compaction failed",
				slog.String("session_id", state.SessionID),
				slog.Int("message_count", count),
				slog.String("error", err.Error()),
			)
			if needsFirst {
				return Result{ConversationSummary: triage.String(fallbackSummary(state))}, nil
			}
			return Result{}, nil
		}

		return Result{ConversationSummary: triage.String(summary)}, nil
	}
}

// fallbackSummary renders the collected facts as a summary when no model is
// available to write one. It is always non-empty.
func fallbackSummary(state State) string {
	var builder strings.Builder
	builder.WriteString("Triage conversation in progress.")
	if state.ChiefComplaint != "" {
		builder.WriteString(" Chief complaint: " + state.ChiefComplaint + ".")
	}
	if state.SymptomLocation != "" {
		builder.WriteString(" Location: " + state.SymptomLocation + ".")
	}
	if state.Duration != "" {
		builder.WriteString(" Duration: " + state.Duration + ".")
	}
	if state.Severity > 0 {
		builder.WriteString(fmt.Sprintf(" Severity: %d/10.", state.Severity))
	}
	if state.Classification != "" {
		builder.WriteString(" Urgency: " + string(state.Classification) + ".")
	}
	if state.EmergencyMode {
		builder.WriteString(" EMERGENCY MODE is active.")
	}
	if medications := state.AllMedications(); len(medications) > 0 {
		builder.WriteString(" Medications: " + strings.Join(medications, ", ") + ".")
	}
	return builder.String()
}

// summarize asks the classification model for an updated summary covering the
// previous summary (if any) plus the full log.
func summarize(ctx context.Context, deps Deps, state State) (string, error) {
	var input []ai.Message
	if state.ConversationSummary != "" {
		input = append(input, ai.Message{
			Role:    ai.RoleSystem,
			Content: "Previous summary: " + state.ConversationSummary,
		})
	}
	for _, message := range state.Messages {
		input = append(input, ai.Message{
			Role:    ai.MessageRole(message.Role),
			Content: message.Content,
		})
	}

	response, err := deps.Classifier.SendMessage(ctx, compactionSystemPrompt, input)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(response.Content)
	if summary == "" {
		return "", &triage.ClassificationParseError{Raw: response.Content}
	}
	return summary, nil
}
