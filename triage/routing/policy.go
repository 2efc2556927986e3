// Package routing decides which specialist stage handles the next step of a
// turn. An LLM policy proposes the route; a deterministic keyword fallback
// covers parse failures and offline operation; and a safety override layer
// has the final word on every decision, LLM-proposed or not.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vaidyahealth/vaidya/core/client"
	"github.com/vaidyahealth/vaidya/core/parse"
	"github.com/vaidyahealth/vaidya/triage"
)

// Destination names the specialist a decision routes to. The stage flow maps
// destinations onto its own stage IDs.
type Destination string

const (
	DestSymptomAnalysis Destination = "symptom_analysis"
	DestHistory         Destination = "history"
	DestPreventive      Destination = "preventive"
	DestDrugInteraction Destination = "drug_interaction"
	DestProviderLocator Destination = "provider_locator"
	DestEREmergency     Destination = "er_emergency"
	DestFinalResponse   Destination = "final_response"
	DestClarification   Destination = "clarification"
)

// Decision is a routing decision with its audit trail: why the route was
// chosen, what user intent was inferred, and which status event the client
// should display while the specialist runs.
type Decision struct {
	NextStage   Destination
	Reason      string
	Intent      string
	StatusEvent string
}

// Policy routes turns. When a classifier client is configured the decision
// comes from the fast-classification model and is then passed through the
// safety overrides; without one (or when the model reply cannot be decoded)
// the deterministic fallback decides instead.
type Policy struct {
	classifier *client.Client
	logger     *slog.Logger
}

// NewPolicy creates a Policy. classifier may be nil for fallback-only
// routing; logger defaults to slog.Default().
func NewPolicy(classifier *client.Client, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{classifier: classifier, logger: logger}
}

const routingSystemPrompt = `You are the routing supervisor of a medical triage assistant.
Given the conversation, decide which specialist should act next. Reply with a
single JSON object: {"next_agent": "...", "reason": "...", "intent": "..."}.

Specialists:
- symptom_analysis: interview the user about their symptoms and assess urgency
- history: review the patient's medical history
- preventive: age and sex appropriate screening and vaccination advice
- drug_interaction: check the user's medications for interactions
- provider_locator: find nearby healthcare providers
- final_response: synthesize everything collected into the final answer

Prefer symptom_analysis until the core symptom facts (complaint, location,
duration, severity) are collected, then history, then final_response.`

// llmRouteReply is the JSON shape the classification model is asked for.
type llmRouteReply struct {
	NextAgent string `json:"next_agent"`
	Reason    string `json:"reason"`
	Intent    string `json:"intent"`
}

// Decide produces the routing decision for the current state. The safety
// overrides are always applied last, regardless of which path produced the
// candidate decision.
func (policy *Policy) Decide(ctx context.Context, state triage.ConversationState) Decision {
	decision, err := policy.classify(ctx, state)
	if err != nil {
		policy.logger.WarnContext(ctx, "routing classification failed, using fallback",
			slog.String("session_id", state.SessionID),
			slog.String("error", err.Error()),
		)
		decision = FallbackDecide(state)
	}

	return ApplyOverrides(state, decision)
}

// classify asks the classification model for a route and decodes its reply.
func (policy *Policy) classify(ctx context.Context, state triage.ConversationState) (Decision, error) {
	if policy.classifier == nil {
		return Decision{}, fmt.Errorf("no classifier configured")
	}

	window := triage.PromptWindow(state, 0, 0)
	response, err := policy.classifier.SendStructured(ctx, routingSystemPrompt, window)
	if err != nil {
		return Decision{}, fmt.Errorf("routing model call: %w", err)
	}

	reply, err := parse.ParseStringAs[llmRouteReply](response.Content)
	if err != nil {
		return Decision{}, &triage.ClassificationParseError{Raw: response.Content, Err: err}
	}

	destination, known := destinationFromName(reply.NextAgent)
	if !known {
		return Decision{}, &triage.ClassificationParseError{
			Raw: response.Content,
			Err: fmt.Errorf("unknown specialist %q", reply.NextAgent),
		}
	}

	return Decision{
		NextStage:   destination,
		Reason:      reply.Reason,
		Intent:      reply.Intent,
		StatusEvent: StatusEventFor(destination),
	}, nil
}

// destinationFromName maps a model-supplied specialist name onto a
// Destination, tolerating the legacy agent naming scheme.
func destinationFromName(name string) (Destination, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "symptom_analysis", "symptom_analyst":
		return DestSymptomAnalysis, true
	case "history", "history_agent":
		return DestHistory, true
	case "preventive", "preventive_agent":
		return DestPreventive, true
	case "drug_interaction", "drug_interaction_agent":
		return DestDrugInteraction, true
	case "provider_locator", "provider_locator_agent":
		return DestProviderLocator, true
	case "er_emergency", "er_emergency_agent":
		return DestEREmergency, true
	case "final_response", "final_responder":
		return DestFinalResponse, true
	case "clarification", "questioner":
		return DestClarification, true
	default:
		return "", false
	}
}

// StatusEventFor returns the status event the client displays while the
// routed specialist runs.
func StatusEventFor(destination Destination) string {
	switch destination {
	case DestSymptomAnalysis:
		return "STATUS:SYMPTOM_ANALYSIS"
	case DestHistory:
		return "STATUS:CHECKING_HISTORY"
	case DestPreventive:
		return "STATUS:PREVENTIVE_CARE"
	case DestDrugInteraction:
		return "STATUS:CHECKING_MEDICATIONS"
	case DestProviderLocator:
		return "STATUS:SEARCHING_PROVIDERS"
	case DestEREmergency:
		return "STATUS:EMERGENCY_DETECTED"
	case DestFinalResponse:
		return "STATUS:GENERATING_RESPONSE"
	default:
		return ""
	}
}
