package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
)

// providerDirectoryMaxChars caps how much of the converted directory page is
// quoted back to the user.
const providerDirectoryMaxChars = 2000

const askLocationReply = "I can look for providers near you, but I need your " +
	"location first. Could you share it (or allow location access in the app)?"

const clarifyMedicationsReply = "I can check your medications for interactions, " +
	"but I need at least two medication names. Which medications are you currently taking?"

// specialtyKeywords maps complaint words to the directory specialty searched.
// First match wins; no match searches for general practice.
var specialtyKeywords = []struct {
	keyword   string
	specialty string
}{
	{"heart", "cardiology"},
	{"chest", "cardiology"},
	{"skin", "dermatology"},
	{"rash", "dermatology"},
	{"child", "pediatrics"},
	{"baby", "pediatrics"},
	{"bone", "orthopedics"},
	{"joint", "orthopedics"},
	{"back pain", "orthopedics"},
	{"eye", "ophthalmology"},
	{"vision", "ophthalmology"},
	{"anxiety", "psychiatry"},
	{"depress", "psychiatry"},
	{"mental", "psychiatry"},
	{"pregnan", "obstetrics and gynecology"},
	{"stomach", "gastroenterology"},
	{"digest", "gastroenterology"},
	{"tooth", "dentistry"},
	{"dental", "dentistry"},
}

// providerLocatorHandler finds healthcare providers near the user. Without a
// location it asks for one and ends the turn; without a reachable directory it
// degrades to search guidance instead of failing the turn.
func providerLocatorHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		if state.UserLocation == nil {
			result := triage.AssistantSays(askLocationReply)
			result.ShouldContinue = triage.Bool(false)
			result.StatusEvents = []string{"STATUS:WAITING_LOCATION"}
			return result, nil
		}

		emitter.Emit("STATUS:SEARCHING_PROVIDERS")

		specialty := extractSpecialty(state)
		reply := lookupProviders(ctx, deps, state, specialty)

		result := triage.AssistantSays(reply)
		result.ProviderSearchDone = true
		result.ProviderQuery = triage.String(specialty)
		result.ShouldContinue = triage.Bool(false)
		result.StatusEvents = []string{"STATUS:SEARCHING_PROVIDERS"}
		return result, nil
	}
}

// extractSpecialty picks the directory specialty from the user's wording and
// collected complaint.
func extractSpecialty(state State) string {
	text := strings.ToLower(state.LastUserMessage() + " " + state.ChiefComplaint)
	for _, entry := range specialtyKeywords {
		if strings.Contains(text, entry.keyword) {
			return entry.specialty
		}
	}
	return "general practice"
}

// lookupProviders fetches the directory page and composes the reply, with the
// classification-appropriate footer.
func lookupProviders(ctx context.Context, deps Deps, state State, specialty string) string {
	if deps.Directory == nil || !deps.Directory.Available() {
		return providerGuidance(specialty) + classificationFooter(state.Classification)
	}

	listing, err := deps.Directory.Lookup(ctx, specialty, *state.UserLocation)
	if err != nil {
		deps.logger().WarnContext(ctx, "provider directory lookup failed",
			slog.String("session_id", state.SessionID),
			slog.String("specialty", specialty),
			slog.String("error", err.Error()),
		)
		return providerGuidance(specialty) + classificationFooter(state.Classification)
	}

	listing = strings.TrimSpace(listing)
	if len(listing) > providerDirectoryMaxChars {
		listing = listing[:providerDirectoryMaxChars] + "\n\n(listing truncated)"
	}

	return "Here is what I found for " + specialty + " near you:\n\n" + listing +
		classificationFooter(state.Classification)
}

// providerGuidance is the degraded reply when the directory cannot be
// reached.
func providerGuidance(specialty string) string {
	return "I couldn't reach the provider directory right now. To find a " + specialty +
		" near you, try your national health service directory, your insurer's provider " +
		"search, or a maps application; your pharmacy can often recommend someone local too."
}

// classificationFooter reminds the user of the urgency already established in
// the conversation.
func classificationFooter(level triage.TriageLevel) string {
	switch level {
	case triage.LevelERNow:
		return "\n\nGiven your symptoms, do not wait for an appointment: go to the nearest emergency department now."
	case triage.LevelGP24h:
		return "\n\nBased on your symptoms, try to be seen within the next 24 hours."
	case triage.LevelGPSoon:
		return "\n\nBased on your symptoms, book an appointment in the next few days."
	default:
		return ""
	}
}
