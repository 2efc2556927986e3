package stages

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/tools"
)

// erEmergencyHandler delivers emergency numbers and nearby emergency rooms.
// The two lookups fan out concurrently; either one failing degrades to the
// international default numbers rather than delaying the message. The lookup
// runs once per conversation: ERSearchTriggered latches and repeat visits
// reuse what is already on the state.
func erEmergencyHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		if state.ERSearchTriggered {
			return Result{}, nil
		}

		emitter.Emit("STATUS:ER_SEARCH")
		statusEvents := []string{"STATUS:ER_SEARCH"}

		location := state.UserLocation
		if location == nil {
			statusEvents = append(statusEvents, "STATUS:WAITING_LOCATION")
		}

		numbers, hospitals, lookupErr := lookupEmergencyServices(ctx, state.UserCountry, location)
		if lookupErr != nil {
			deps.logger().WarnContext(ctx, "emergency lookup degraded to defaults",
				slog.String("session_id", state.SessionID),
				slog.String("error", lookupErr.Error()),
			)
			statusEvents = append(statusEvents, "STATUS:ER_SEARCH_FAILED")
		} else {
			statusEvents = append(statusEvents, "STATUS:ER_FOUND")
		}

		result := triage.AssistantSays(emergencyReply(state, numbers, hospitals))
		result.ERSearchTriggered = true
		result.EmergencyNumbers = numbers
		if len(hospitals) > 0 {
			result.NearbyProviders = hospitals
		}
		result.StatusEvents = statusEvents
		result.ShouldContinue = triage.Bool(true)
		return result, nil
	}
}

// lookupEmergencyServices runs the number and hospital lookups concurrently.
// A session country code resolves numbers directly from the regional table;
// otherwise the coordinate lookup decides, and any failure substitutes the
// international default set. Hospitals need a coordinate.
func lookupEmergencyServices(ctx context.Context, country string, location *triage.GeoPoint) (map[string]string, []triage.ProviderEntry, error) {
	if location == nil {
		if country != "" {
			return tools.EmergencyNumbersForCountry(country), nil, nil
		}
		return tools.DefaultEmergencyNumbers(), nil, nil
	}

	var (
		waitGroup   sync.WaitGroup
		numbers     map[string]string
		numbersErr  error
		hospitals   []triage.ProviderEntry
		hospitalErr error
	)

	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		if country != "" {
			numbers = tools.EmergencyNumbersForCountry(country)
			return
		}
		numbers, numbersErr = tools.RegionalEmergencyNumbers(ctx, *location)
	}()
	go func() {
		defer waitGroup.Done()
		hospitals, hospitalErr = tools.SearchERHospitals(ctx, *location)
	}()
	waitGroup.Wait()

	if numbersErr != nil || numbers == nil {
		numbers = tools.DefaultEmergencyNumbers()
	}
	if numbersErr != nil {
		return numbers, hospitals, numbersErr
	}
	return numbers, hospitals, hospitalErr
}

// emergencyReply composes the immediate emergency instructions.
func emergencyReply(state State, numbers map[string]string, hospitals []triage.ProviderEntry) string {
	var builder strings.Builder

	builder.WriteString("🚨 **This looks like a medical emergency.**\n\n")
	if state.EmergencyType != "" {
		builder.WriteString("Detected: " + triage.RedFlagDescription(state.EmergencyType) + "\n\n")
	}

	builder.WriteString("**Call for help now:**\n")
	for _, service := range []string{"ambulance", "general", "police", "fire"} {
		if number, known := numbers[service]; known {
			builder.WriteString("- " + strings.ToUpper(service[:1]) + service[1:] + ": " + number + "\n")
		}
	}

	if len(hospitals) > 0 {
		builder.WriteString("\n**Emergency rooms near you:**\n")
		for index, hospital := range hospitals {
			if index >= 3 {
				break
			}
			builder.WriteString("- " + hospital.Name)
			if hospital.Address != "" {
				builder.WriteString(", " + hospital.Address)
			}
			if hospital.Phone != "" {
				builder.WriteString(" (" + hospital.Phone + ")")
			}
			builder.WriteString("\n")
		}
	}

	builder.WriteString("\nDo not drive yourself if you feel faint, dizzy, or are in severe pain. " +
		"Stay on the line with the dispatcher and follow their instructions.")
	return builder.String()
}
