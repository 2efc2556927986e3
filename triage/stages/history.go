package stages

import (
	"context"
	"log/slog"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
)

// historyHandler pulls the patient's medical history into the state for the
// assessment and final response. Users without a record, or deployments
// without a record service, get an empty history rather than a failure; the
// stage latches HistoryAnalyzed either way so routing does not retry it.
func historyHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		emitter.Emit("STATUS:CHECKING_HISTORY")

		result := Result{
			HistoryAnalyzed: true,
			StatusEvents:    []string{"STATUS:CHECKING_HISTORY"},
		}

		if deps.Records == nil || state.UserID == "" {
			return result, nil
		}

		record, found := deps.Records.Lookup(ctx, state.UserID)
		if !found {
			deps.logger().DebugContext(ctx, "no medical history on file",
				slog.String("session_id", state.SessionID),
				slog.String("user_id", state.UserID),
			)
			return result, nil
		}

		result.PatientID = triage.String(record.PatientID)
		result.HistorySummary = triage.String(record.Summary)
		result.RecentLabs = triage.String(record.RecentLabs)
		result.RiskLevel = triage.String(record.RiskLevel)
		if len(record.ChronicConditions) > 0 {
			result.ChronicConditions = record.ChronicConditions
		}
		if len(record.Medications) > 0 {
			result.CurrentMedications = record.Medications
		}
		if len(record.Allergies) > 0 {
			result.Allergies = record.Allergies
		}
		return result, nil
	}
}
