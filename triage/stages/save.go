package stages

import (
	"context"
	"log/slog"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
)

// saveAssessmentHandler persists the completed assessment. Persistence
// failures are tolerated: the user already has their answer, so the failure is
// logged and recorded on the state instead of surfacing as a turn error.
func saveAssessmentHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		if deps.Saver == nil || state.AssessmentSaved || state.Classification == "" {
			return Result{}, nil
		}

		if err := deps.Saver.SaveAssessment(ctx, state.SessionID, state); err != nil {
			wrapped := &triage.PersistenceError{Op: "save assessment", Err: err}
			deps.logger().ErrorContext(ctx, "assessment persistence failed",
				slog.String("session_id", state.SessionID),
				slog.String("error", wrapped.Error()),
			)
			return Result{LastError: triage.String(wrapped.Error())}, nil
		}

		return Result{AssessmentSaved: true}, nil
	}
}
