package stages

import (
	"context"
	"log/slog"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/routing"
)

// supervisorHandler runs the routing policy and records the decision on the
// state for the dispatch edge. Every specialist loops back here through the
// compactor, so the supervisor is also where a turn ends: once a stage has
// answered the user and is waiting for a reply (ShouldContinue false), the
// supervisor routes to End instead of consulting the policy again.
func supervisorHandler(deps Deps) graph.HandlerFunc[State, Result] {
	return func(ctx context.Context, state State, emitter *Emitter) (Result, error) {
		if !state.ShouldContinue {
			return Result{NextStage: triage.String(string(graph.End))}, nil
		}

		var decision routing.Decision
		if deps.Policy != nil {
			decision = deps.Policy.Decide(ctx, state)
		} else {
			decision = routing.ApplyOverrides(state, routing.FallbackDecide(state))
		}

		deps.logger().InfoContext(ctx, "turn routed",
			slog.String("session_id", state.SessionID),
			slog.String("next_stage", string(decision.NextStage)),
			slog.String("reason", decision.Reason),
		)

		result := Result{
			NextStage: triage.String(string(decision.NextStage)),
		}
		if decision.Intent != "" {
			result.Intent = triage.String(decision.Intent)
		}
		if decision.StatusEvent != "" {
			result.StatusEvents = []string{decision.StatusEvent}
		}
		return result, nil
	}
}
