package graph

import (
	"context"
	"errors"
	"fmt"
)

// Subflow wraps an inner graph as a stage handler, letting a stage be a
// nested instance of the executor. During execution:
//
//   - inner token events are forwarded to the outer stream with their inner
//     stage attribution preserved, so downstream silent/conversational
//     filtering keeps working inside the sub-flow;
//   - inner stage enter/error events are forwarded for observability;
//   - inner stage exits are NOT forwarded. Their partials are folded into a
//     single combined partial via the reducer and returned as the sub-flow
//     stage's own result, so the outer graph merges each update exactly once.
//
// The inner graph must share the outer graph's state and partial types.
func Subflow[S, P any](inner *Graph[S, P]) Handler[S, P] {
	return HandlerFunc[S, P](func(ctx context.Context, state S, emitter *Emitter[S, P]) (P, error) {
		var combined P
		folded := false
		var runErr error

		for event, err := range inner.ExecuteStream(ctx, state).Iter() {
			if err != nil {
				runErr = err
				continue
			}

			switch event.Type {
			case EventToken, EventStageEnter, EventStageError:
				emitter.forwardEvent(event)

			case EventStageExit:
				if !folded {
					combined = event.Partial
					folded = true
				} else {
					combined = inner.reducer.Fold(combined, event.Partial)
				}

			case EventDone, EventError:
				// Done carries the inner final state, which the outer merge
				// reconstructs from the combined partial; nothing to forward.
			}
		}

		if runErr != nil && !folded {
			var zero P
			return zero, fmt.Errorf("subflow: %w", runErr)
		}
		if !folded {
			var zero P
			return zero, errors.New("subflow: inner run produced no stage results")
		}
		return combined, runErr
	})
}
