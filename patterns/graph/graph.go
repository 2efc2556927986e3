package graph

import (
	"context"
	"log/slog"
	"time"
)

// StageID identifies a stage registered on a Graph. IDs are compared as plain
// strings; use package-level constants in the owning domain so conditional
// edges and silent/conversational tables stay in sync.
type StageID string

// End is the reserved terminal stage. A conditional edge returning End, or a
// stage with no outgoing edge, finishes the run.
const End StageID = "__end__"

// EventType identifies the kind of execution event emitted during a run.
type EventType string

const (
	// EventStageEnter is emitted immediately before a stage handler runs.
	EventStageEnter EventType = "stage_enter"
	// EventToken carries an incremental output token attributed to a stage.
	EventToken EventType = "token"
	// EventStageExit is emitted after a stage completes, carrying its partial.
	EventStageExit EventType = "stage_exit"
	// EventStageError reports a recovered stage failure. The run continues
	// with the configured fallback partial; a matching EventStageExit follows.
	EventStageError EventType = "stage_error"
	// EventDone is the final event of a successful run and carries the fully
	// merged state.
	EventDone EventType = "done"
	// EventError is the final event of an aborted run (context cancellation,
	// unknown edge target, stage visit limit).
	EventError EventType = "error"
)

// Event is a single execution event. Which fields are populated depends on
// Type: Token on EventToken, Partial and Duration on EventStageExit, State on
// EventDone, Err on EventStageError and EventError.
type Event[S, P any] struct {
	Type     EventType
	Stage    StageID
	Token    string
	Partial  P
	State    S
	Duration time.Duration
	Err      string
}

// Handler executes one stage of a conversational turn. It receives a snapshot
// of the merged state and returns a sparse partial describing its updates.
// Handlers must not mutate the state they receive; all updates flow through
// the partial and the graph's Reducer.
type Handler[S, P any] interface {
	Execute(ctx context.Context, state S, emitter *Emitter[S, P]) (P, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc[S, P any] func(ctx context.Context, state S, emitter *Emitter[S, P]) (P, error)

// Execute implements Handler by calling the wrapped function.
func (handlerFunc HandlerFunc[S, P]) Execute(ctx context.Context, state S, emitter *Emitter[S, P]) (P, error) {
	return handlerFunc(ctx, state, emitter)
}

// Condition selects the next stage based on the state AFTER the current
// stage's partial has been merged. Returning End terminates the run.
type Condition[S any] func(state S) StageID

// Reducer defines how partials interact with state. Apply merges a partial
// into the state and returns the updated state; Fold combines two partials
// into one (used by sub-flows that must report a single combined partial to
// their parent graph). Both must treat their inputs as immutable.
type Reducer[S, P any] interface {
	Apply(state S, partial P) S
	Fold(accumulated P, next P) P
}

// Emitter lets a stage handler publish incremental output tokens while it
// runs. Tokens are attributed to the executing stage. Emit reports false once
// the event consumer has stopped listening; handlers may use that to cut
// generation short, but ignoring it is safe.
type Emitter[S, P any] struct {
	stage   StageID
	forward func(Event[S, P]) bool
}

// Emit publishes one output token attributed to the emitter's stage.
func (emitter *Emitter[S, P]) Emit(token string) bool {
	return emitter.forward(Event[S, P]{Type: EventToken, Stage: emitter.stage, Token: token})
}

// forwardEvent re-publishes an arbitrary event through the emitter's channel.
// Used by sub-flow handlers to surface inner-stage tokens with their original
// stage attribution.
func (emitter *Emitter[S, P]) forwardEvent(event Event[S, P]) bool {
	return emitter.forward(event)
}

// stage is the internal registration record for a single stage.
type stage[S, P any] struct {
	id        StageID
	handler   Handler[S, P]
	next      StageID      // static edge target; empty when absent
	condition Condition[S] // conditional edge; nil when absent
}

// Graph is a compiled conversational stage graph. Stages execute strictly one
// at a time; after each stage its partial is merged into the state and the
// outgoing edge (static or conditional) selects the next stage. Build one
// with [NewBuilder]; a Graph is immutable and safe for concurrent runs.
type Graph[S, P any] struct {
	stages  map[StageID]*stage[S, P]
	entry   StageID
	reducer Reducer[S, P]

	fallback         func(stageID StageID, err error) P
	maxStageVisits   int
	executionTimeout time.Duration
	logger           *slog.Logger
}

// Entry returns the entry stage ID the run loop starts from.
func (graph *Graph[S, P]) Entry() StageID {
	return graph.entry
}

// Reducer returns the reducer the graph merges partials with. Exposed so the
// layer consuming execution events can apply the exact same merge semantics.
func (graph *Graph[S, P]) Reducer() Reducer[S, P] {
	return graph.reducer
}
