package graph

import (
	"errors"
	"fmt"
)

// Builder accumulates stages and edges, then validates the whole graph at
// Build time. Wiring mistakes (duplicate IDs, edges to unregistered stages,
// missing entry) are collected and reported together rather than failing on
// the first call, so a misconfigured flow surfaces every problem at once.
type Builder[S, P any] struct {
	stages      map[StageID]*stage[S, P]
	stageOrder  []StageID
	entry       StageID
	reducer     Reducer[S, P]
	buildErrors []error
}

// NewBuilder creates a Builder for the given reducer. The reducer is
// mandatory: every merge in the executor flows through it.
func NewBuilder[S, P any](reducer Reducer[S, P]) *Builder[S, P] {
	builder := &Builder[S, P]{
		stages:  make(map[StageID]*stage[S, P]),
		reducer: reducer,
	}
	if reducer == nil {
		builder.buildErrors = append(builder.buildErrors, errors.New("reducer must not be nil"))
	}
	return builder
}

// AddStage registers a stage handler under the given ID.
func (builder *Builder[S, P]) AddStage(id StageID, handler Handler[S, P]) *Builder[S, P] {
	if id == "" || id == End {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("stage ID %q is reserved", id))
		return builder
	}
	if handler == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("stage %q has nil handler", id))
		return builder
	}
	if _, exists := builder.stages[id]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("stage %q registered twice", id))
		return builder
	}

	builder.stages[id] = &stage[S, P]{id: id, handler: handler}
	builder.stageOrder = append(builder.stageOrder, id)
	return builder
}

// AddEdge wires a static edge: after stage from completes, stage to runs.
// Use End as the target to terminate the run explicitly.
func (builder *Builder[S, P]) AddEdge(from, to StageID) *Builder[S, P] {
	source, exists := builder.stages[from]
	if !exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("edge from unregistered stage %q", from))
		return builder
	}
	if source.next != "" || source.condition != nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("stage %q already has an outgoing edge", from))
		return builder
	}

	source.next = to
	return builder
}

// AddConditionalEdge wires a conditional edge: after stage from completes and
// its partial is merged, condition picks the next stage from the merged
// state. The condition's possible targets cannot be validated at build time;
// an unknown target aborts the run with an error event.
func (builder *Builder[S, P]) AddConditionalEdge(from StageID, condition Condition[S]) *Builder[S, P] {
	source, exists := builder.stages[from]
	if !exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("conditional edge from unregistered stage %q", from))
		return builder
	}
	if condition == nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("stage %q has nil edge condition", from))
		return builder
	}
	if source.next != "" || source.condition != nil {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("stage %q already has an outgoing edge", from))
		return builder
	}

	source.condition = condition
	return builder
}

// SetEntry marks the stage the run loop starts from.
func (builder *Builder[S, P]) SetEntry(id StageID) *Builder[S, P] {
	builder.entry = id
	return builder
}

// Build validates the accumulated configuration and compiles the Graph.
// All wiring errors collected so far are returned joined together.
func (builder *Builder[S, P]) Build(options ...Option[S, P]) (*Graph[S, P], error) {
	buildErrors := builder.buildErrors

	if builder.entry == "" {
		buildErrors = append(buildErrors, errors.New("entry stage not set"))
	} else if _, exists := builder.stages[builder.entry]; !exists {
		buildErrors = append(buildErrors, fmt.Errorf("entry stage %q not registered", builder.entry))
	}

	// Static edge targets must resolve to a registered stage or End.
	for _, id := range builder.stageOrder {
		target := builder.stages[id].next
		if target == "" || target == End {
			continue
		}
		if _, exists := builder.stages[target]; !exists {
			buildErrors = append(buildErrors, fmt.Errorf("stage %q has edge to unregistered stage %q", id, target))
		}
	}

	if len(buildErrors) > 0 {
		return nil, fmt.Errorf("graph build failed: %w", errors.Join(buildErrors...))
	}

	compiled := &Graph[S, P]{
		stages:         builder.stages,
		entry:          builder.entry,
		reducer:        builder.reducer,
		maxStageVisits: defaultMaxStageVisits,
	}

	for _, option := range options {
		option(compiled)
	}

	if compiled.fallback == nil {
		compiled.fallback = func(StageID, error) P {
			var zero P
			return zero
		}
	}

	return compiled, nil
}
