// Package graph implements a sequential, conditionally-routed stage engine
// for conversational turns.
//
// A Graph is built from named stages and edges. Exactly one stage executes at
// a time; its sparse partial result is merged into the turn state through a
// caller-supplied [Reducer], and only then is the outgoing edge evaluated, so
// conditional routing always observes the stage's own updates. Runs stream
// their progress as [Event] values over a range-over-func iterator: stage
// lifecycle, live output tokens, recovered stage failures, and a final done
// event carrying the merged state.
//
// Stage handlers are fallible but never fatal: errors and panics are
// recovered, logged, and replaced with a configured fallback partial so a
// single failing specialist cannot abort the whole turn. A stage may itself
// wrap a nested graph via [Subflow].
//
// Example:
//
//	g, err := graph.NewBuilder[State, Partial](reducer).
//	    AddStage("classify", classifyHandler).
//	    AddStage("respond", respondHandler).
//	    AddConditionalEdge("classify", routeAfterClassify).
//	    AddEdge("respond", graph.End).
//	    SetEntry("classify").
//	    Build()
//	if err != nil {
//	    return err
//	}
//	for event, err := range g.ExecuteStream(ctx, initialState).Iter() {
//	    ...
//	}
package graph
