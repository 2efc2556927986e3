package graph

import (
	"log/slog"
	"time"
)

// defaultMaxStageVisits bounds how many stages a single run may execute.
// Conversational flows are short (a dozen stages per turn); the limit exists
// to stop a miswired conditional edge from looping forever.
const defaultMaxStageVisits = 25

// Option configures optional Graph behavior at Build time.
type Option[S, P any] func(*Graph[S, P])

// WithMaxStageVisits overrides the per-run stage visit limit. Values below 1
// are ignored.
func WithMaxStageVisits[S, P any](limit int) Option[S, P] {
	return func(graph *Graph[S, P]) {
		if limit >= 1 {
			graph.maxStageVisits = limit
		}
	}
}

// WithExecutionTimeout bounds the wall-clock duration of a whole run. When
// the deadline expires the run aborts with an error event; the stage that was
// executing observes context cancellation.
func WithExecutionTimeout[S, P any](timeout time.Duration) Option[S, P] {
	return func(graph *Graph[S, P]) {
		graph.executionTimeout = timeout
	}
}

// WithFallback sets the partial substituted for a stage's result when its
// handler returns an error or panics. The fallback typically carries an
// apologetic user-facing message and a flag that routes the turn to End.
// Without this option a failed stage contributes the zero partial.
func WithFallback[S, P any](fallback func(stageID StageID, err error) P) Option[S, P] {
	return func(graph *Graph[S, P]) {
		graph.fallback = fallback
	}
}

// WithLogger sets the slog logger used for stage failure and lifecycle
// logging. Defaults to slog.Default().
func WithLogger[S, P any](logger *slog.Logger) Option[S, P] {
	return func(graph *Graph[S, P]) {
		graph.logger = logger
	}
}
