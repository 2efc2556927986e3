package graph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"
)

// ErrStageLimit is reported when a run exceeds the configured stage visit
// limit, which almost always means a conditional edge is looping.
var ErrStageLimit = errors.New("graph: stage visit limit exceeded")

// ErrUnknownStage is reported when a conditional edge returns a stage ID that
// was never registered.
var ErrUnknownStage = errors.New("graph: edge resolved to unknown stage")

// ErrNoFinalState is returned by Collect when the run ended without a done
// event (abort or consumer stop).
var ErrNoFinalState = errors.New("graph: run produced no final state")

// eventOrError pairs an event with an optional error for channel transport
// between the run goroutine and the consuming iterator.
type eventOrError[S, P any] struct {
	event Event[S, P]
	err   error
}

// RunStream is a live view over one graph run. Iterate it with Iter (range
// over func) for event-by-event processing, or call Collect to drain it and
// receive the final state. A RunStream must be consumed exactly once.
type RunStream[S, P any] struct {
	iterator iter.Seq2[Event[S, P], error]
}

// Iter returns the underlying event iterator. Breaking out of the range loop
// cancels the run; remaining events are drained internally.
func (stream *RunStream[S, P]) Iter() iter.Seq2[Event[S, P], error] {
	return stream.iterator
}

// Collect drains the stream and returns the final merged state from the done
// event. A run error is returned alongside the most recent state snapshot
// available (the zero state when the run aborted before completing).
func (stream *RunStream[S, P]) Collect() (S, error) {
	var finalState S
	done := false

	for event, err := range stream.iterator {
		if err != nil {
			return finalState, err
		}
		if event.Type == EventDone {
			finalState = event.State
			done = true
		}
	}

	if !done {
		return finalState, ErrNoFinalState
	}
	return finalState, nil
}

// Execute runs the graph to completion and returns the final merged state.
// It is the non-streaming convenience over ExecuteStream.
func (graph *Graph[S, P]) Execute(ctx context.Context, initial S) (S, error) {
	return graph.ExecuteStream(ctx, initial).Collect()
}

// ExecuteStream starts a run from the entry stage and returns its event
// stream. The run executes on a background goroutine; events are delivered
// through the returned RunStream in order. When the consumer breaks out of
// the iteration early the run context is cancelled and the remaining events
// are drained without being yielded, so late emissions never panic.
func (graph *Graph[S, P]) ExecuteStream(ctx context.Context, initial S) *RunStream[S, P] {
	iteratorFunc := func(yield func(Event[S, P], error) bool) {
		runCtx, cancel := graph.runContext(ctx)
		defer cancel()

		events := make(chan eventOrError[S, P], 16)
		go func() {
			defer close(events)
			graph.run(runCtx, initial, events)
		}()

		consumerStopped := false
		for item := range events {
			if consumerStopped {
				// Drain silently; yielding after a stop would panic.
				continue
			}
			if !yield(item.event, item.err) {
				consumerStopped = true
				cancel()
			}
		}
	}

	return &RunStream[S, P]{iterator: iteratorFunc}
}

// runContext derives the context governing one run, applying the execution
// timeout when configured.
func (graph *Graph[S, P]) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if graph.executionTimeout > 0 {
		return context.WithTimeout(ctx, graph.executionTimeout)
	}
	return context.WithCancel(ctx)
}

// run is the sequential walk loop: execute the current stage, merge its
// partial, resolve the outgoing edge, repeat until End. It owns the events
// channel for the duration of the run.
func (graph *Graph[S, P]) run(ctx context.Context, initial S, events chan<- eventOrError[S, P]) {
	logger := graph.logger
	if logger == nil {
		logger = slog.Default()
	}

	emit := func(event Event[S, P]) bool {
		return sendEvent(ctx, events, eventOrError[S, P]{event: event})
	}
	abort := func(event Event[S, P], err error) {
		event.Type = EventError
		event.Err = err.Error()
		sendEvent(ctx, events, eventOrError[S, P]{event: event, err: err})
	}

	state := initial
	current := graph.entry
	visits := 0

	for current != End {
		if err := ctx.Err(); err != nil {
			abort(Event[S, P]{Stage: current}, err)
			return
		}

		visits++
		if visits > graph.maxStageVisits {
			abort(Event[S, P]{Stage: current}, fmt.Errorf("%w: %d stages executed", ErrStageLimit, visits-1))
			return
		}

		executing := graph.stages[current]
		emit(Event[S, P]{Type: EventStageEnter, Stage: current})

		executionStart := time.Now()
		partial, stageErr := graph.executeStage(ctx, executing, state, emit)
		executionDuration := time.Since(executionStart)

		if stageErr != nil {
			logger.ErrorContext(ctx, "stage execution failed",
				slog.String("stage", string(current)),
				slog.Duration("duration", executionDuration),
				slog.String("error", stageErr.Error()),
			)
			partial = graph.fallback(current, stageErr)
			emit(Event[S, P]{Type: EventStageError, Stage: current, Err: stageErr.Error()})
		}

		state = graph.reducer.Apply(state, partial)
		emit(Event[S, P]{Type: EventStageExit, Stage: current, Partial: partial, Duration: executionDuration})

		next := graph.resolveNext(executing, state)
		if next != End {
			if _, exists := graph.stages[next]; !exists {
				abort(Event[S, P]{Stage: current}, fmt.Errorf("%w: %q (from %q)", ErrUnknownStage, next, current))
				return
			}
		}
		current = next
	}

	emit(Event[S, P]{Type: EventDone, State: state})
}

// executeStage invokes one stage handler, converting panics into errors so a
// misbehaving stage can never take down the whole turn.
func (graph *Graph[S, P]) executeStage(ctx context.Context, executing *stage[S, P], state S, emit func(Event[S, P]) bool) (partial P, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("stage %q panicked: %v", executing.id, recovered)
		}
	}()

	emitter := &Emitter[S, P]{stage: executing.id, forward: emit}
	return executing.handler.Execute(ctx, state, emitter)
}

// resolveNext evaluates the stage's outgoing edge against the merged state.
// Stages without an outgoing edge terminate the run.
func (graph *Graph[S, P]) resolveNext(executing *stage[S, P], state S) StageID {
	if executing.condition != nil {
		return executing.condition(state)
	}
	if executing.next != "" {
		return executing.next
	}
	return End
}

// sendEvent delivers an item to the events channel unless the run context is
// already cancelled. Reports whether the item was delivered.
func sendEvent[S, P any](ctx context.Context, events chan<- eventOrError[S, P], item eventOrError[S, P]) bool {
	select {
	case events <- item:
		return true
	case <-ctx.Done():
		return false
	}
}
