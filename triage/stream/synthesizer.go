package stream

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/vaidyahealth/vaidya/patterns/graph"
	"github.com/vaidyahealth/vaidya/triage"
	"github.com/vaidyahealth/vaidya/triage/stages"
)

// Default pacing between yielded chunks. Live model tokens already arrive
// paced by the network; replayed text needs artificial pacing to read as
// typing rather than a paste.
const (
	DefaultTokenPacing  = 1 * time.Millisecond
	DefaultReplayPacing = 5 * time.Millisecond
)

// StatePersister saves the final conversation state at the end of a turn.
// Implemented by the session store.
type StatePersister interface {
	SaveState(ctx context.Context, sessionID string, state triage.ConversationState) error
}

// MessageAppender is an optional extension of [StatePersister]. When the
// persister implements it, the messages a turn produced are appended to the
// store's message log individually before the state snapshot is saved.
type MessageAppender interface {
	AppendMessage(ctx context.Context, sessionID string, message triage.Message) error
}

// Synthesizer runs turns against the compiled flow and translates graph
// execution events into the client-facing turn stream.
type Synthesizer struct {
	flow         *stages.Flow
	persister    StatePersister
	tokenPacing  time.Duration
	replayPacing time.Duration
	logger       *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithPersister sets the store the final state is saved to after each turn.
func WithPersister(persister StatePersister) Option {
	return func(synthesizer *Synthesizer) { synthesizer.persister = persister }
}

// WithTokenPacing sets the delay inserted after each live token.
func WithTokenPacing(pacing time.Duration) Option {
	return func(synthesizer *Synthesizer) { synthesizer.tokenPacing = pacing }
}

// WithReplayPacing sets the delay inserted after each replayed character.
func WithReplayPacing(pacing time.Duration) Option {
	return func(synthesizer *Synthesizer) { synthesizer.replayPacing = pacing }
}

// WithLogger sets the slog logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(synthesizer *Synthesizer) { synthesizer.logger = logger }
}

// New creates a Synthesizer over a compiled flow.
func New(flow *stages.Flow, options ...Option) *Synthesizer {
	synthesizer := &Synthesizer{
		flow:         flow,
		tokenPacing:  DefaultTokenPacing,
		replayPacing: DefaultReplayPacing,
		logger:       slog.Default(),
	}
	for _, option := range options {
		option(synthesizer)
	}
	return synthesizer
}

// Turn appends the user's message to the state, runs the flow, and yields the
// turn event stream. The sequence always terminates with either EventComplete
// or EventError; breaking out of the range loop cancels the underlying run.
func (synthesizer *Synthesizer) Turn(ctx context.Context, state triage.ConversationState, userMessage string) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		start := triage.Reducer{}.Apply(state, triage.StageResult{
			Messages: []triage.Message{triage.NewMessage(triage.RoleUser, userMessage)},
		})

		turn := &turnRun{
			synthesizer:  synthesizer,
			ctx:          ctx,
			yield:        yield,
			probes:       make(map[graph.StageID]*jsonProbe),
			enterMarks:   make(map[graph.StageID]int),
			statusSeen:   make(map[string]bool),
			baseMessages: len(state.Messages),
		}
		turn.consume(synthesizer.flow.ExecuteStream(ctx, start))
	}
}

// turnRun is the per-turn translation state.
type turnRun struct {
	synthesizer *Synthesizer
	ctx         context.Context
	yield       func(Event) bool
	stopped     bool

	probes     map[graph.StageID]*jsonProbe
	enterMarks map[graph.StageID]int
	statusSeen map[string]bool

	// baseMessages is the log length before this turn; everything past it is
	// new and gets appended to the store's message log.
	baseMessages int

	// transcript accumulates every chunk shown to the user this turn. It is
	// intentionally separate from the reduced state: stage results are the
	// record, the transcript is only what streaming actually delivered.
	transcript    strings.Builder
	visibleChunks int
}

func (turn *turnRun) consume(run *graph.RunStream[stages.State, stages.Result]) {
	for event, err := range run.Iter() {
		if turn.stopped {
			return
		}
		if err != nil {
			turn.emitError(err)
			return
		}

		switch event.Type {
		case graph.EventStageEnter:
			turn.enterMarks[event.Stage] = turn.visibleChunks
			if !stages.IsSilent(event.Stage) {
				turn.probes[event.Stage] = &jsonProbe{}
			}

		case graph.EventToken:
			turn.handleToken(event)

		case graph.EventStageExit:
			turn.handleStageExit(event)

		case graph.EventStageError:
			turn.synthesizer.logger.WarnContext(turn.ctx, "stage recovered with fallback",
				slog.String("stage", string(event.Stage)),
				slog.String("error", event.Err),
			)

		case graph.EventDone:
			turn.handleDone(event.State)
			return

		case graph.EventError:
			turn.emitError(errorFromRun(turn.ctx, event.Err))
			return
		}
	}
}

func (turn *turnRun) handleToken(event graph.Event[stages.State, stages.Result]) {
	// Status markers travel in-band so they surface the moment a stage starts
	// working, including from inside sub-flows and silent stages.
	if strings.HasPrefix(event.Token, "STATUS:") {
		turn.emitStatus(event.Stage, strings.TrimSpace(event.Token))
		return
	}
	if stages.IsSilent(event.Stage) {
		return
	}

	probe := turn.probes[event.Stage]
	if probe == nil {
		probe = &jsonProbe{}
		turn.probes[event.Stage] = probe
	}
	if flush := probe.feed(event.Token); flush != "" {
		turn.emitToken(event.Stage, flush, turn.synthesizer.tokenPacing)
	}
}

func (turn *turnRun) handleStageExit(event graph.Event[stages.State, stages.Result]) {
	if probe := turn.probes[event.Stage]; probe != nil {
		if tail := probe.finish(); tail != "" {
			turn.emitToken(event.Stage, tail, turn.synthesizer.tokenPacing)
		}
		delete(turn.probes, event.Stage)
	}

	for _, status := range event.Partial.StatusEvents {
		turn.emitStatus(event.Stage, status)
	}

	// Zero-token replay: a conversational stage that produced a message but
	// streamed nothing (static fallback paths) gets its text typed out.
	// Silent stages are skipped unless they failed: the failure fallback's
	// apology must reach the user no matter which stage produced it.
	if (stages.IsSilent(event.Stage) && event.Partial.LastError == nil) ||
		turn.visibleChunks > turn.enterMarks[event.Stage] {
		return
	}
	for _, message := range event.Partial.Messages {
		if message.Role != triage.RoleAssistant {
			continue
		}
		turn.replay(event.Stage, message.Content)
		if turn.stopped {
			return
		}
	}
}

func (turn *turnRun) handleDone(finalState stages.State) {
	turn.appendTurnMessages(finalState)

	if turn.synthesizer.persister != nil {
		if err := turn.synthesizer.persister.SaveState(turn.ctx, finalState.SessionID, finalState); err != nil {
			wrapped := &triage.PersistenceError{Op: "save turn state", Err: err}
			turn.synthesizer.logger.ErrorContext(turn.ctx, "turn state persistence failed",
				slog.String("session_id", finalState.SessionID),
				slog.String("error", wrapped.Error()),
			)
			// The user already has their answer; report and complete anyway.
			if !turn.send(Event{Type: EventError, Code: CodePersistence, Content: wrapped.Error()}) {
				return
			}
		}
	}

	turn.send(Event{
		Type:    EventComplete,
		Content: turn.transcript.String(),
		State:   &finalState,
	})
}

// appendTurnMessages writes this turn's new log entries to the store's message
// log. Best-effort: the state snapshot saved afterwards carries the full log
// either way.
func (turn *turnRun) appendTurnMessages(finalState stages.State) {
	appender, supported := turn.synthesizer.persister.(MessageAppender)
	if !supported || turn.baseMessages >= len(finalState.Messages) {
		return
	}
	for _, message := range finalState.Messages[turn.baseMessages:] {
		if err := appender.AppendMessage(turn.ctx, finalState.SessionID, message); err != nil {
			turn.synthesizer.logger.WarnContext(turn.ctx, "message log append failed",
				slog.String("session_id", finalState.SessionID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// replay types a message out character by character.
func (turn *turnRun) replay(stage graph.StageID, content string) {
	for _, character := range content {
		if !turn.send(Event{Type: EventToken, Stage: string(stage), Content: string(character)}) {
			return
		}
		turn.transcript.WriteString(string(character))
		turn.visibleChunks++
		turn.pace(turn.synthesizer.replayPacing)
		if turn.stopped {
			return
		}
	}
}

func (turn *turnRun) emitToken(stage graph.StageID, content string, pacing time.Duration) {
	if !turn.send(Event{Type: EventToken, Stage: string(stage), Content: content}) {
		return
	}
	turn.transcript.WriteString(content)
	turn.visibleChunks++
	turn.pace(pacing)
}

func (turn *turnRun) emitStatus(stage graph.StageID, statusCode string) {
	if turn.statusSeen[statusCode] {
		return
	}
	text, known := stages.StatusText(statusCode)
	if !known {
		return
	}
	turn.statusSeen[statusCode] = true
	turn.send(Event{Type: EventStatus, Stage: string(stage), StatusCode: statusCode, Content: text})
}

func (turn *turnRun) emitError(err error) {
	turn.synthesizer.logger.ErrorContext(turn.ctx, "turn failed",
		slog.String("code", errorCode(err)),
		slog.String("error", err.Error()),
	)
	turn.send(Event{Type: EventError, Code: errorCode(err), Content: err.Error()})
}

func (turn *turnRun) send(event Event) bool {
	if turn.stopped {
		return false
	}
	if !turn.yield(event) {
		turn.stopped = true
		return false
	}
	return true
}

// pace sleeps for the configured delay, waking early on context cancellation.
func (turn *turnRun) pace(delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-turn.ctx.Done():
	case <-timer.C:
	}
}

// errorFromRun reconstructs a typed error from the run abort message so the
// taxonomy mapping still works across the event boundary.
func errorFromRun(ctx context.Context, message string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if strings.Contains(message, context.DeadlineExceeded.Error()) {
		return context.DeadlineExceeded
	}
	return &triage.StageExecutionError{Stage: "run", Err: runError(message)}
}

type runError string

func (err runError) Error() string { return string(err) }
