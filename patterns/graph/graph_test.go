package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// testState and testPartial give the engine something minimal to merge: an
// ordered log of stage names plus one overwritable value.
type testState struct {
	log   []string
	value int
}

type testPartial struct {
	add []string
	set *int
}

type testReducer struct{}

func (testReducer) Apply(state testState, partial testPartial) testState {
	state.log = append(append([]string{}, state.log...), partial.add...)
	if partial.set != nil {
		state.value = *partial.set
	}
	return state
}

func (testReducer) Fold(accumulated testPartial, next testPartial) testPartial {
	accumulated.add = append(accumulated.add, next.add...)
	if next.set != nil {
		accumulated.set = next.set
	}
	return accumulated
}

func intPtr(value int) *int { return &value }

func appendStage(name string) Handler[testState, testPartial] {
	return HandlerFunc[testState, testPartial](func(ctx context.Context, state testState, emitter *Emitter[testState, testPartial]) (testPartial, error) {
		return testPartial{add: []string{name}}, nil
	})
}

func TestExecuteRunsStagesInOrder(t *testing.T) {
	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("a", appendStage("a")).
		AddStage("b", appendStage("b")).
		AddStage("c", appendStage("c"))
	builder.SetEntry("a").AddEdge("a", "b").AddEdge("b", "c").AddEdge("c", End)

	compiled, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	final, err := compiled.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.Join(final.log, ","); got != "a,b,c" {
		t.Errorf("stage order = %q, want %q", got, "a,b,c")
	}
}

func TestConditionalEdgeSeesMergedState(t *testing.T) {
	setter := HandlerFunc[testState, testPartial](func(ctx context.Context, state testState, emitter *Emitter[testState, testPartial]) (testPartial, error) {
		return testPartial{add: []string{"set"}, set: intPtr(2)}, nil
	})

	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("set", setter).
		AddStage("even", appendStage("even")).
		AddStage("odd", appendStage("odd"))
	builder.SetEntry("set")
	builder.AddConditionalEdge("set", func(state testState) StageID {
		if state.value%2 == 0 {
			return "even"
		}
		return "odd"
	})
	builder.AddEdge("even", End).AddEdge("odd", End)

	compiled, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	final, err := compiled.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := strings.Join(final.log, ","); got != "set,even" {
		t.Errorf("path = %q, want %q (condition must see the merged value)", got, "set,even")
	}
}

func TestStageErrorRecoversWithFallback(t *testing.T) {
	failing := HandlerFunc[testState, testPartial](func(ctx context.Context, state testState, emitter *Emitter[testState, testPartial]) (testPartial, error) {
		return testPartial{}, errors.New("boom")
	})

	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("fail", failing).AddStage("after", appendStage("after"))
	builder.SetEntry("fail").AddEdge("fail", "after").AddEdge("after", End)

	compiled, err := builder.Build(
		WithFallback[testState, testPartial](func(stageID StageID, stageErr error) testPartial {
			return testPartial{add: []string{"fallback:" + string(stageID)}}
		}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var sawStageError bool
	var final testState
	var done bool
	for event, runErr := range compiled.ExecuteStream(context.Background(), testState{}).Iter() {
		if runErr != nil {
			t.Fatalf("unexpected run error: %v", runErr)
		}
		switch event.Type {
		case EventStageError:
			sawStageError = true
			if event.Stage != "fail" {
				t.Errorf("stage error attributed to %q, want %q", event.Stage, "fail")
			}
		case EventDone:
			final = event.State
			done = true
		}
	}

	if !sawStageError {
		t.Error("expected a stage_error event")
	}
	if !done {
		t.Fatal("run did not complete")
	}
	if got := strings.Join(final.log, ","); got != "fallback:fail,after" {
		t.Errorf("final log = %q, want %q", got, "fallback:fail,after")
	}
}

func TestStagePanicIsRecovered(t *testing.T) {
	panicking := HandlerFunc[testState, testPartial](func(ctx context.Context, state testState, emitter *Emitter[testState, testPartial]) (testPartial, error) {
		panic("kaboom")
	})

	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("panic", panicking)
	builder.SetEntry("panic").AddEdge("panic", End)

	compiled, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	final, err := compiled.Execute(context.Background(), testState{})
	if err != nil {
		t.Fatalf("Execute after panic: %v", err)
	}
	if len(final.log) != 0 {
		t.Errorf("zero fallback partial expected, got log %v", final.log)
	}
}

func TestVisitLimitAbortsLoops(t *testing.T) {
	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("loop", appendStage("loop"))
	builder.SetEntry("loop")
	builder.AddConditionalEdge("loop", func(testState) StageID { return "loop" })

	compiled, err := builder.Build(WithMaxStageVisits[testState, testPartial](3))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = compiled.Execute(context.Background(), testState{})
	if !errors.Is(err, ErrStageLimit) {
		t.Errorf("Execute error = %v, want ErrStageLimit", err)
	}
}

func TestUnknownConditionalTargetAborts(t *testing.T) {
	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("a", appendStage("a"))
	builder.SetEntry("a")
	builder.AddConditionalEdge("a", func(testState) StageID { return "nowhere" })

	compiled, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = compiled.Execute(context.Background(), testState{})
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("Execute error = %v, want ErrUnknownStage", err)
	}
}

func TestBuildCollectsAllWiringErrors(t *testing.T) {
	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("a", appendStage("a"))
	builder.AddStage("a", appendStage("a")) // duplicate
	builder.AddEdge("missing", "a")         // edge from unregistered stage
	builder.AddStage("b", nil)              // nil handler
	builder.AddEdge("a", "ghost")           // edge to unregistered stage
	// entry never set

	_, err := builder.Build()
	if err == nil {
		t.Fatal("Build succeeded on a miswired graph")
	}
	for _, fragment := range []string{"registered twice", "unregistered stage", "nil handler", "entry stage not set", "ghost"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("build error missing %q: %v", fragment, err)
		}
	}
}

func TestConsumerStopStopsIteration(t *testing.T) {
	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("a", appendStage("a")).AddStage("b", appendStage("b"))
	builder.SetEntry("a").AddEdge("a", "b").AddEdge("b", End)

	compiled, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	events := 0
	for range compiled.ExecuteStream(context.Background(), testState{}).Iter() {
		events++
		break
	}
	if events != 1 {
		t.Errorf("consumed %d events after break, want 1", events)
	}
}

func TestCollectWithoutDoneReturnsError(t *testing.T) {
	builder := NewBuilder[testState, testPartial](testReducer{})
	builder.AddStage("a", appendStage("a"))
	builder.SetEntry("a")
	builder.AddConditionalEdge("a", func(testState) StageID { return "gone" })

	compiled, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if _, err := compiled.ExecuteStream(context.Background(), testState{}).Collect(); err == nil {
		t.Error("Collect on an aborted run returned nil error")
	}
}

func TestSubflowForwardsTokensAndMergesOnce(t *testing.T) {
	emitting := func(name, token string) Handler[testState, testPartial] {
		return HandlerFunc[testState, testPartial](func(ctx context.Context, state testState, emitter *Emitter[testState, testPartial]) (testPartial, error) {
			emitter.Emit(token)
			return testPartial{add: []string{name}}, nil
		})
	}

	innerBuilder := NewBuilder[testState, testPartial](testReducer{})
	innerBuilder.AddStage("inner1", emitting("inner1", "t1")).
		AddStage("inner2", emitting("inner2", "t2"))
	innerBuilder.SetEntry("inner1").AddEdge("inner1", "inner2").AddEdge("inner2", End)
	inner, err := innerBuilder.Build()
	if err != nil {
		t.Fatalf("inner Build: %v", err)
	}

	outerBuilder := NewBuilder[testState, testPartial](testReducer{})
	outerBuilder.AddStage("sub", Subflow(inner)).AddStage("after", appendStage("after"))
	outerBuilder.SetEntry("sub").AddEdge("sub", "after").AddEdge("after", End)
	outer, err := outerBuilder.Build()
	if err != nil {
		t.Fatalf("outer Build: %v", err)
	}

	var tokens []string
	var tokenStages []StageID
	var exitStages []StageID
	var final testState
	for event, runErr := range outer.ExecuteStream(context.Background(), testState{}).Iter() {
		if runErr != nil {
			t.Fatalf("run error: %v", runErr)
		}
		switch event.Type {
		case EventToken:
			tokens = append(tokens, event.Token)
			tokenStages = append(tokenStages, event.Stage)
		case EventStageExit:
			exitStages = append(exitStages, event.Stage)
		case EventDone:
			final = event.State
		}
	}

	if got := strings.Join(tokens, ","); got != "t1,t2" {
		t.Errorf("forwarded tokens = %q, want %q", got, "t1,t2")
	}
	if len(tokenStages) != 2 || tokenStages[0] != "inner1" || tokenStages[1] != "inner2" {
		t.Errorf("token stage attribution = %v, want inner stage IDs", tokenStages)
	}
	for _, stage := range exitStages {
		if stage == "inner1" || stage == "inner2" {
			t.Errorf("inner stage exit %q leaked to the outer stream", stage)
		}
	}
	if got := strings.Join(final.log, ","); got != "inner1,inner2,after" {
		t.Errorf("final log = %q, want %q (each inner partial merged exactly once)", got, "inner1,inner2,after")
	}
}
