package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vaidyahealth/vaidya/providers/ai"
)

func TestTimeoutAppliesSendDeadline(t *testing.T) {
	send := NewTimeoutMiddleware(time.Hour).Send(
		func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			if _, hasDeadline := ctx.Deadline(); !hasDeadline {
				t.Error("inner context carries no deadline")
			}
			return &ai.ChatResponse{Content: "ok"}, nil
		})

	if _, err := send(context.Background(), ai.ChatRequest{}); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestTimeoutCancelsSlowSend(t *testing.T) {
	send := NewTimeoutMiddleware(5*time.Millisecond).Send(
		func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := send(context.Background(), ai.ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

// streamFromEvents builds a StreamFunc over a fixed event script, exposing the
// context the middleware handed down.
func streamFromEvents(capture *context.Context, events ...ai.StreamEvent) func(context.Context, ai.ChatRequest) (*ai.ChatStream, error) {
	return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
		*capture = ctx
		return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
			for _, event := range events {
				if !yield(event, nil) {
					return
				}
			}
		}), nil
	}
}

func TestTimeoutCancelsStreamContextAfterDone(t *testing.T) {
	var streamCtx context.Context
	streamFunc := NewTimeoutMiddleware(time.Hour).Stream(streamFromEvents(&streamCtx,
		ai.StreamEvent{Type: ai.StreamEventContent, Content: "hello"},
		ai.StreamEvent{Type: ai.StreamEventDone},
	))

	stream, err := streamFunc(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	for _, iterErr := range stream.Iter() {
		if iterErr != nil {
			t.Fatalf("iter: %v", iterErr)
		}
	}

	if streamCtx.Err() == nil {
		t.Error("stream context not canceled after the done event")
	}
}

func TestTimeoutCancelsStreamContextWhenAbandoned(t *testing.T) {
	var streamCtx context.Context
	streamFunc := NewTimeoutMiddleware(time.Hour).Stream(streamFromEvents(&streamCtx,
		ai.StreamEvent{Type: ai.StreamEventContent, Content: "first"},
		ai.StreamEvent{Type: ai.StreamEventContent, Content: "second"},
		ai.StreamEvent{Type: ai.StreamEventDone},
	))

	stream, err := streamFunc(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	for range stream.Iter() {
		break
	}

	if streamCtx.Err() == nil {
		t.Error("stream context not canceled after the consumer broke out")
	}
}

func TestTimeoutCancelsStreamContextOnPreStreamError(t *testing.T) {
	var streamCtx context.Context
	failure := errors.New("connect refused")
	streamFunc := NewTimeoutMiddleware(time.Hour).Stream(
		func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			streamCtx = ctx
			return nil, failure
		})

	if _, err := streamFunc(context.Background(), ai.ChatRequest{}); !errors.Is(err, failure) {
		t.Fatalf("err = %v, want the connect failure", err)
	}
	if streamCtx.Err() == nil {
		t.Error("stream context not canceled after a pre-stream failure")
	}
}
