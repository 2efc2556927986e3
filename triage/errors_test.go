package triage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomyUnwraps(t *testing.T) {
	cause := errors.New("underlying")

	wrapped := []error{
		&ClassificationParseError{Raw: "{", Err: cause},
		&StageExecutionError{Stage: "interview", Err: cause},
		&ExternalProviderError{Service: "directory", Err: cause},
		&GenerationTimeoutError{Model: "gpt-4o", Err: cause},
		&PersistenceError{Op: "save state", Err: cause},
	}
	for _, err := range wrapped {
		if !errors.Is(err, cause) {
			t.Errorf("%T does not unwrap to its cause", err)
		}
	}
}

func TestErrorsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("turn failed: %w", &ClassificationParseError{Raw: "nope"})

	var parseErr *ClassificationParseError
	if !errors.As(err, &parseErr) {
		t.Fatal("errors.As failed through wrapping")
	}
	if parseErr.Raw != "nope" {
		t.Errorf("Raw = %q", parseErr.Raw)
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(&GenerationTimeoutError{Model: "m", Err: context.DeadlineExceeded}) {
		t.Error("GenerationTimeoutError not recognized")
	}
	if !IsTimeout(fmt.Errorf("call: %w", context.DeadlineExceeded)) {
		t.Error("wrapped deadline not recognized")
	}
	if IsTimeout(errors.New("other")) {
		t.Error("unrelated error reported as timeout")
	}
	if IsTimeout(nil) {
		t.Error("nil reported as timeout")
	}
}
