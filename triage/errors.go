package triage

import (
	"context"
	"errors"
	"fmt"
)

// The error taxonomy below separates the failure modes a turn can hit, so
// callers can branch on the category with errors.As while the wrapped cause
// stays reachable through Unwrap.

// ClassificationParseError reports that a routing or assessment model reply
// could not be decoded even after repair. The raw reply is retained for
// logging; routing falls back to the deterministic policy when it sees this.
type ClassificationParseError struct {
	Raw string
	Err error
}

func (parseErr *ClassificationParseError) Error() string {
	return fmt.Sprintf("classification reply not parseable: %v", parseErr.Err)
}

func (parseErr *ClassificationParseError) Unwrap() error { return parseErr.Err }

// StageExecutionError reports a stage handler failure that was recovered and
// replaced with a fallback result.
type StageExecutionError struct {
	Stage string
	Err   error
}

func (stageErr *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", stageErr.Stage, stageErr.Err)
}

func (stageErr *StageExecutionError) Unwrap() error { return stageErr.Err }

// ExternalProviderError reports a failure in an outbound dependency (LLM
// endpoint, directory lookup, record service). Stages degrade to defaults
// when they see this rather than failing the turn.
type ExternalProviderError struct {
	Service string
	Err     error
}

func (providerErr *ExternalProviderError) Error() string {
	return fmt.Sprintf("external service %s failed: %v", providerErr.Service, providerErr.Err)
}

func (providerErr *ExternalProviderError) Unwrap() error { return providerErr.Err }

// GenerationTimeoutError reports that streaming generation exceeded its
// deadline. It matches errors.Is(err, context.DeadlineExceeded) so timeout
// handling composes with standard context checks.
type GenerationTimeoutError struct {
	Model string
	Err   error
}

func (timeoutErr *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation timed out (model %s): %v", timeoutErr.Model, timeoutErr.Err)
}

func (timeoutErr *GenerationTimeoutError) Unwrap() error { return timeoutErr.Err }

// PersistenceError reports a session store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (persistErr *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed: %v", persistErr.Op, persistErr.Err)
}

func (persistErr *PersistenceError) Unwrap() error { return persistErr.Err }

// IsTimeout reports whether err represents a generation deadline, either as a
// GenerationTimeoutError or a bare context deadline.
func IsTimeout(err error) bool {
	var timeoutErr *GenerationTimeoutError
	return errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded)
}
