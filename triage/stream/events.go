// Package stream turns raw graph execution events into the client-facing turn
// event stream: visible tokens, status updates, the completion event with the
// final state, and taxonomy-coded errors. It owns the presentation-side
// policies the stage engine deliberately knows nothing about: silent-stage
// filtering, JSON leak detection, token pacing, and zero-token replay.
package stream

import (
	"context"
	"errors"

	"github.com/vaidyahealth/vaidya/triage"
)

// EventType identifies the kind of turn event sent to the client.
type EventType string

const (
	// EventToken carries one chunk of visible assistant output.
	EventToken EventType = "token"
	// EventStatus carries a progress update while background work runs.
	EventStatus EventType = "status"
	// EventComplete is the final event of a successful turn.
	EventComplete EventType = "complete"
	// EventError reports a turn failure with a taxonomy code.
	EventError EventType = "error"
)

// Error taxonomy codes attached to EventError.
const (
	CodeClassificationParse = "CLASSIFICATION_PARSE"
	CodeStageExecution      = "STAGE_EXECUTION"
	CodeExternalProvider    = "EXTERNAL_PROVIDER"
	CodeGenerationTimeout   = "GENERATION_TIMEOUT"
	CodePersistence         = "PERSISTENCE"
	CodeInternal            = "INTERNAL"
)

// Event is one client-facing turn event.
type Event struct {
	Type EventType `json:"type"`

	// Content is the token text, the status display text, or on completion
	// the full assistant reply accumulated over the turn.
	Content string `json:"content,omitempty"`

	// StatusCode is the raw STATUS:* vocabulary entry behind a status event.
	StatusCode string `json:"status_code,omitempty"`

	// Stage attributes tokens and statuses to the stage that produced them.
	Stage string `json:"stage,omitempty"`

	// State carries the final conversation state on EventComplete.
	State *triage.ConversationState `json:"state,omitempty"`

	// Code is the error taxonomy code on EventError.
	Code string `json:"code,omitempty"`
}

// errorCode maps an error to its taxonomy code.
func errorCode(err error) string {
	if err == nil {
		return CodeInternal
	}
	if triage.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return CodeGenerationTimeout
	}

	var parseErr *triage.ClassificationParseError
	if errors.As(err, &parseErr) {
		return CodeClassificationParse
	}
	var providerErr *triage.ExternalProviderError
	if errors.As(err, &providerErr) {
		return CodeExternalProvider
	}
	var persistErr *triage.PersistenceError
	if errors.As(err, &persistErr) {
		return CodePersistence
	}
	var stageErr *triage.StageExecutionError
	if errors.As(err, &stageErr) {
		return CodeStageExecution
	}
	return CodeInternal
}
