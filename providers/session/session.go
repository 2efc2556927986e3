// Package session defines the persistence contract for triage conversations.
// A session owns one conversation state; stores persist the state between
// turns and record completed assessments. Two implementations exist:
// [inmemory] for tests and single-node development, and [pgsession] for
// PostgreSQL-backed deployments.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/vaidyahealth/vaidya/triage"
)

// ErrNotFound is returned when a session ID does not exist in the store.
var ErrNotFound = errors.New("session: not found")

// Session is one triage conversation and its persisted state.
type Session struct {
	ID        string                   `json:"id"`
	UserID    string                   `json:"user_id,omitempty"`
	State     triage.ConversationState `json:"state"`
	Completed bool                     `json:"completed"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// Store persists sessions. All methods are safe for concurrent use. Storage
// failures are reported as [triage.PersistenceError]; a missing session is
// reported as an error wrapping [ErrNotFound].
type Store interface {
	// Create allocates a new session for the user and returns it.
	Create(ctx context.Context, userID string) (*Session, error)

	// Get returns the session by ID.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// SaveState replaces the session's conversation state. It is called at
	// the end of every turn, including turns that ended in a stage failure,
	// so partial progress survives.
	SaveState(ctx context.Context, sessionID string, state triage.ConversationState) error

	// AppendMessage records one message in the session's append-only log.
	AppendMessage(ctx context.Context, sessionID string, message triage.Message) error

	// SaveAssessment records a completed triage assessment for audit.
	SaveAssessment(ctx context.Context, sessionID string, state triage.ConversationState) error

	// ListByUser returns the user's sessions, most recently updated first.
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// Complete marks the session finished; subsequent turns are rejected by
	// the API layer.
	Complete(ctx context.Context, sessionID string) error

	// Delete removes the session and its state.
	Delete(ctx context.Context, sessionID string) error
}
