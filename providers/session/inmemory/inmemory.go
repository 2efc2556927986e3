// Package inmemory provides a concurrency-safe, in-process session store for
// tests and single-node development.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vaidyahealth/vaidya/providers/session"
	"github.com/vaidyahealth/vaidya/triage"
)

// MemoryStore holds sessions in a mutex-guarded map. Snapshots are returned
// by value so callers can never mutate stored state in place.
type MemoryStore struct {
	mutex    sync.RWMutex
	sessions map[string]*session.Session
}

var _ session.Store = (*MemoryStore)(nil)

// New returns an empty MemoryStore ready for use.
func New() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*session.Session)}
}

// Create allocates a session with a fresh UUID.
func (store *MemoryStore) Create(ctx context.Context, userID string) (*session.Session, error) {
	now := time.Now().UTC()
	created := &session.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created.State.SessionID = created.ID
	created.State.UserID = userID

	store.mutex.Lock()
	store.sessions[created.ID] = created
	store.mutex.Unlock()

	snapshot := *created
	return &snapshot, nil
}

// Get returns a copy of the session.
func (store *MemoryStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	stored, exists := store.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	snapshot := *stored
	return &snapshot, nil
}

// SaveState replaces the session's conversation state.
func (store *MemoryStore) SaveState(ctx context.Context, sessionID string, state triage.ConversationState) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	stored, exists := store.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	stored.State = state
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendMessage appends one message to the session's log.
func (store *MemoryStore) AppendMessage(ctx context.Context, sessionID string, message triage.Message) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	stored, exists := store.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	stored.State.Messages = append(stored.State.Messages, message)
	stored.State.MessageCount = len(stored.State.Messages)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveAssessment is a no-op beyond saving state for the in-memory store;
// there is no separate audit table to write to.
func (store *MemoryStore) SaveAssessment(ctx context.Context, sessionID string, state triage.ConversationState) error {
	return store.SaveState(ctx, sessionID, state)
}

// ListByUser returns the user's sessions, most recently updated first.
func (store *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	store.mutex.RLock()
	defer store.mutex.RUnlock()

	var matched []*session.Session
	for _, stored := range store.sessions {
		if stored.UserID != userID {
			continue
		}
		snapshot := *stored
		matched = append(matched, &snapshot)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})
	return matched, nil
}

// Complete marks the session finished.
func (store *MemoryStore) Complete(ctx context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	stored, exists := store.sessions[sessionID]
	if !exists {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	stored.Completed = true
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (store *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	delete(store.sessions, sessionID)
	return nil
}
