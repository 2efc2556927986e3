// Package pgsession implements the session store on PostgreSQL via pgx.
// Conversation state is stored as a JSONB document; completed assessments are
// additionally appended to an audit table.
package pgsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vaidyahealth/vaidya/providers/session"
	"github.com/vaidyahealth/vaidya/triage"
)

// Default table names, overridable for multi-tenant or test deployments.
const (
	defaultSessionTable    = "vaidya_sessions"
	defaultAssessmentTable = "vaidya_assessments"
	defaultMessageTable    = "vaidya_messages"
)

// Querier abstracts the pgx query methods the store needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so callers can inject a pool or run the store inside
// a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore implements [session.Store] with PostgreSQL persistence. Thread
// safety is handled by the underlying pgx pool; no application-level mutex is
// needed.
type PgStore struct {
	db              Querier
	sessionTable    string
	assessmentTable string
	messageTable    string
}

var _ session.Store = (*PgStore)(nil)

// Option configures optional PgStore behavior.
type Option func(*PgStore)

// WithSessionTable overrides the session table name. The name is sanitized
// via pgx.Identifier since it is interpolated into queries.
func WithSessionTable(name string) Option {
	return func(store *PgStore) {
		store.sessionTable = pgx.Identifier{name}.Sanitize()
	}
}

// WithAssessmentTable overrides the assessment audit table name, sanitized
// the same way.
func WithAssessmentTable(name string) Option {
	return func(store *PgStore) {
		store.assessmentTable = pgx.Identifier{name}.Sanitize()
	}
}

// WithMessageTable overrides the message log table name, sanitized the same
// way.
func WithMessageTable(name string) Option {
	return func(store *PgStore) {
		store.messageTable = pgx.Identifier{name}.Sanitize()
	}
}

// New creates a PostgreSQL session store over the given querier (typically a
// *pgxpool.Pool).
func New(db Querier, options ...Option) *PgStore {
	store := &PgStore{
		db:              db,
		sessionTable:    defaultSessionTable,
		assessmentTable: defaultAssessmentTable,
		messageTable:    defaultMessageTable,
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// Create inserts a new session row with an empty state document.
func (store *PgStore) Create(ctx context.Context, userID string) (*session.Session, error) {
	now := time.Now().UTC()
	created := &session.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created.State.SessionID = created.ID
	created.State.UserID = userID

	stateJSON, err := json.Marshal(created.State)
	if err != nil {
		return nil, &triage.PersistenceError{Op: "create session", Err: err}
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, user_id, state, completed, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $4)`, store.sessionTable)
	if _, err := store.db.Exec(ctx, query, created.ID, created.UserID, stateJSON, now); err != nil {
		return nil, &triage.PersistenceError{Op: "create session", Err: err}
	}
	return created, nil
}

// Get loads a session row and decodes its state document.
func (store *PgStore) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	query := fmt.Sprintf(`SELECT id, user_id, state, completed, created_at, updated_at
		FROM %s WHERE id = $1`, store.sessionTable)

	return scanSession(store.db.QueryRow(ctx, query, sessionID), sessionID)
}

// SaveState replaces the session's state document.
func (store *PgStore) SaveState(ctx context.Context, sessionID string, state triage.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return &triage.PersistenceError{Op: "save state", Err: err}
	}

	query := fmt.Sprintf(`UPDATE %s SET state = $2, updated_at = NOW() WHERE id = $1`, store.sessionTable)
	tag, err := store.db.Exec(ctx, query, sessionID, stateJSON)
	if err != nil {
		return &triage.PersistenceError{Op: "save state", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	return nil
}

// AppendMessage records one message in the seq-ordered message log and mirrors
// it into the session's state document, so the JSONB snapshot and the log
// never disagree.
func (store *PgStore) AppendMessage(ctx context.Context, sessionID string, message triage.Message) error {
	messageJSON, err := json.Marshal(message)
	if err != nil {
		return &triage.PersistenceError{Op: "append message", Err: err}
	}

	update := fmt.Sprintf(`UPDATE %s SET
			state = jsonb_set(state, '{messages}',
				COALESCE(state->'messages', '[]'::jsonb) || $2::jsonb),
			updated_at = NOW()
		WHERE id = $1`, store.sessionTable)
	tag, err := store.db.Exec(ctx, update, sessionID, messageJSON)
	if err != nil {
		return &triage.PersistenceError{Op: "append message", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`, store.messageTable)
	if _, err := store.db.Exec(ctx, insert,
		sessionID, string(message.Role), message.Content, message.CreatedAt); err != nil {
		return &triage.PersistenceError{Op: "append message", Err: err}
	}
	return nil
}

// SaveAssessment appends an audit row capturing the classification and the
// full state snapshot at assessment time.
func (store *PgStore) SaveAssessment(ctx context.Context, sessionID string, state triage.ConversationState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return &triage.PersistenceError{Op: "save assessment", Err: err}
	}

	query := fmt.Sprintf(`INSERT INTO %s (session_id, classification, urgency_score, emergency, state)
		VALUES ($1, $2, $3, $4, $5)`, store.assessmentTable)
	if _, err := store.db.Exec(ctx, query,
		sessionID,
		string(state.Classification),
		state.UrgencyScore,
		state.EmergencyMode,
		stateJSON,
	); err != nil {
		return &triage.PersistenceError{Op: "save assessment", Err: err}
	}
	return nil
}

// ListByUser returns the user's sessions, most recently updated first.
func (store *PgStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	query := fmt.Sprintf(`SELECT id, user_id, state, completed, created_at, updated_at
		FROM %s WHERE user_id = $1 ORDER BY updated_at DESC`, store.sessionTable)

	rows, err := store.db.Query(ctx, query, userID)
	if err != nil {
		return nil, &triage.PersistenceError{Op: "list sessions", Err: err}
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		loaded, scanErr := scanSessionRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, loaded)
	}
	if err := rows.Err(); err != nil {
		return nil, &triage.PersistenceError{Op: "list sessions", Err: err}
	}
	return sessions, nil
}

// Complete marks the session finished.
func (store *PgStore) Complete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`UPDATE %s SET completed = TRUE, updated_at = NOW() WHERE id = $1`, store.sessionTable)
	tag, err := store.db.Exec(ctx, query, sessionID)
	if err != nil {
		return &triage.PersistenceError{Op: "complete session", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	return nil
}

// Delete removes the session row. Assessment audit rows are kept.
func (store *PgStore) Delete(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, store.sessionTable)
	if _, err := store.db.Exec(ctx, query, sessionID); err != nil {
		return &triage.PersistenceError{Op: "delete session", Err: err}
	}
	return nil
}

// scanSession decodes a single-row query, translating pgx.ErrNoRows into the
// store's not-found error.
func scanSession(row pgx.Row, sessionID string) (*session.Session, error) {
	loaded, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
		}
		return nil, err
	}
	return loaded, nil
}

// rowScanner is the common Scan surface of pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(row rowScanner) (*session.Session, error) {
	var (
		loaded    session.Session
		stateJSON []byte
	)
	if err := row.Scan(&loaded.ID, &loaded.UserID, &stateJSON, &loaded.Completed,
		&loaded.CreatedAt, &loaded.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, &triage.PersistenceError{Op: "scan session", Err: err}
	}
	if err := json.Unmarshal(stateJSON, &loaded.State); err != nil {
		return nil, &triage.PersistenceError{Op: "decode state", Err: err}
	}
	return &loaded, nil
}
