package pgsession

import (
	"context"
	"fmt"
)

// createSessionTableSQL holds one row per conversation; the whole state lives
// in the JSONB state column so schema changes to the state model never need a
// migration.
const createSessionTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL DEFAULT '',
    state       JSONB NOT NULL,
    completed   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// createAssessmentTableSQL is the append-only assessment audit log. The seq
// column gives a collision-free ordering for assessments saved in the same
// instant.
const createAssessmentTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    seq             BIGSERIAL NOT NULL,
    session_id      UUID NOT NULL,
    classification  TEXT NOT NULL,
    urgency_score   INT NOT NULL DEFAULT 0,
    emergency       BOOLEAN NOT NULL DEFAULT FALSE,
    state           JSONB NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// createMessageTableSQL is the seq-ordered message log. The BIGSERIAL seq
// gives messages a total order even when timestamps collide.
const createMessageTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    seq         BIGSERIAL PRIMARY KEY,
    session_id  UUID NOT NULL,
    role        TEXT NOT NULL,
    content     TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createUserUpdatedIndexSQL = `CREATE INDEX IF NOT EXISTS idx_%s_user_updated
    ON %s (user_id, updated_at DESC)`

const createMessageSessionIndexSQL = `CREATE INDEX IF NOT EXISTS idx_%s_session_seq
    ON %s (session_id, seq)`

const createAssessmentSessionIndexSQL = `CREATE INDEX IF NOT EXISTS idx_%s_session_seq
    ON %s (session_id, seq)`

// EnsureSchema creates the tables and indexes if they do not already exist.
// This is a convenience for development and prototyping; production
// deployments should manage schema changes with proper migration tooling.
func (store *PgStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(createSessionTableSQL, store.sessionTable),
		fmt.Sprintf(createAssessmentTableSQL, store.assessmentTable),
		fmt.Sprintf(createMessageTableSQL, store.messageTable),
		fmt.Sprintf(createUserUpdatedIndexSQL, store.sessionTable, store.sessionTable),
		fmt.Sprintf(createAssessmentSessionIndexSQL, store.assessmentTable, store.assessmentTable),
		fmt.Sprintf(createMessageSessionIndexSQL, store.messageTable, store.messageTable),
	}
	for _, statement := range statements {
		if _, err := store.db.Exec(ctx, statement); err != nil {
			return fmt.Errorf("pgsession: ensure schema: %w", err)
		}
	}
	return nil
}
