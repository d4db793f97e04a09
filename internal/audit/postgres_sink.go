package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ballot-engine/internal/domain"
)

// Schema creates the append-only audit table
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	election_id TEXT NOT NULL,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	actor_role TEXT NOT NULL,
	before_state TEXT,
	after_state TEXT,
	details JSONB,
	at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_election ON audit_log(election_id, at);
`

// DropSchema removes the audit table
const DropSchema = `DROP TABLE IF EXISTS audit_log;`

// PostgresSink inserts entries into audit_log
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Write(ctx context.Context, e domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, election_id, action, actor_id, actor_role, before_state, after_state, details, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.pool.Exec(ctx, query,
		e.ID,
		e.ElectionID,
		e.Action,
		e.ActorID,
		e.ActorRole,
		e.Before,
		e.After,
		e.Details,
		e.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
