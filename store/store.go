// Package store archives executed actions in Postgres. Session state
// itself stays in memory; the archive exists so actions survive a
// process restart even though sessions do not.
package store

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaFS embed.FS

type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// Open connects, applies the embedded schema, and returns the store.
// A pool rather than a single conn, since the action worker and the
// HTTP handlers query concurrently.
func Open(ctx context.Context, url string, logger *log.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schema.sql: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// ActionRecord is one archived action row.
type ActionRecord struct {
	SessionID   string    `json:"session_id"`
	ActionID    string    `json:"action_id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ExternalRef string    `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) SaveAction(
	ctx context.Context,
	sessionID, actionID, actionType, description, externalRef string,
) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executed_actions
			(session_id, action_id, action_type, description, external_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (action_id) DO NOTHING`,
		sessionID, actionID, actionType, description, externalRef,
	)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}
	return nil
}

func (s *Store) RecentActions(ctx context.Context, limit int) ([]ActionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, action_id, action_type, description, external_ref, created_at
		FROM executed_actions
		ORDER BY created_at DESC
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		if err := rows.Scan(
			&rec.SessionID,
			&rec.ActionID,
			&rec.Type,
			&rec.Description,
			&rec.ExternalRef,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning action row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionActions lists the archive for one session, oldest first.
func (s *Store) SessionActions(ctx context.Context, sessionID string) ([]ActionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, action_id, action_type, description, external_ref, created_at
		FROM executed_actions
		WHERE session_id = $1
		ORDER BY created_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var rec ActionRecord
		if err := rows.Scan(
			&rec.SessionID,
			&rec.ActionID,
			&rec.Type,
			&rec.Description,
			&rec.ExternalRef,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning action row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
