// ABOUTME: Agent registry persistence — upsert on heartbeat, lookups for operators
// ABOUTME: First heartbeat for an unknown id creates the record; there is no delete

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// nullableJSON maps empty raw JSON to NULL so absent heartbeat fields do
// not overwrite stored state.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// UpsertAgent records a heartbeat: last_seen, status and apps_state are
// always replaced, os_update only when the heartbeat carried one.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *Agent) error {
	query := `
		INSERT INTO agents (id, last_seen, status, apps_state, os_update)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_seen  = excluded.last_seen,
			status     = excluded.status,
			apps_state = excluded.apps_state,
			os_update  = COALESCE(excluded.os_update, agents.os_update)
	`

	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		agent.LastSeen.UTC().Format(time.RFC3339Nano),
		agent.Status,
		nullableJSON(agent.AppsState),
		nullableJSON(agent.OSUpdate),
	)
	if err != nil {
		return fmt.Errorf("upserting agent: %w", err)
	}

	s.logger.Debug("agent upserted", "agent_id", agent.ID)
	return nil
}

// GetAgent retrieves a single agent by id. Returns ErrNotFound for agents
// that have never sent a heartbeat.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, last_seen, status, apps_state, os_update
		FROM agents
		WHERE id = ?
	`, id)

	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns all known agents ordered by id.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, last_seen, status, apps_state, os_update
		FROM agents
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var (
		agent     Agent
		lastSeen  string
		appsState sql.NullString
		osUpdate  sql.NullString
	)
	if err := row.Scan(&agent.ID, &lastSeen, &agent.Status, &appsState, &osUpdate); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	agent.LastSeen = ts

	if appsState.Valid {
		agent.AppsState = []byte(appsState.String)
	}
	if osUpdate.Valid {
		agent.OSUpdate = []byte(osUpdate.String)
	}
	return &agent, nil
}
