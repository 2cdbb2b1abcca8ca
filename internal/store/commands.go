// ABOUTME: Command queue persistence — FIFO claim protocol and append-only output
// ABOUTME: ClaimNext and AppendOutput each run inside a single transaction

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateCommand enqueues a command with status pending.
func (s *SQLiteStore) CreateCommand(ctx context.Context, cmd *Command) error {
	now := time.Now().UTC()
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = now
	}
	if cmd.UpdatedAt.IsZero() {
		cmd.UpdatedAt = now
	}
	if cmd.Status == "" {
		cmd.Status = CommandStatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (command_id, agent_id, payload, status, output, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		cmd.CommandID,
		cmd.AgentID,
		string(cmd.Payload),
		cmd.Status,
		cmd.Output,
		cmd.CreatedAt.Format(time.RFC3339Nano),
		cmd.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateCommand
		}
		return fmt.Errorf("inserting command: %w", err)
	}

	s.logger.Debug("command enqueued",
		"command_id", cmd.CommandID,
		"agent_id", cmd.AgentID)
	return nil
}

// GetCommand retrieves a single command by its command id.
func (s *SQLiteStore) GetCommand(ctx context.Context, commandID string) (*Command, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT command_id, agent_id, payload, status, output, created_at, updated_at
		FROM commands
		WHERE command_id = ?
	`, commandID)

	cmd, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying command: %w", err)
	}
	return cmd, nil
}

// ClaimNext selects the oldest pending command for the agent and flips it
// to running, all inside one transaction. Strict FIFO: creation order,
// rowid as the tie-break. Returns ErrNoPendingCommand when the queue is
// empty. The UPDATE is guarded by status='pending' so a racing claim that
// lost the transaction ordering claims nothing rather than double-claiming.
func (s *SQLiteStore) ClaimNext(ctx context.Context, agentID string) (*Command, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT command_id, agent_id, payload, status, output, created_at, updated_at
		FROM commands
		WHERE agent_id = ? AND status = ?
		ORDER BY created_at, rowid
		LIMIT 1
	`, agentID, CommandStatusPending)

	cmd, err := scanCommand(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPendingCommand
	}
	if err != nil {
		return nil, fmt.Errorf("selecting pending command: %w", err)
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE commands
		SET status = ?, updated_at = ?
		WHERE command_id = ? AND status = ?
	`, CommandStatusRunning, now.Format(time.RFC3339Nano), cmd.CommandID, CommandStatusPending)
	if err != nil {
		return nil, fmt.Errorf("claiming command: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking claim: %w", err)
	}
	if affected == 0 {
		return nil, ErrNoPendingCommand
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	cmd.Status = CommandStatusRunning
	cmd.UpdatedAt = now

	s.logger.Debug("command claimed",
		"command_id", cmd.CommandID,
		"agent_id", agentID)
	return cmd, nil
}

// AppendOutput appends a chunk to the command's persisted output. Output
// is append-only; chunks are concatenated in submission order. Late chunks
// arriving after a terminal status are still appended. Returns ErrNotFound
// for unknown command ids; callers on the ingestion path drop that
// silently by design.
func (s *SQLiteStore) AppendOutput(ctx context.Context, commandID, chunk string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET output = output || ?, updated_at = ?
		WHERE command_id = ?
	`, chunk, time.Now().UTC().Format(time.RFC3339Nano), commandID)
	if err != nil {
		return fmt.Errorf("appending output: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking append: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteCommand records a terminal status. Only running commands can
// complete; status never reverts.
func (s *SQLiteStore) CompleteCommand(ctx context.Context, commandID, status string) error {
	if status != CommandStatusSuccess && status != CommandStatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE commands
		SET status = ?, updated_at = ?
		WHERE command_id = ? AND status = ?
	`, status, time.Now().UTC().Format(time.RFC3339Nano), commandID, CommandStatusRunning)
	if err != nil {
		return fmt.Errorf("completing command: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking completion: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecentCommands returns the newest commands first, for metrics.
func (s *SQLiteStore) ListRecentCommands(ctx context.Context, limit int) ([]*Command, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT command_id, agent_id, payload, status, output, created_at, updated_at
		FROM commands
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying commands: %w", err)
	}
	defer rows.Close()

	var cmds []*Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func scanCommand(row rowScanner) (*Command, error) {
	var (
		cmd       Command
		payload   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&cmd.CommandID, &cmd.AgentID, &payload, &cmd.Status, &cmd.Output, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	cmd.Payload = []byte(payload)

	var err error
	if cmd.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if cmd.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &cmd, nil
}
