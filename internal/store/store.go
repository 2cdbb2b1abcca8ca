// ABOUTME: Store interface and data types for fleetward persistence
// ABOUTME: Defines Agent, Command structs and the Store interface for database operations

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrNoPendingCommand is returned by ClaimNext when the agent has no
// pending command. It is an expected condition, not a failure.
var ErrNoPendingCommand = errors.New("no pending command")

// ErrDuplicateCommand is returned when a command id is enqueued twice
var ErrDuplicateCommand = errors.New("command already exists")

// Command status values. Transitions are one-way:
// pending -> running -> {success, failed}.
const (
	CommandStatusPending = "pending"
	CommandStatusRunning = "running"
	CommandStatusSuccess = "success"
	CommandStatusFailed  = "failed"
)

// AgentStatusOnline is the only in-band agent status. There is no offline
// transition; consumers derive staleness from now - LastSeen.
const AgentStatusOnline = "online"

// Agent is the last-known state of a fleet member, keyed by its stable id.
// AppsState and OSUpdate are opaque JSON reported by the agent; the server
// stores and forwards them without interpreting their shape.
type Agent struct {
	ID        string
	LastSeen  time.Time
	Status    string
	AppsState json.RawMessage
	OSUpdate  json.RawMessage
}

// Command is a unit of work dispatched to exactly one agent. Payload is the
// opaque JSON the operator enqueued (command type and/or literal shell
// command list plus timeout). Output is the append-only accumulator fed by
// chunk ingestion.
type Command struct {
	CommandID string
	AgentID   string
	Payload   json.RawMessage
	Status    string
	Output    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines the interface for agent registry and command queue
// persistence. Read-modify-write sequences (ClaimNext, AppendOutput) run
// inside a single transaction per call; contention is scoped per agent id.
type Store interface {
	// Agent registry
	UpsertAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)

	// Command queue
	CreateCommand(ctx context.Context, cmd *Command) error
	GetCommand(ctx context.Context, commandID string) (*Command, error)
	ClaimNext(ctx context.Context, agentID string) (*Command, error)
	AppendOutput(ctx context.Context, commandID, chunk string) error
	CompleteCommand(ctx context.Context, commandID, status string) error
	ListRecentCommands(ctx context.Context, limit int) ([]*Command, error)

	// Close releases any resources held by the store
	Close() error
}
