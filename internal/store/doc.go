// Package store provides persistent storage for fleetward using SQLite.
//
// # Data Models
//
//   - Agent: last-known state of a fleet member, upserted on every valid
//     heartbeat. First heartbeat for an unknown id creates the record; no
//     deletion path exists.
//   - Command: a unit of work owned by exactly one agent. Status moves
//     one-way through pending -> running -> {success, failed}. Output is an
//     append-only text accumulator.
//
// # Claim Protocol
//
// ClaimNext implements the dispatch queue: the oldest pending command for
// an agent is selected and transitioned to running inside one transaction.
// The UPDATE is guarded by status='pending', so concurrent claims for the
// same agent serialize at the storage layer; "at most one running command
// per agent" remains a soft guarantee of the polling protocol rather than
// a schema constraint.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 text in UTC. Opaque agent payloads
// (apps_state, os_update, command payload) are stored as JSON text and
// never interpreted beyond top-level presence.
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrNoPendingCommand: the claim queue is empty (expected condition)
//   - ErrDuplicateCommand: command id enqueued twice
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewSQLiteStore(":memory:") for tests; the schema is created
// automatically.
package store
