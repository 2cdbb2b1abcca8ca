// Package hub implements the in-memory broadcast hub: fan-out of command
// output chunks and agent-state events to multiple independent observers.
//
// # Command output streams
//
// CommandStreams keys ordered streams by command id. Streams are created
// lazily on first publish or first subscribe and are never evicted — a
// deliberate simplification carried from the protocol design. A production
// hardening would tear streams down when the owning command reaches a
// terminal status and evict idle streams; that is a required addition for
// bounded-memory deployments, not something this package does silently.
//
// Each subscriber owns an unbounded FIFO buffer, so a slow observer never
// blocks the publishing agent; the cost is unbounded memory per slow
// subscriber, again carried as designed rather than capped here.
//
// Catch-up from persisted output is the caller's concern: the streaming
// endpoint subscribes first, replays the persisted output, then drains the
// subscription, giving late joiners at-least-once delivery.
//
// # Agent events
//
// AgentEvents is a flat set of observer channels fed on every heartbeat
// that updates the agent registry. Delivery is best-effort with a small
// buffer; there is no retry and no backlog.
package hub
