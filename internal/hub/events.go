// ABOUTME: Best-effort push of agent-state events to live observers
// ABOUTME: Fire-and-forget broadcast, no backlog for late joiners

package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// clientBufferSize is the per-observer channel buffer for agent events.
const clientBufferSize = 64

// AgentEvents is a dynamic set of live observer channels for agent-state
// change events. Delivery is fire-and-forget: events published while an
// observer's buffer is full are dropped for that observer, and there is no
// backlog for reconnecting observers — late joiners see only the current
// registry state on their next poll.
type AgentEvents struct {
	mu      sync.Mutex
	clients map[string]chan []byte
	logger  *slog.Logger
}

// NewAgentEvents creates the event set. Pass nil logger for default.
func NewAgentEvents(logger *slog.Logger) *AgentEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentEvents{
		clients: make(map[string]chan []byte),
		logger:  logger.With("component", "agent-events"),
	}
}

// Register adds an observer and returns its id and receive channel. The
// channel is closed by Unregister.
func (e *AgentEvents) Register() (string, <-chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, clientBufferSize)

	e.mu.Lock()
	e.clients[id] = ch
	e.mu.Unlock()

	e.logger.Debug("observer registered", "client_id", id)
	return id, ch
}

// Unregister removes an observer and closes its channel. Callers invoke it
// when the underlying connection breaks or the observer goes away. The
// close happens under the same mutex Broadcast sends under, so an in-flight
// broadcast can never hit a closed channel.
func (e *AgentEvents) Unregister(id string) {
	e.mu.Lock()
	ch, ok := e.clients[id]
	if ok {
		delete(e.clients, id)
		close(ch)
	}
	e.mu.Unlock()

	if ok {
		e.logger.Debug("observer removed", "client_id", id)
	}
}

// Broadcast pushes an already-encoded event to every current observer.
// Non-blocking: observers with full buffers miss this event. Sends stay
// under the mutex; they never block, and holding it keeps the client set
// stable against concurrent Unregister.
func (e *AgentEvents) Broadcast(payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ch := range e.clients {
		select {
		case ch <- payload:
		default:
			e.logger.Debug("dropped event for slow observer")
		}
	}
}

// Count returns the number of connected observers.
func (e *AgentEvents) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.clients)
}
