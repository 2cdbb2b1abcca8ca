// ABOUTME: In-memory fan-out of command output chunks to live observers
// ABOUTME: Per-command ordered streams, lazily created, kept for the process lifetime

package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrSubscriptionClosed is returned by Next after Unsubscribe.
var ErrSubscriptionClosed = errors.New("subscription closed")

// CommandStreams provides in-memory pub/sub for command output chunks,
// keyed by command id. A stream is created lazily on first touch — either
// the first chunk or the first subscriber — and kept for the lifetime of
// the process; there is no eviction even after the owning command reaches
// a terminal status. Long-lived processes accept that growth as a known
// limitation of this design.
//
// Distribution is multicast: every subscriber receives an independent copy
// of every chunk published after it subscribed, in publish order.
// Publishers never block; each subscriber has an unbounded FIFO buffer.
type CommandStreams struct {
	mu      sync.Mutex
	streams map[string]*stream
	logger  *slog.Logger
}

type stream struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewCommandStreams creates the stream registry. Pass nil logger for default.
func NewCommandStreams(logger *slog.Logger) *CommandStreams {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandStreams{
		streams: make(map[string]*stream),
		logger:  logger.With("component", "hub"),
	}
}

// getOrCreate returns the stream for a command id, creating it on first
// touch. First publisher or first subscriber wins; there is never a
// duplicate stream for the same key.
func (h *CommandStreams) getOrCreate(commandID string) *stream {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.streams[commandID]
	if !ok {
		st = &stream{subs: make(map[string]*Subscription)}
		h.streams[commandID] = st
	}
	return st
}

// Publish delivers a chunk to every current subscriber of the command's
// stream, in publish order. Publishing to a stream with no subscribers
// only materializes the stream entry.
func (h *CommandStreams) Publish(commandID, chunk string) {
	st := h.getOrCreate(commandID)

	st.mu.Lock()
	targets := make([]*Subscription, 0, len(st.subs))
	for _, sub := range st.subs {
		targets = append(targets, sub)
	}
	st.mu.Unlock()

	for _, sub := range targets {
		sub.push(chunk)
	}
}

// Subscribe registers an observer on the command's stream. The returned
// subscription buffers every chunk published after this call until the
// observer consumes it with Next. The subscription is automatically
// released when ctx is cancelled; releasing it does not disturb other
// subscribers or the publisher.
func (h *CommandStreams) Subscribe(ctx context.Context, commandID string) *Subscription {
	st := h.getOrCreate(commandID)

	sub := &Subscription{
		id:    uuid.New().String(),
		ready: make(chan struct{}, 1),
	}

	st.mu.Lock()
	st.subs[sub.id] = sub
	st.mu.Unlock()

	h.logger.Debug("subscriber added",
		"command_id", commandID,
		"sub_id", sub.id)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		h.Unsubscribe(commandID, sub.id)
	}()

	return sub
}

// Unsubscribe removes a subscription and wakes any blocked Next call.
// The stream entry itself is never removed.
func (h *CommandStreams) Unsubscribe(commandID, subID string) {
	h.mu.Lock()
	st, ok := h.streams[commandID]
	h.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	sub, ok := st.subs[subID]
	if ok {
		delete(st.subs, subID)
	}
	st.mu.Unlock()
	if !ok {
		return
	}

	sub.close()

	h.logger.Debug("subscriber removed",
		"command_id", commandID,
		"sub_id", subID)
}

// Subscription is one observer's view of a command stream: an unbounded
// ordered queue of chunks. Methods are safe for one consuming goroutine.
type Subscription struct {
	id string

	mu     sync.Mutex
	buf    []string
	closed bool
	ready  chan struct{}
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

func (s *Subscription) push(chunk string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, chunk)
	s.mu.Unlock()

	s.signal()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next returns the oldest buffered chunk, suspending until one arrives.
// It returns ctx.Err() when the context is cancelled and
// ErrSubscriptionClosed once the subscription has been released and the
// buffer is drained.
func (s *Subscription) Next(ctx context.Context) (string, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			chunk := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return chunk, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return "", ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-s.ready:
		}
	}
}
