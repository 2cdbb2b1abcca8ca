// ABOUTME: Tests for command-output stream fan-out
// ABOUTME: Covers multicast delivery, ordering, lazy creation, and cleanup

package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out := make([]string, 0, n)
	for len(out) < n {
		chunk, err := sub.Next(ctx)
		require.NoError(t, err)
		out = append(out, chunk)
	}
	return out
}

func TestCommandStreams_PublishThenConsume(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.Subscribe(ctx, "c1")
	h.Publish("c1", "a")
	h.Publish("c1", "b")
	h.Publish("c1", "c")

	assert.Equal(t, []string{"a", "b", "c"}, collect(t, sub, 3))
}

func TestCommandStreams_MulticastToConcurrentSubscribers(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub1 := h.Subscribe(ctx, "c1")
	sub2 := h.Subscribe(ctx, "c1")

	for i := 0; i < 10; i++ {
		h.Publish("c1", fmt.Sprintf("chunk-%d", i))
	}

	want := make([]string, 10)
	for i := range want {
		want[i] = fmt.Sprintf("chunk-%d", i)
	}

	// Each subscriber receives an independent, order-preserving copy
	assert.Equal(t, want, collect(t, sub1, 10))
	assert.Equal(t, want, collect(t, sub2, 10))
}

func TestCommandStreams_NoDeliveryBeforeSubscribe(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Publish("c1", "early")
	sub := h.Subscribe(ctx, "c1")
	h.Publish("c1", "late")

	assert.Equal(t, []string{"late"}, collect(t, sub, 1))
}

func TestCommandStreams_KeysAreIndependent(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.Subscribe(ctx, "c1")
	h.Publish("c2", "other-command")
	h.Publish("c1", "mine")

	assert.Equal(t, []string{"mine"}, collect(t, sub, 1))
}

func TestCommandStreams_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.Subscribe(ctx, "c1")

	// Publish far more than any fixed channel buffer without a consumer
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10_000; i++ {
			h.Publish("c1", "x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on slow subscriber")
	}

	assert.Len(t, collect(t, sub, 10_000), 10_000)
}

func TestCommandStreams_ConcurrentPublishSingleOrderPerSubscriber(t *testing.T) {
	// Concurrent publishers to different keys with concurrent subscribes
	// must not race (run with -race).
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for k := 0; k < 4; k++ {
		key := fmt.Sprintf("cmd-%d", k)
		sub := h.Subscribe(ctx, key)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Publish(key, fmt.Sprintf("%d", i))
			}
		}()
		go func() {
			defer wg.Done()
			got := collect(t, sub, 100)
			for i, chunk := range got {
				assert.Equal(t, fmt.Sprintf("%d", i), chunk)
			}
		}()
	}
	wg.Wait()
}

func TestSubscription_NextCancelledContext(t *testing.T) {
	h := NewCommandStreams(nil)
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()

	sub := h.Subscribe(subCtx, "c1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscription_ClosedAfterUnsubscribe(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.Subscribe(ctx, "c1")
	h.Publish("c1", "last")
	h.Unsubscribe("c1", sub.ID())

	// Buffered chunk is still drained, then the subscription reports closed
	chunk, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", chunk)

	_, err = sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestCommandStreams_ContextCancelReleasesSubscription(t *testing.T) {
	h := NewCommandStreams(nil)
	ctx, cancel := context.WithCancel(context.Background())

	sub := h.Subscribe(ctx, "c1")
	other := h.Subscribe(context.Background(), "c1")
	cancel()

	// The cancelled subscription closes...
	require.Eventually(t, func() bool {
		_, err := sub.Next(context.Background())
		return err == ErrSubscriptionClosed
	}, 2*time.Second, 10*time.Millisecond)

	// ...without disturbing the other subscriber or the publisher
	h.Publish("c1", "still-flowing")
	assert.Equal(t, []string{"still-flowing"}, collect(t, other, 1))
}
