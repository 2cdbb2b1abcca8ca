// ABOUTME: Tests for the agent-state event set
// ABOUTME: Covers broadcast to all observers, unregister, and full buffers

package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentEvents_BroadcastReachesAllObservers(t *testing.T) {
	e := NewAgentEvents(nil)

	id1, ch1 := e.Register()
	id2, ch2 := e.Register()
	defer e.Unregister(id1)
	defer e.Unregister(id2)

	e.Broadcast([]byte(`{"type":"agent_update"}`))

	assert.Equal(t, []byte(`{"type":"agent_update"}`), <-ch1)
	assert.Equal(t, []byte(`{"type":"agent_update"}`), <-ch2)
}

func TestAgentEvents_UnregisterClosesChannel(t *testing.T) {
	e := NewAgentEvents(nil)

	id, ch := e.Register()
	e.Unregister(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, e.Count())

	// Double unregister is harmless
	e.Unregister(id)
}

func TestAgentEvents_NoObserversIsNoop(t *testing.T) {
	e := NewAgentEvents(nil)
	e.Broadcast([]byte("nobody home"))
}

func TestAgentEvents_FullBufferDropsEventNotObserver(t *testing.T) {
	e := NewAgentEvents(nil)

	id, ch := e.Register()
	defer e.Unregister(id)

	for i := 0; i < clientBufferSize+10; i++ {
		e.Broadcast([]byte("event"))
	}

	// The observer is still registered; only overflow events were dropped
	require.Equal(t, 1, e.Count())
	assert.Len(t, ch, clientBufferSize)
}

func TestAgentEvents_BroadcastDuringUnregister(t *testing.T) {
	e := NewAgentEvents(nil)

	// Observers whose buffers are already full exercise both select
	// branches while disconnects race the broadcaster.
	ids := make([]string, 0, 32)
	for i := 0; i < 32; i++ {
		id, _ := e.Register()
		ids = append(ids, id)
	}
	for i := 0; i < clientBufferSize; i++ {
		e.Broadcast([]byte("fill"))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			e.Broadcast([]byte(`{"type":"agent_update"}`))
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			e.Unregister(id)
		}
	}()
	wg.Wait()

	require.Equal(t, 0, e.Count())
}
