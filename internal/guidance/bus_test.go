package guidance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newTestBus(t *testing.T, bufferSize int) *Bus {
	return NewBus(zaptest.NewLogger(t), bufferSize)
}

// Verifies subscribers only see the kinds they asked for.
func TestBus_SubscribeFiltersByKind(t *testing.T) {
	b := newTestBus(t, 4)
	defer b.Shutdown()

	hints, unsubHints := b.Subscribe(NotifyHint)
	defer unsubHints()
	all, unsubAll := b.Subscribe()
	defer unsubAll()

	b.Publish(NotifyPhase, Snapshot{Phase: PhaseLoading})
	b.Publish(NotifyHint, Snapshot{Hint: &Hint{Text: "x"}})

	msg := <-hints
	assert.Equal(t, NotifyHint, msg.Kind)
	assert.Equal(t, "x", msg.Snapshot.Hint.Text)
	assert.NotEmpty(t, msg.ID)
	assert.Len(t, hints, 0)

	assert.Equal(t, NotifyPhase, (<-all).Kind)
	assert.Equal(t, NotifyHint, (<-all).Kind)
}

// Verifies a full subscriber never blocks Publish and the drop is counted.
func TestBus_PublishDropsWhenFull(t *testing.T) {
	b := newTestBus(t, 1)
	defer b.Shutdown()

	ch, unsubscribe := b.Subscribe(NotifyStep)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(NotifyStep, Snapshot{Version: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber.")
	}
	assert.Equal(t, 4, b.Dropped())
	assert.Equal(t, uint64(0), (<-ch).Snapshot.Version)
}

// Verifies unsubscribe closes the channel and removes it from every kind.
func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t, 2)
	defer b.Shutdown()

	ch, unsubscribe := b.Subscribe(NotifyPhase, NotifyHint)
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)

	b.Publish(NotifyPhase, Snapshot{})
	assert.Zero(t, b.Dropped())
}

// Verifies Shutdown closes subscribers and later calls are harmless.
func TestBus_Shutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := newTestBus(t, 4)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		ch, _ := b.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}
	for i := 0; i < 20; i++ {
		b.Publish(NotifyTargets, Snapshot{})
	}

	b.Shutdown()
	wg.Wait()
	b.Shutdown()

	b.Publish(NotifyTargets, Snapshot{})
	late, unsubscribe := b.Subscribe(NotifyPhase)
	_, ok := <-late
	require.False(t, ok)
	unsubscribe()
}
