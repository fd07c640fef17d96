package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/homequest/homequest/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func rankUp() shared.Event {
	return shared.NewRankUpEvent("p", 1, 2, time.Now())
}

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	var got []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventRankUp, func(e shared.Event) error {
		got = append(got, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventRewardGranted, func(shared.Event) error {
		t.Fatal("wrong type dispatched")
		return nil
	}))

	require.NoError(t, bus.Publish(rankUp()))

	assert.Equal(t, []shared.EventType{shared.EventRankUp}, got)
	snap := bus.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Published)
	assert.Equal(t, int64(2), snap.Handled)
	assert.Equal(t, int64(1), snap.Failed)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var (
		mu    sync.Mutex
		count int
	)
	require.NoError(t, bus.Subscribe(shared.EventRankUp, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(rankUp()))
	}
	require.NoError(t, bus.Close())

	snap := bus.Stats().Snapshot()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int64(20), snap.Published)
	assert.Equal(t, int64(20), int64(count)+snap.Dropped)
}

func TestInMemoryEventBus_PanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true})
	require.NoError(t, bus.Subscribe(shared.EventRankUp, func(shared.Event) error { panic("handler bug") }))

	require.NoError(t, bus.Publish(rankUp()))
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(rankUp()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventRankUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.Error(t, bus.Subscribe(shared.EventRankUp, nil))
}
