package messaging

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/internal/domain/matching"
	"github.com/founderlink/founder-match/internal/domain/shared"
	"github.com/founderlink/founder-match/pkg/logger"
)

type busMetrics struct {
	mu        sync.Mutex
	published []string
	failures  int
	successes int
}

func (m *busMetrics) EventPublished(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, eventType)
}

func (m *busMetrics) HandlerExecuted(_ string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failures++
		return
	}
	m.successes++
}

func swipedEvent() shared.Event {
	return matching.NewCandidateSwipedEvent("session-1", matching.SwipeResult{
		RequesterID: "founder-1",
		Action:      matching.SwipeReject,
		Candidate:   matching.ScoredCandidate{Profile: matching.Profile{ID: "mentor-1"}},
		Cursor:      1,
		OccurredAt:  time.Now(),
	})
}

func TestInMemoryEventBus_SyncRoutesByType(t *testing.T) {
	metrics := &busMetrics{}
	bus := NewInMemoryEventBus(Config{Logger: logger.NewTest(t), Metrics: metrics})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventCandidateSwiped, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventConnectionMade, func(e shared.Event) error {
		t.Fatalf("unexpected delivery of %s", e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("audit sink down")
	}))

	require.NoError(t, bus.Publish(swipedEvent()))

	assert.Equal(t, []shared.EventType{shared.EventCandidateSwiped}, typed)
	assert.Equal(t, []shared.EventType{shared.EventCandidateSwiped}, all)
	assert.Equal(t, []string{string(shared.EventCandidateSwiped)}, metrics.published)
	assert.Equal(t, 1, metrics.successes)
	assert.Equal(t, 1, metrics.failures)
}

func TestInMemoryEventBus_AsyncBoundedWorkers(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 2, Logger: logger.NewTest(t)})

	var running, peak, done atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventCandidateSwiped, func(shared.Event) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		done.Add(1)
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(swipedEvent()))
	}
	bus.Drain()

	assert.EqualValues(t, 10, done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_PanicIsContained(t *testing.T) {
	metrics := &busMetrics{}
	bus := NewInMemoryEventBus(Config{Logger: logger.NewTest(t), Metrics: metrics})

	var after bool
	require.NoError(t, bus.Subscribe(shared.EventCandidateSwiped, func(shared.Event) error {
		panic("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventCandidateSwiped, func(shared.Event) error {
		after = true
		return nil
	}))

	require.NoError(t, bus.Publish(swipedEvent()))
	assert.True(t, after)
	assert.Equal(t, 1, metrics.failures)
}

func TestInMemoryEventBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(swipedEvent()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventCandidateSwiped, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
}
