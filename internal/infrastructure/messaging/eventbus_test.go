package messaging

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/encorelab/SCORE/internal/domain/shared"
	"github.com/encorelab/SCORE/pkg/logger"
)

func testBus(async bool) *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      async,
		WorkerPoolSize: 4,
		Logger:         logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal}),
		EnableMetrics:  true,
	})
}

func TestPublish_RoutesByEventType(t *testing.T) {
	bus := testBus(false)
	defer bus.Close()

	var enrolled, launched int
	require.NoError(t, bus.Subscribe(shared.EventStudentEnrolled, func(e shared.Event) error {
		enrolled++
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventRunLaunched, func(e shared.Event) error {
		launched++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-a")))
	require.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-b")))

	assert.Equal(t, 2, enrolled)
	assert.Equal(t, 0, launched)
}

func TestPublish_GlobalHandlerSeesAllEvents(t *testing.T) {
	bus := testBus(false)
	defer bus.Close()

	var seen []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen = append(seen, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-a")))
	require.NoError(t, bus.Publish(shared.NewRunLaunchedEvent("run-1", "wg-1", []string{"stu-a"}, nil)))

	assert.Equal(t, []shared.EventType{shared.EventStudentEnrolled, shared.EventRunLaunched}, seen)
}

func TestPublish_HandlerErrorDoesNotFailPublish(t *testing.T) {
	bus := testBus(false)
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventStudentEnrolled, func(e shared.Event) error {
		return errors.New("projection broken")
	}))

	assert.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-a")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalHandlerExecs)
	assert.Equal(t, 0.0, snap.HandlerSuccessRate)
}

func TestPublish_AsyncHandlersCompleteBeforeClose(t *testing.T) {
	bus := testBus(true)

	var mu sync.Mutex
	count := 0
	require.NoError(t, bus.Subscribe(shared.EventStudentEnrolled, func(e shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-a")))
	}

	require.NoError(t, bus.Close())

	// Close drains the in-flight goroutines; whatever ran before shutdown is
	// final, nothing executes afterwards.
	mu.Lock()
	settled := count
	mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, settled, count)
	assert.LessOrEqual(t, count, 10)
}

func TestSubscribe_AfterCloseFails(t *testing.T) {
	bus := testBus(false)
	require.NoError(t, bus.Close())

	err := bus.Subscribe(shared.EventStudentEnrolled, func(e shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-a"))
	assert.ErrorIs(t, err, ErrEventBusClosed)
}

func TestSubscribe_NilHandlerRejected(t *testing.T) {
	bus := testBus(false)
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventStudentEnrolled, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

func TestMetrics_CountsPublishes(t *testing.T) {
	bus := testBus(false)
	defer bus.Close()

	require.NoError(t, bus.Subscribe(shared.EventStudentEnrolled, func(e shared.Event) error { return nil }))

	require.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-a")))
	require.NoError(t, bus.Publish(shared.NewStudentEnrolledEvent("run-1", "Falcon123", "1", "stu-b")))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(2), snap.TotalHandlerExecs)
	assert.Equal(t, 1.0, snap.HandlerSuccessRate)
}
