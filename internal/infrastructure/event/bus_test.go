package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utilitybill/backend/internal/domain/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func stopBus(t *testing.T, bus *InMemoryEventBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))
}

func TestInMemoryEventBus_PublishBeforeStart(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), 4)
	err := bus.Publish(context.Background(), newTestEvent("TestEvent"))
	assert.ErrorIs(t, err, ErrBusNotRunning)
}

func TestInMemoryEventBus_DeliversAsynchronously(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), 4)
	handler := newTestHandler("TestEvent")
	other := newTestHandler("OtherEvent")
	all := newTestHandler()
	bus.Subscribe(handler)
	bus.Subscribe(other)
	bus.Subscribe(all)
	require.NoError(t, bus.Start(context.Background()))

	first, second := newTestEvent("TestEvent"), newTestEvent("TestEvent")
	require.NoError(t, bus.Publish(context.Background(), first, second))
	stopBus(t, bus)

	require.Len(t, handler.getHandled(), 2)
	assert.Equal(t, first.EventID(), handler.getHandled()[0].EventID())
	assert.Equal(t, second.EventID(), handler.getHandled()[1].EventID())
	assert.Empty(t, other.getHandled())
	assert.Len(t, all.getHandled(), 2)
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core), 4)

	failing := newTestHandler("TestEvent")
	failing.err = errors.New("boom")
	panicking := newTestHandler("TestEvent")
	panicking.onEvent = func(shared.DomainEvent) { panic("bad handler") }
	healthy := newTestHandler("TestEvent")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))
	stopBus(t, bus)

	assert.Len(t, healthy.getHandled(), 1)
	assert.Equal(t, 2, logs.FilterMessage("handler failed to process event").Len())
}

func TestInMemoryEventBus_DetachesPublisherContext(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), 4)
	seen := make(chan error, 1)
	bus.Subscribe(&ctxProbe{seen: seen}, "TestEvent")
	require.NoError(t, bus.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Publish(ctx, newTestEvent("TestEvent")))
	cancel()
	stopBus(t, bus)

	assert.NoError(t, <-seen)
}

type ctxProbe struct{ seen chan error }

func (p *ctxProbe) Handle(ctx context.Context, _ shared.DomainEvent) error {
	time.Sleep(10 * time.Millisecond)
	p.seen <- ctx.Err()
	return nil
}

func (p *ctxProbe) EventTypes() []string { return nil }

func TestInMemoryEventBus_FullQueueHonoursContext(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), 1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := newTestHandler("TestEvent")
	blocking.onEvent = func(shared.DomainEvent) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}
	bus.Subscribe(blocking)
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))
	<-started
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))
	assert.Equal(t, 1, bus.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, newTestEvent("TestEvent"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	stopBus(t, bus)
	assert.Len(t, blocking.getHandled(), 2)
}

func TestInMemoryEventBus_Lifecycle(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), 0)
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Start(context.Background()))
	stopBus(t, bus)
	stopBus(t, bus)

	assert.Error(t, bus.Start(context.Background()))
	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("TestEvent")), ErrBusNotRunning)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), 4)
	handler := newTestHandler("TestEvent")
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("TestEvent")))
	stopBus(t, bus)
	assert.Empty(t, handler.getHandled())
}
