package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/utilitybill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusNotRunning is returned by Publish before Start or after Stop
var ErrBusNotRunning = errors.New("event bus is not running")

const defaultQueueSize = 256

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus delivers events to subscribers on a single background
// worker. Publish only enqueues, so a slow consumer never holds up the
// transaction that raised the event; a full queue applies backpressure until
// the caller's context gives up.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	queue    chan envelope

	mu      sync.RWMutex // guards running and closing queue
	running bool
	done    chan struct{}
}

// NewInMemoryEventBus creates a bus with room for queueSize pending events
func NewInMemoryEventBus(logger *zap.Logger, queueSize int) *InMemoryEventBus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
		queue:    make(chan envelope, queueSize),
	}
}

// Publish enqueues events for asynchronous delivery
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.running {
		return ErrBusNotRunning
	}

	// Handlers outlive the publishing request; keep its values, drop its deadline.
	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		select {
		case b.queue <- envelope{ctx: detached, event: event}:
		case <-ctx.Done():
			return fmt.Errorf("enqueue %s: %w", event.EventType(), ctx.Err())
		}
	}
	return nil
}

// Subscribe registers a handler. Without explicit types the handler's own
// EventTypes are used.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start launches the delivery worker
func (b *InMemoryEventBus) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	if b.done != nil {
		return errors.New("event bus cannot be restarted")
	}
	b.running = true
	b.done = make(chan struct{})
	go b.worker()

	b.logger.Info("event bus started", zap.Int("queue_size", cap(b.queue)))
	return nil
}

// Stop refuses new events and waits for queued ones to be delivered
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.queue)
	b.mu.Unlock()

	select {
	case <-b.done:
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out", zap.Int("undelivered", len(b.queue)))
		return ctx.Err()
	}
}

// Pending returns the number of events waiting for the worker
func (b *InMemoryEventBus) Pending() int {
	return len(b.queue)
}

func (b *InMemoryEventBus) worker() {
	defer close(b.done)
	for env := range b.queue {
		b.deliver(env)
	}
}

func (b *InMemoryEventBus) deliver(env envelope) {
	for _, handler := range b.registry.GetHandlers(env.event.EventType()) {
		start := time.Now()
		if err := b.dispatch(env.ctx, handler, env.event); err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("event_type", env.event.EventType()),
				zap.String("event_id", env.event.EventID().String()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
