package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// EventRecorder is a shared.EventHandler that keeps every event it receives.
type EventRecorder struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

// NewEventRecorder creates a recorder subscribed to eventTypes.
func NewEventRecorder(eventTypes ...string) *EventRecorder {
	return &EventRecorder{eventTypes: eventTypes}
}

// EventTypes returns the event types this handler subscribes to.
func (r *EventRecorder) EventTypes() []string {
	return r.eventTypes
}

// Handle records the event and returns the configured error.
func (r *EventRecorder) Handle(_ context.Context, event shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handled = append(r.handled, event)
	return r.err
}

// Handled returns a copy of the recorded events.
func (r *EventRecorder) Handled() []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.DomainEvent, len(r.handled))
	copy(out, r.handled)
	return out
}

// HandledOfType returns the recorded events of one type, in arrival order.
func (r *EventRecorder) HandledOfType(eventType string) []shared.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range r.handled {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of recorded events.
func (r *EventRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handled)
}

// SetError makes Handle fail with err.
func (r *EventRecorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// TestEvent is a minimal domain event.
type TestEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

// NewTestEvent creates a test event with a fresh id and aggregate.
func NewTestEvent(eventType string) *TestEvent {
	return &TestEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
		Data:            "test-data",
	}
}

// WaitForEventCount waits until the recorder holds at least count events.
func WaitForEventCount(t *testing.T, r *EventRecorder, count int, timeout time.Duration) bool {
	t.Helper()
	return WaitForCondition(t, func() bool { return r.Count() >= count }, timeout, 10*time.Millisecond)
}
