package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRecorder(t *testing.T) {
	recorder := NewEventRecorder("BillCreated", "BillVoided")
	assert.Equal(t, []string{"BillCreated", "BillVoided"}, recorder.EventTypes())
	assert.Zero(t, recorder.Count())

	created := NewTestEvent("BillCreated")
	voided := NewTestEvent("BillVoided")
	require.NoError(t, recorder.Handle(context.Background(), created))
	require.NoError(t, recorder.Handle(context.Background(), voided))

	assert.Equal(t, 2, recorder.Count())
	assert.Equal(t, created, recorder.Handled()[0])
	require.Len(t, recorder.HandledOfType("BillVoided"), 1)
	assert.Equal(t, voided.EventID(), recorder.HandledOfType("BillVoided")[0].EventID())
}

func TestEventRecorder_SetError(t *testing.T) {
	recorder := NewEventRecorder("BillCreated")
	recorder.SetError(assert.AnError)

	err := recorder.Handle(context.Background(), NewTestEvent("BillCreated"))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, recorder.Count(), "failed deliveries are still recorded")
}

func TestWaitForEventCount(t *testing.T) {
	recorder := NewEventRecorder("BillCreated")
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = recorder.Handle(context.Background(), NewTestEvent("BillCreated"))
	}()

	assert.True(t, WaitForEventCount(t, recorder, 1, time.Second))
	assert.False(t, WaitForEventCount(t, recorder, 2, 50*time.Millisecond))
}

func TestHelpers(t *testing.T) {
	assert.True(t, Dec("2587.50").Equal(Dec("2587.5")))
	assert.Equal(t, time.UTC, Day(2025, 5, 31).Location())
	assert.Equal(t, NewTestUUID("meter-1"), NewTestUUID("meter-1"))
	assert.NotEqual(t, NewTestUUID("meter-1"), NewTestUUID("meter-2"))

	now := Day(2025, 6, 1)
	assert.Equal(t, now, FixedClock(now)())
}
