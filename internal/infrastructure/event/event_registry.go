package event

import (
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
)

// RegisterAllEvents registers every event type that passes through the outbox
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(metering.EventTypeMeterReadingCreated, &metering.MeterReadingCreatedEvent{})

	serializer.Register(billing.EventTypeBillCreated, &billing.BillCreatedEvent{})
	serializer.Register(billing.EventTypeBillRecalculated, &billing.BillRecalculatedEvent{})
	serializer.Register(billing.EventTypeBillVoided, &billing.BillVoidedEvent{})
}
