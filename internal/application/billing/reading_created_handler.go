package billing

import (
	"context"
	"fmt"

	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ReadingCreatedHandler handles MeterReadingCreatedEvent
// and generates a bill when the reading completes an eligible period
type ReadingCreatedHandler struct {
	service *BillingService
	logger  *zap.Logger
}

// NewReadingCreatedHandler creates a new handler for meter reading created events
func NewReadingCreatedHandler(service *BillingService, logger *zap.Logger) *ReadingCreatedHandler {
	return &ReadingCreatedHandler{
		service: service,
		logger:  logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *ReadingCreatedHandler) EventTypes() []string {
	return []string{metering.EventTypeMeterReadingCreated}
}

// Handle runs auto-billing for the reading's meter. Skips are logged by the
// service and never returned as errors, so the event is not redelivered.
func (h *ReadingCreatedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	created, ok := event.(*metering.MeterReadingCreatedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", metering.EventTypeMeterReadingCreated),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			metering.EventTypeMeterReadingCreated, event.EventType())
	}

	if !created.Options.AutoGenerateBill {
		h.logger.Debug("auto-billing disabled for reading",
			zap.String("reading_id", created.ReadingID.String()),
			zap.String("meter_id", created.MeterID.String()),
		)
		return nil
	}

	result := h.service.GenerateBillFromReading(ctx, created.MeterID, created.ReadingDate, AutoBillOptions{
		MinDaysBetweenBills: created.Options.MinDaysBetweenBills,
		DueDaysFromBillDate: created.Options.DueDaysFromBillDate,
	})
	if result.Bill != nil {
		h.logger.Info("bill generated from reading",
			zap.String("reading_id", created.ReadingID.String()),
			zap.String("bill_id", result.Bill.ID.String()),
		)
	}
	return nil
}

var _ shared.EventHandler = (*ReadingCreatedHandler)(nil)
