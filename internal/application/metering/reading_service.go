package metering

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// ErrReadingOutOfOrder is returned when a reading is not dated after the meter's
// latest reading. A meter has at most one reading per day.
var ErrReadingOutOfOrder = shared.NewDomainError("READING_OUT_OF_ORDER", "Reading date must be after the latest reading")

// ReadingService records meter readings and announces them to the billing consumer
type ReadingService struct {
	meterRepo   metering.MeterRepository
	readingRepo metering.ReadingRepository
	scope       TransactionScope
	policy      AutoBillPolicy
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewReadingService creates a new ReadingService
func NewReadingService(
	meterRepo metering.MeterRepository,
	readingRepo metering.ReadingRepository,
	scope TransactionScope,
	policy AutoBillPolicy,
	logger *zap.Logger,
) *ReadingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadingService{
		meterRepo:   meterRepo,
		readingRepo: readingRepo,
		scope:       scope,
		policy:      policy,
		validate:    newValidator(),
		logger:      logger,
	}
}

// newValidator reports field errors by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RecordReading stores a reading with the meter's previous register values
// and, in the same transaction, the MeterReadingCreated event that drives
// auto-billing.
func (s *ReadingService) RecordReading(ctx context.Context, input RecordReadingInput) (*ReadingResponse, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	source, err := metering.ParseReadingSource(input.Source)
	if err != nil {
		return nil, err
	}

	meter, err := s.meterRepo.FindByID(ctx, input.MeterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFoundf("Meter %s not found", input.MeterID)
		}
		return nil, err
	}

	values := metering.ReadingValues{
		Import: input.ImportReading,
		Export: input.ExportReading,
	}
	latest, err := s.readingRepo.FindLatestByMeter(ctx, meter.ID)
	switch {
	case err == nil:
		if !valueobject.DateOf(input.ReadingDate).After(valueobject.DateOf(latest.ReadingDate)) {
			return nil, shared.NewDomainError(ErrReadingOutOfOrder.Code,
				fmt.Sprintf("Reading date %s is not after the latest reading on %s",
					input.ReadingDate.Format(time.DateOnly), latest.ReadingDate.Format(time.DateOnly)))
		}
		values.PrevImport = latest.ImportReading
		values.PrevExport = latest.ExportReading
	case errors.Is(err, shared.ErrNotFound):
		values.PrevImport = decimal.Zero
		values.PrevExport = decimal.Zero
	default:
		return nil, fmt.Errorf("failed to load latest reading: %w", err)
	}

	reading, err := metering.NewMeterReading(meter.ID, input.ReadingDate, values, source)
	if err != nil {
		return nil, err
	}
	reading.RecordedBy = input.RecordedBy
	reading.Notes = strings.TrimSpace(input.Notes)

	event := metering.NewMeterReadingCreatedEvent(reading, s.optionsFor(input))
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.ReadingRepo().Create(ctx, reading); err != nil {
			return err
		}
		return repos.SaveEvents(ctx, event)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("meter reading recorded",
		zap.String("meter_id", meter.ID.String()),
		zap.String("reading_id", reading.ID.String()),
		zap.String("source", source.String()),
		zap.String("consumption", reading.Consumption().String()),
		zap.Bool("auto_generate_bill", event.Options.AutoGenerateBill),
	)
	resp := ToReadingResponse(reading)
	return &resp, nil
}

// ListReadings returns a meter's readings dated within [from, to], oldest first
func (s *ReadingService) ListReadings(ctx context.Context, meterID uuid.UUID, from, to time.Time) ([]ReadingResponse, error) {
	from, to = valueobject.DateOf(from), valueobject.DateOf(to)
	if to.Before(from) {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Range end precedes range start")
	}
	readings, err := s.readingRepo.FindByMeterInRange(ctx, meterID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	out := make([]ReadingResponse, 0, len(readings))
	for i := range readings {
		out = append(out, ToReadingResponse(&readings[i]))
	}
	return out, nil
}

func (s *ReadingService) optionsFor(input RecordReadingInput) metering.ReadingOptions {
	opts := metering.ReadingOptions{
		AutoGenerateBill:    s.policy.AutoGenerateBill,
		MinDaysBetweenBills: s.policy.MinDaysBetweenBills,
		DueDaysFromBillDate: s.policy.DueDaysFromBillDate,
	}
	if input.AutoGenerateBill != nil {
		opts.AutoGenerateBill = *input.AutoGenerateBill
	}
	if input.MinDaysBetweenBills > 0 {
		opts.MinDaysBetweenBills = input.MinDaysBetweenBills
	}
	if input.DueDaysFromBillDate > 0 {
		opts.DueDaysFromBillDate = input.DueDaysFromBillDate
	}
	return opts
}

func (s *ReadingService) validateInput(input RecordReadingInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return shared.NewDomainError(shared.ErrInvalidInput.Code, "Invalid reading: "+strings.Join(parts, "; "))
}
