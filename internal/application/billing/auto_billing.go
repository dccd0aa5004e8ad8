package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// gateOutcome is the result of walking the auto-billing gates for one meter
type gateOutcome struct {
	conn         *metering.ServiceConnection
	lastBill     *billing.Bill
	daysSince    *int
	periodStart  time.Time
	readingCount int64
	reason       SkipReason
	detail       string
}

func (g *gateOutcome) passed() bool {
	return g.reason == ""
}

func (g *gateOutcome) skip(reason SkipReason, format string, args ...any) *gateOutcome {
	g.reason = reason
	g.detail = fmt.Sprintf(format, args...)
	return g
}

// evaluateGates walks the gates in order and stops at the first that fails:
//  1. the meter exists
//  2. it has an ACTIVE service connection
//  3. the connection has a tariff category
//  4. the period start is the previous bill's period end, at least minDays
//     before asOf, or the meter's first reading date when it was never billed
//  5. at least two readings fall in [period start, asOf]
//
// A failed gate is reported in the outcome; the error is reserved for lookups
// that could not be answered.
func (s *BillingService) evaluateGates(ctx context.Context, meterID uuid.UUID, asOf time.Time, minDays int) (*gateOutcome, error) {
	out := &gateOutcome{}
	asOf = valueobject.DateOf(asOf)

	if _, err := s.repos.Meters.FindByID(ctx, meterID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return out.skip(SkipMeterNotFound, "meter %s not found", meterID), nil
		}
		return nil, fmt.Errorf("failed to load meter: %w", err)
	}

	conn, err := s.repos.Connections.FindActiveByMeter(ctx, meterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return out.skip(SkipNoActiveConnection, "meter %s has no active service connection", meterID), nil
		}
		return nil, fmt.Errorf("failed to load service connection: %w", err)
	}
	out.conn = conn

	if !conn.HasTariffCategory() {
		return out.skip(SkipNoTariffCategory, "service connection %s has no tariff category", conn.ConnectionNumber), nil
	}

	lastBill, err := s.repos.Bills.FindLatestActiveByMeter(ctx, meterID)
	switch {
	case err == nil:
		out.lastBill = lastBill
		out.periodStart = valueobject.DateOf(lastBill.BillingPeriodEnd)
		days := valueobject.DaysBetween(out.periodStart, asOf)
		out.daysSince = &days
		if days < minDays {
			return out.skip(SkipTooSoon, "%d day(s) since the last billed period ended on %s; %d required",
				days, out.periodStart.Format(time.DateOnly), minDays), nil
		}
	case errors.Is(err, shared.ErrNotFound):
		first, err := s.repos.Readings.FindFirstByMeter(ctx, meterID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return out.skip(SkipNoReadings, "meter %s has no readings", meterID), nil
			}
			return nil, fmt.Errorf("failed to load first reading: %w", err)
		}
		out.periodStart = valueobject.DateOf(first.ReadingDate)
	default:
		return nil, fmt.Errorf("failed to load latest bill: %w", err)
	}

	count, err := s.repos.Readings.CountByMeterInRange(ctx, meterID, out.periodStart, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}
	out.readingCount = count
	if count < 2 {
		return out.skip(SkipInsufficientReadings, "%d reading(s) between %s and %s; at least 2 required",
			count, out.periodStart.Format(time.DateOnly), asOf.Format(time.DateOnly)), nil
	}
	return out, nil
}

// GenerateBillFromReading bills the meter up to readingDate when every
// auto-billing gate passes. It never fails: a closed gate, a held lease or an
// internal error all yield a skipped result with the reason, and the bill is nil.
func (s *BillingService) GenerateBillFromReading(ctx context.Context, meterID uuid.UUID, readingDate time.Time, opts AutoBillOptions) (result AutoBillResult) {
	minDays := opts.MinDaysBetweenBills
	if minDays <= 0 {
		minDays = s.cfg.MinDaysBetweenBills
	}
	dueDays := opts.DueDaysFromBillDate
	if dueDays <= 0 {
		dueDays = s.cfg.DueDaysFromBillDate
	}
	log := s.logger.With(
		zap.String("meter_id", meterID.String()),
		zap.Time("reading_date", readingDate),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("auto-billing panicked", zap.Any("panic", r), zap.Stack("stack"))
			result = s.skipped(ctx, log, SkipError, fmt.Sprintf("panic: %v", r))
		}
	}()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, meterID, s.cfg.MeterLockTTL)
		if err != nil {
			if errors.Is(err, ErrMeterLocked) {
				return s.skipped(ctx, log, SkipMeterLocked, err.Error())
			}
			log.Error("failed to acquire meter lease", zap.Error(err))
			return s.skipped(ctx, log, SkipError, err.Error())
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release meter lease", zap.Error(err))
			}
		}()
	}

	gates, err := s.evaluateGates(ctx, meterID, readingDate, minDays)
	if err != nil {
		log.Error("auto-billing gate evaluation failed", zap.Error(err))
		return s.skipped(ctx, log, SkipError, err.Error())
	}
	if !gates.passed() {
		return s.skipped(ctx, log, gates.reason, gates.detail)
	}

	bill, err := s.createForConnection(ctx, gates.conn, gates.periodStart, readingDate, dueDays, TriggerReading)
	if err != nil {
		log.Error("auto-billing failed", zap.Time("period_start", gates.periodStart), zap.Error(err))
		return s.skipped(ctx, log, SkipError, err.Error())
	}
	return AutoBillResult{Bill: bill}
}

func (s *BillingService) skipped(ctx context.Context, log *zap.Logger, reason SkipReason, detail string) AutoBillResult {
	s.metrics.AutoBillSkipped(ctx, reason)
	log.Info("auto-billing skipped",
		zap.String("reason", reason.String()),
		zap.String("detail", detail),
	)
	return AutoBillResult{Skipped: true, Reason: reason, Detail: detail}
}

// CheckBillingEligibility evaluates the auto-billing gates for the meter as of
// today without writing anything. The suggested period start is the one
// GenerateBillFromReading would use.
func (s *BillingService) CheckBillingEligibility(ctx context.Context, meterID uuid.UUID) (*Eligibility, error) {
	gates, err := s.evaluateGates(ctx, meterID, s.now(), s.cfg.MinDaysBetweenBills)
	if err != nil {
		return nil, err
	}

	e := &Eligibility{
		MeterID:           meterID,
		Eligible:          gates.passed(),
		Reason:            gates.reason,
		Detail:            gates.detail,
		DaysSinceLastBill: gates.daysSince,
		ReadingCount:      gates.readingCount,
	}
	if gates.lastBill != nil {
		billDate := gates.lastBill.BillDate
		e.LastBillDate = &billDate
	}
	if !gates.periodStart.IsZero() {
		start := gates.periodStart
		e.SuggestedPeriodStart = &start
	}
	return e, nil
}
