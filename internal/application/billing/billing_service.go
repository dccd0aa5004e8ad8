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
	"golang.org/x/time/rate"
)

// Repositories are the read-side ports BillingService uses outside transactions
type Repositories struct {
	Bills       billing.BillRepository
	Payments    billing.PaymentRepository
	Meters      metering.MeterRepository
	Connections metering.ConnectionRepository
	Readings    metering.ReadingRepository
}

// BillingService owns the bill lifecycle: issuing, recalculating, bulk
// generation, reading-triggered generation and voiding.
type BillingService struct {
	engine  *TariffEngine
	scope   TransactionScope
	repos   Repositories
	cfg     Config
	locker  MeterLocker
	metrics Metrics
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// NewBillingService creates a new BillingService.
// Without a MeterLocker, reading-triggered generation relies on the
// bills unique index alone to reject overlapping bills.
func NewBillingService(
	engine *TariffEngine,
	scope TransactionScope,
	repos Repositories,
	cfg Config,
	logger *zap.Logger,
) *BillingService {
	defaults := DefaultConfig()
	if cfg.MinDaysBetweenBills < 0 {
		cfg.MinDaysBetweenBills = defaults.MinDaysBetweenBills
	}
	if cfg.DueDaysFromBillDate <= 0 {
		cfg.DueDaysFromBillDate = defaults.DueDaysFromBillDate
	}
	if cfg.MeterLockTTL <= 0 {
		cfg.MeterLockTTL = defaults.MeterLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{
		engine:  engine,
		scope:   scope,
		repos:   repos,
		cfg:     cfg,
		metrics: NopMetrics(),
		logger:  logger,
		now:     time.Now,
	}
}

// SetMeterLocker sets the per-meter lease used by GenerateBillFromReading
func (s *BillingService) SetMeterLocker(locker MeterLocker) {
	s.locker = locker
}

// SetMetrics sets the metrics recorder
func (s *BillingService) SetMetrics(metrics Metrics) {
	if metrics == nil {
		metrics = NopMetrics()
	}
	s.metrics = metrics
}

// SetBulkRateLimit throttles CreateBulk to perSecond meters per second. Zero disables throttling.
func (s *BillingService) SetBulkRateLimit(perSecond float64) {
	if perSecond <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
}

// SetClock replaces the source of bill dates and void timestamps, for the engine too
func (s *BillingService) SetClock(now func() time.Time) {
	s.now = now
	s.engine.SetClock(now)
}

// Engine returns the tariff engine the service prices bills with
func (s *BillingService) Engine() *TariffEngine {
	return s.engine
}

// Create prices [periodStart, periodEnd] for the meter's active connection
// and stores the bill with its detail and tax lines in one transaction.
func (s *BillingService) Create(ctx context.Context, meterID uuid.UUID, periodStart, periodEnd time.Time) (*billing.Bill, error) {
	conn, err := s.activeConnection(ctx, meterID)
	if err != nil {
		return nil, err
	}
	return s.createForConnection(ctx, conn, periodStart, periodEnd, s.cfg.DueDaysFromBillDate, TriggerManual)
}

func (s *BillingService) activeConnection(ctx context.Context, meterID uuid.UUID) (*metering.ServiceConnection, error) {
	if _, err := s.repos.Meters.FindByID(ctx, meterID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFoundf("Meter %s not found", meterID)
		}
		return nil, fmt.Errorf("failed to load meter: %w", err)
	}
	conn, err := s.repos.Connections.FindActiveByMeter(ctx, meterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NotFoundf("No active service connection for meter %s", meterID)
		}
		return nil, fmt.Errorf("failed to load service connection: %w", err)
	}
	return conn, nil
}

func (s *BillingService) createForConnection(
	ctx context.Context,
	conn *metering.ServiceConnection,
	periodStart, periodEnd time.Time,
	dueDays int,
	trigger string,
) (*billing.Bill, error) {
	bill, _, err := s.price(ctx, conn, periodStart, periodEnd, dueDays)
	if err != nil {
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.BillRepo().Create(ctx, bill); err != nil {
			return fmt.Errorf("failed to save bill: %w", err)
		}
		return repos.SaveEvents(ctx, bill.GetDomainEvents()...)
	})
	if err != nil {
		return nil, err
	}
	bill.ClearDomainEvents()

	total := bill.GetTotalAmount()
	s.metrics.BillCreated(ctx, trigger, total)
	s.logger.Info("bill created",
		zap.String("bill_id", bill.ID.String()),
		zap.String("meter_id", bill.MeterID.String()),
		zap.String("trigger", trigger),
		zap.Time("period_start", bill.BillingPeriodStart),
		zap.Time("period_end", bill.BillingPeriodEnd),
		zap.String("total_amount", total.StringFixed(2)),
	)
	return bill, nil
}

// price builds the unsaved bill for the period. The calculation goes through
// the same checks whether or not the bill is stored afterwards.
func (s *BillingService) price(
	ctx context.Context,
	conn *metering.ServiceConnection,
	periodStart, periodEnd time.Time,
	dueDays int,
) (*billing.Bill, *billing.BillCalculation, error) {
	calc, err := s.engine.calculateForConnection(ctx, conn, periodStart, periodEnd, s.now())
	if err != nil {
		return nil, nil, err
	}
	bill, err := billing.NewBill(conn.ID, calc, dueDays)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidCalculation) {
			s.logger.Error("bill calculation rejected",
				zap.String("meter_id", conn.MeterID.String()),
				zap.String("total_amount", calc.TotalAmount.String()),
				zap.Error(err),
			)
		}
		return nil, nil, err
	}
	return bill, calc, nil
}

// Recalculate re-prices a bill's stored period and replaces its charges and
// lines. The bill date, and so the tax date, is kept.
func (s *BillingService) Recalculate(ctx context.Context, billID uuid.UUID) (*billing.Bill, error) {
	bill, err := s.repos.Bills.FindByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.IsVoided() {
		return nil, shared.NewDomainError(billing.ErrBillVoided.Code,
			fmt.Sprintf("Bill %s is voided and cannot be recalculated", bill.ID))
	}

	conn, err := s.repos.Connections.FindByID(ctx, bill.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("service connection %s: %w", bill.ConnectionID, err)
	}
	calc, err := s.engine.calculateForConnection(ctx, conn, bill.BillingPeriodStart, bill.BillingPeriodEnd, bill.BillDate)
	if err != nil {
		return nil, err
	}
	previous := bill.GetTotalAmount()
	if err := bill.Recalculate(calc); err != nil {
		if errors.Is(err, billing.ErrInvalidCalculation) {
			s.logger.Error("bill recalculation rejected",
				zap.String("bill_id", bill.ID.String()),
				zap.Error(err),
			)
		}
		return nil, err
	}

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.BillRepo().Update(ctx, bill); err != nil {
			return fmt.Errorf("failed to update bill: %w", err)
		}
		return repos.SaveEvents(ctx, bill.GetDomainEvents()...)
	})
	if err != nil {
		return nil, err
	}
	bill.ClearDomainEvents()

	s.metrics.BillRecalculated(ctx)
	s.logger.Info("bill recalculated",
		zap.String("bill_id", bill.ID.String()),
		zap.String("previous_total", previous.StringFixed(2)),
		zap.String("new_total", bill.GetTotalAmount().StringFixed(2)),
	)
	return bill, nil
}

// Void cancels a bill that has no payments. The row is kept with zeroed
// charges, status VOIDED and the sentinel due date. The bill row stays locked
// from the payment check until commit, so a payment cannot land in between.
func (s *BillingService) Void(ctx context.Context, billID uuid.UUID, reason string, employeeID uuid.UUID) (*billing.Bill, error) {
	var voided *billing.Bill
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		bill, err := repos.BillRepo().FindByIDForUpdate(ctx, billID)
		if err != nil {
			return err
		}
		paid, err := repos.PaymentRepo().SumByBill(ctx, billID)
		if err != nil {
			return fmt.Errorf("failed to sum payments: %w", err)
		}
		if err := bill.Void(reason, employeeID, paid, s.now()); err != nil {
			return err
		}
		if err := repos.BillRepo().Update(ctx, bill); err != nil {
			return fmt.Errorf("failed to update bill: %w", err)
		}
		if err := repos.SaveEvents(ctx, bill.GetDomainEvents()...); err != nil {
			return err
		}
		voided = bill
		return nil
	})
	if err != nil {
		return nil, err
	}
	voided.ClearDomainEvents()

	s.metrics.BillVoided(ctx)
	s.logger.Info("bill voided",
		zap.String("bill_id", voided.ID.String()),
		zap.String("employee_id", employeeID.String()),
		zap.String("reason", voided.VoidReason),
	)
	return voided, nil
}

// CreateBulk bills every meter selected by filter up to filter.PeriodEnd, one
// transaction per meter. Each meter's period starts where its latest active
// bill ends; see bulkPeriodStart. A meter that fails is recorded in the result
// and the batch carries on; the returned error is reserved for failing to
// select the meters at all. With dryRun the bills are priced but not stored.
func (s *BillingService) CreateBulk(ctx context.Context, filter BulkFilter, dryRun bool) (*BulkResult, error) {
	if filter.PeriodEnd.IsZero() || filter.PeriodEnd.Before(filter.PeriodStart) {
		return nil, billing.ErrInvalidBillingPeriod
	}
	conns, err := s.repos.Connections.FindActive(ctx, metering.ConnectionFilter{
		UtilityType:  filter.UtilityType,
		CustomerType: filter.CustomerType,
		MeterIDs:     filter.MeterIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select connections: %w", err)
	}

	started := s.now()
	result := &BulkResult{
		DryRun:    dryRun,
		Succeeded: make([]BulkSuccess, 0, len(conns)),
		Failed:    make([]BulkFailure, 0),
	}
	s.logger.Info("bulk billing started",
		zap.Int("meters", len(conns)),
		zap.Bool("dry_run", dryRun),
		zap.Time("period_start", filter.PeriodStart),
		zap.Time("period_end", filter.PeriodEnd),
	)

	for i := range conns {
		conn := &conns[i]
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				for _, rest := range conns[i:] {
					result.Failed = append(result.Failed, bulkFailure(rest.MeterID, err))
				}
				break
			}
		}

		success, err := s.billBulkMeter(ctx, conn, filter, dryRun)
		if err != nil {
			s.recordBulkFailure(result, conn.MeterID, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, *success)
	}

	elapsed := s.now().Sub(started)
	s.metrics.BulkCompleted(ctx, len(result.Succeeded), len(result.Failed), elapsed)
	s.logger.Info("bulk billing finished",
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Bool("dry_run", dryRun),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (s *BillingService) billBulkMeter(ctx context.Context, conn *metering.ServiceConnection, filter BulkFilter, dryRun bool) (*BulkSuccess, error) {
	if !dryRun && s.locker != nil {
		unlock, err := s.locker.Lock(ctx, conn.MeterID, s.cfg.MeterLockTTL)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release meter lease",
					zap.String("meter_id", conn.MeterID.String()),
					zap.Error(err),
				)
			}
		}()
	}

	start, err := s.bulkPeriodStart(ctx, conn.MeterID, filter)
	if err != nil {
		return nil, err
	}

	if dryRun {
		bill, calc, err := s.price(ctx, conn, start, filter.PeriodEnd, s.cfg.DueDaysFromBillDate)
		if err != nil {
			return nil, err
		}
		return &BulkSuccess{
			MeterID:     conn.MeterID,
			TotalAmount: bill.GetTotalAmount(),
			Calculation: calc,
		}, nil
	}

	bill, err := s.createForConnection(ctx, conn, start, filter.PeriodEnd, s.cfg.DueDaysFromBillDate, TriggerBulk)
	if err != nil {
		return nil, err
	}
	billID := bill.ID
	return &BulkSuccess{
		MeterID:     conn.MeterID,
		BillID:      &billID,
		TotalAmount: bill.GetTotalAmount(),
	}, nil
}

// bulkPeriodStart continues from the meter's latest active bill so bulk runs
// neither overlap nor leave a gap after reading-triggered bills. A meter never
// billed starts at filter.PeriodStart, or at its first reading when the filter
// leaves the start open.
func (s *BillingService) bulkPeriodStart(ctx context.Context, meterID uuid.UUID, filter BulkFilter) (time.Time, error) {
	last, err := s.repos.Bills.FindLatestActiveByMeter(ctx, meterID)
	switch {
	case err == nil:
		end := valueobject.DateOf(last.BillingPeriodEnd)
		if !end.Before(valueobject.DateOf(filter.PeriodEnd)) {
			return time.Time{}, shared.NewDomainError(billing.ErrPeriodAlreadyBilled.Code,
				fmt.Sprintf("Meter %s is billed through %s by bill %s", meterID, end.Format(time.DateOnly), last.ID))
		}
		return end, nil
	case errors.Is(err, shared.ErrNotFound):
	default:
		return time.Time{}, fmt.Errorf("failed to load latest bill: %w", err)
	}

	if !filter.PeriodStart.IsZero() {
		return filter.PeriodStart, nil
	}
	first, err := s.repos.Readings.FindFirstByMeter(ctx, meterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return time.Time{}, shared.NewDomainError(billing.ErrInsufficientReadings.Code,
				fmt.Sprintf("Meter %s has no readings", meterID))
		}
		return time.Time{}, fmt.Errorf("failed to load first reading: %w", err)
	}
	return valueobject.DateOf(first.ReadingDate), nil
}

func (s *BillingService) recordBulkFailure(result *BulkResult, meterID uuid.UUID, err error) {
	s.logger.Warn("bulk billing failed for meter",
		zap.String("meter_id", meterID.String()),
		zap.Error(err),
	)
	result.Failed = append(result.Failed, bulkFailure(meterID, err))
}

func bulkFailure(meterID uuid.UUID, err error) BulkFailure {
	f := BulkFailure{MeterID: meterID, Error: err.Error()}
	var de *shared.DomainError
	if errors.As(err, &de) {
		f.Code = de.Code
	}
	return f
}
