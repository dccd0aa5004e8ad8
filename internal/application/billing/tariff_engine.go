package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
	"github.com/utilitybill/backend/internal/domain/tariff"
	"go.uber.org/zap"
)

// TariffEngine loads the reference data a bill calculation needs and hands it
// to the pure billing.Calculator. It never writes.
type TariffEngine struct {
	connectionRepo metering.ConnectionRepository
	readingRepo    metering.ReadingRepository
	slabRepo       tariff.SlabRepository
	taxRepo        tariff.TaxRepository
	calculator     *billing.Calculator
	logger         *zap.Logger
	now            func() time.Time
}

// NewTariffEngine creates a new TariffEngine
func NewTariffEngine(
	connectionRepo metering.ConnectionRepository,
	readingRepo metering.ReadingRepository,
	slabRepo tariff.SlabRepository,
	taxRepo tariff.TaxRepository,
	calculator *billing.Calculator,
	logger *zap.Logger,
) *TariffEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TariffEngine{
		connectionRepo: connectionRepo,
		readingRepo:    readingRepo,
		slabRepo:       slabRepo,
		taxRepo:        taxRepo,
		calculator:     calculator,
		logger:         logger,
		now:            time.Now,
	}
}

// SetClock replaces the source of the bill date
func (e *TariffEngine) SetClock(now func() time.Time) {
	e.now = now
}

// ApplyTariffSlabs prices consumption against the category's slabs valid on asOf
func (e *TariffEngine) ApplyTariffSlabs(ctx context.Context, consumption decimal.Decimal, categoryID uuid.UUID, asOf time.Time) (*tariff.SlabCharge, error) {
	slabs, err := e.slabRepo.FindByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff slabs: %w", err)
	}
	return tariff.ApplySlabs(categoryID, consumption, slabs, asOf)
}

// CalculateSubsidy returns the subsidy granted on billAmount
func (e *TariffEngine) CalculateSubsidy(customerID uuid.UUID, billAmount decimal.Decimal, billDate time.Time) decimal.Decimal {
	return e.calculator.Subsidy(customerID, billAmount, billDate)
}

// CalculateSolarCredit returns the credit for exported units
func (e *TariffEngine) CalculateSolarCredit(exportUnits decimal.Decimal, utilityType metering.UtilityType, billDate time.Time) decimal.Decimal {
	return e.calculator.SolarCredit(exportUnits, utilityType, billDate)
}

// CalculateTaxes applies every active tax effective on date to taxable.
// An empty result is logged, not returned as an error.
func (e *TariffEngine) CalculateTaxes(ctx context.Context, taxable decimal.Decimal, date time.Time) ([]tariff.TaxLine, error) {
	taxes, err := e.taxRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tax configuration: %w", err)
	}
	lines := tariff.CalculateTaxes(taxable, taxes, date)
	if len(lines) == 0 {
		e.logger.Warn("no tax effective on date", zap.Time("date", date))
	}
	return lines, nil
}

// CalculateBill prices the period for the meter's active service connection
func (e *TariffEngine) CalculateBill(ctx context.Context, meterID uuid.UUID, periodStart, periodEnd time.Time) (*billing.BillCalculation, error) {
	conn, err := e.connectionRepo.FindActiveByMeter(ctx, meterID)
	if err != nil {
		return nil, fmt.Errorf("active connection for meter %s: %w", meterID, err)
	}
	return e.calculateForConnection(ctx, conn, periodStart, periodEnd, e.now())
}

// calculateForConnection prices [periodStart, periodEnd] for conn as of billDate
func (e *TariffEngine) calculateForConnection(
	ctx context.Context,
	conn *metering.ServiceConnection,
	periodStart, periodEnd, billDate time.Time,
) (*billing.BillCalculation, error) {
	if !conn.HasTariffCategory() {
		return nil, shared.NewDomainError(billing.ErrNoTariffCategory.Code,
			fmt.Sprintf("Service connection %s for meter %s has no tariff category assigned", conn.ConnectionNumber, conn.MeterID))
	}
	categoryID := *conn.TariffCategoryID
	periodStart = valueobject.DateOf(periodStart)
	periodEnd = valueobject.DateOf(periodEnd)

	readings, err := e.readingRepo.FindByMeterInRange(ctx, conn.MeterID, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load readings: %w", err)
	}
	slabs, err := e.slabRepo.FindByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff slabs: %w", err)
	}
	taxes, err := e.taxRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tax configuration: %w", err)
	}

	return e.calculator.Calculate(billing.CalculationInput{
		MeterID:          conn.MeterID,
		CustomerID:       conn.CustomerID,
		UtilityType:      conn.UtilityType,
		TariffCategoryID: categoryID,
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		BillDate:         valueobject.DateOf(billDate),
		Readings:         readings,
		Slabs:            slabs,
		Taxes:            taxes,
	})
}
