package billing

import (
	"github.com/utilitybill/backend/internal/domain/shared"
)

// Billing error kinds. Compare with errors.Is; messages carry the detail.
var (
	ErrInsufficientReadings   = shared.NewDomainError("INSUFFICIENT_READINGS", "At least two readings are required in the billing period")
	ErrInvalidReadingSequence = shared.NewDomainError("INVALID_READING_SEQUENCE", "Readings decrease across the billing period")
	ErrInvalidCalculation     = shared.NewDomainError("INVALID_CALCULATION", "Bill calculation produced an invalid result")
	ErrCannotVoidPaidBill     = shared.NewDomainError("CANNOT_VOID_PAID_BILL", "Cannot void a bill that has payments")
	ErrNoTariffCategory       = shared.NewDomainError("NO_TARIFF_CATEGORY", "Service connection has no tariff category assigned")
	ErrBillVoided             = shared.NewDomainError("BILL_VOIDED", "Bill has been voided")
	ErrInvalidBillingPeriod   = shared.NewDomainError("INVALID_BILLING_PERIOD", "Billing period end must not be before its start")
	ErrPeriodAlreadyBilled    = shared.NewDomainError("PERIOD_ALREADY_BILLED", "An active bill already covers the billing period")
)
