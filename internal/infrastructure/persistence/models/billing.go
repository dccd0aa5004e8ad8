package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/billing"
)

// BillModel is the persistence model for the Bill aggregate. At most one
// ACTIVE bill may exist per meter and period start.
type BillModel struct {
	AggregateModel
	MeterID            uuid.UUID          `gorm:"type:uuid;not null;index;uniqueIndex:uq_bills_meter_period_active,priority:1,where:status = 'ACTIVE'"`
	CustomerID         uuid.UUID          `gorm:"type:uuid;not null;index"`
	ConnectionID       uuid.UUID          `gorm:"type:uuid;not null"`
	TariffCategoryID   uuid.UUID          `gorm:"type:uuid;not null"`
	BillingPeriodStart time.Time          `gorm:"type:date;not null;uniqueIndex:uq_bills_meter_period_active,priority:2,where:status = 'ACTIVE'"`
	BillingPeriodEnd   time.Time          `gorm:"type:date;not null"`
	BillDate           time.Time          `gorm:"type:date;not null"`
	DueDate            time.Time          `gorm:"type:date;not null"`
	TotalImportUnit    decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	TotalExportUnit    decimal.Decimal    `gorm:"type:decimal(18,4);not null;default:0"`
	EnergyChargeAmount decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	FixedChargeAmount  decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	SubsidyAmount      decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	SolarExportCredit  decimal.Decimal    `gorm:"type:decimal(18,2);not null;default:0"`
	Status             billing.BillStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	VoidReason         string             `gorm:"type:text"`
	VoidedBy           *uuid.UUID         `gorm:"type:uuid"`
	VoidedAt           *time.Time
	Details            []BillDetailModel `gorm:"foreignKey:BillID"`
	Taxes              []BillTaxModel    `gorm:"foreignKey:BillID"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model and its loaded lines to a domain Bill
func (m *BillModel) ToDomain() *billing.Bill {
	bill := &billing.Bill{
		BaseAggregateRoot:  m.ToAggregateRoot(),
		MeterID:            m.MeterID,
		CustomerID:         m.CustomerID,
		ConnectionID:       m.ConnectionID,
		TariffCategoryID:   m.TariffCategoryID,
		BillingPeriodStart: m.BillingPeriodStart.UTC(),
		BillingPeriodEnd:   m.BillingPeriodEnd.UTC(),
		BillDate:           m.BillDate.UTC(),
		DueDate:            m.DueDate.UTC(),
		TotalImportUnit:    m.TotalImportUnit,
		TotalExportUnit:    m.TotalExportUnit,
		EnergyChargeAmount: m.EnergyChargeAmount,
		FixedChargeAmount:  m.FixedChargeAmount,
		SubsidyAmount:      m.SubsidyAmount,
		SolarExportCredit:  m.SolarExportCredit,
		Status:             m.Status,
		VoidReason:         m.VoidReason,
		VoidedBy:           m.VoidedBy,
		VoidedAt:           m.VoidedAt,
		Details:            make([]billing.BillDetail, len(m.Details)),
		Taxes:              make([]billing.BillTax, len(m.Taxes)),
	}
	// Rows written before the status column existed only carry the sentinel.
	if bill.Status == "" {
		bill.Status = billing.BillStatusActive
	}
	for i := range m.Details {
		bill.Details[i] = m.Details[i].ToDomain()
	}
	for i := range m.Taxes {
		bill.Taxes[i] = m.Taxes[i].ToDomain()
	}
	return bill
}

// BillModelFromDomain creates a persistence model, lines included, from a domain Bill
func BillModelFromDomain(b *billing.Bill) *BillModel {
	m := &BillModel{
		MeterID:            b.MeterID,
		CustomerID:         b.CustomerID,
		ConnectionID:       b.ConnectionID,
		TariffCategoryID:   b.TariffCategoryID,
		BillingPeriodStart: b.BillingPeriodStart,
		BillingPeriodEnd:   b.BillingPeriodEnd,
		BillDate:           b.BillDate,
		DueDate:            b.DueDate,
		TotalImportUnit:    b.TotalImportUnit,
		TotalExportUnit:    b.TotalExportUnit,
		EnergyChargeAmount: b.EnergyChargeAmount,
		FixedChargeAmount:  b.FixedChargeAmount,
		SubsidyAmount:      b.SubsidyAmount,
		SolarExportCredit:  b.SolarExportCredit,
		Status:             b.Status,
		VoidReason:         b.VoidReason,
		VoidedBy:           b.VoidedBy,
		VoidedAt:           b.VoidedAt,
		Details:            make([]BillDetailModel, len(b.Details)),
		Taxes:              make([]BillTaxModel, len(b.Taxes)),
	}
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	for i, d := range b.Details {
		m.Details[i] = BillDetailModelFromDomain(b.ID, d)
	}
	for i, t := range b.Taxes {
		m.Taxes[i] = BillTaxModelFromDomain(b.ID, t)
	}
	return m
}

// BillDetailModel is one slab line of a bill.
type BillDetailModel struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey"`
	BillID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	TariffSlabID *uuid.UUID       `gorm:"type:uuid"`
	FromUnit     decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	ToUnit       *decimal.Decimal `gorm:"type:decimal(18,4)"`
	UnitsInSlab  decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	RatePerUnit  decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	Amount       decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (BillDetailModel) TableName() string {
	return "bill_details"
}

// ToDomain converts the persistence model to a domain BillDetail
func (m *BillDetailModel) ToDomain() billing.BillDetail {
	return billing.BillDetail{
		ID:           m.ID,
		BillID:       m.BillID,
		TariffSlabID: m.TariffSlabID,
		FromUnit:     m.FromUnit,
		ToUnit:       m.ToUnit,
		UnitsInSlab:  m.UnitsInSlab,
		RatePerUnit:  m.RatePerUnit,
		Amount:       m.Amount,
	}
}

// BillDetailModelFromDomain creates a detail row owned by billID
func BillDetailModelFromDomain(billID uuid.UUID, d billing.BillDetail) BillDetailModel {
	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return BillDetailModel{
		ID:           id,
		BillID:       billID,
		TariffSlabID: d.TariffSlabID,
		FromUnit:     d.FromUnit,
		ToUnit:       d.ToUnit,
		UnitsInSlab:  d.UnitsInSlab,
		RatePerUnit:  d.RatePerUnit,
		Amount:       d.Amount,
	}
}

// BillTaxModel is one tax line of a bill.
type BillTaxModel struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	BillID             uuid.UUID       `gorm:"type:uuid;not null;index"`
	TaxConfigID        uuid.UUID       `gorm:"type:uuid;not null"`
	TaxName            string          `gorm:"type:varchar(100);not null"`
	RatePercentApplied decimal.Decimal `gorm:"type:decimal(7,4);not null"`
	TaxableBaseAmount  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName returns the table name for GORM
func (BillTaxModel) TableName() string {
	return "bill_taxes"
}

// ToDomain converts the persistence model to a domain BillTax
func (m *BillTaxModel) ToDomain() billing.BillTax {
	return billing.BillTax{
		ID:                 m.ID,
		BillID:             m.BillID,
		TaxConfigID:        m.TaxConfigID,
		TaxName:            m.TaxName,
		RatePercentApplied: m.RatePercentApplied,
		TaxableBaseAmount:  m.TaxableBaseAmount,
	}
}

// BillTaxModelFromDomain creates a tax row owned by billID
func BillTaxModelFromDomain(billID uuid.UUID, t billing.BillTax) BillTaxModel {
	id := t.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return BillTaxModel{
		ID:                 id,
		BillID:             billID,
		TaxConfigID:        t.TaxConfigID,
		TaxName:            t.TaxName,
		RatePercentApplied: t.RatePercentApplied,
		TaxableBaseAmount:  t.TaxableBaseAmount,
	}
}

// PaymentModel is the persistence model for payments.
type PaymentModel struct {
	BaseModel
	BillID    uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount    decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	PaidAt    time.Time             `gorm:"not null"`
	Method    billing.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reference string                `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		BaseEntity: m.BaseModel.ToDomain(),
		BillID:     m.BillID,
		Amount:     m.Amount,
		PaidAt:     m.PaidAt,
		Method:     m.Method,
		Reference:  m.Reference,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{
		BillID:    p.BillID,
		Amount:    p.Amount,
		PaidAt:    p.PaidAt,
		Method:    p.Method,
		Reference: p.Reference,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}
