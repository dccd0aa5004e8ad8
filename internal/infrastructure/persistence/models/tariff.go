package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/tariff"
)

// TariffCategoryModel is the persistence model for tariff categories.
type TariffCategoryModel struct {
	AggregateModel
	Code        string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string               `gorm:"type:varchar(200);not null"`
	UtilityType metering.UtilityType `gorm:"type:varchar(20);not null"`
	Description string               `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (TariffCategoryModel) TableName() string {
	return "tariff_categories"
}

// ToDomain converts the persistence model to a domain Category
func (m *TariffCategoryModel) ToDomain() *tariff.Category {
	return &tariff.Category{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Code:              m.Code,
		Name:              m.Name,
		UtilityType:       m.UtilityType,
		Description:       m.Description,
	}
}

// TariffCategoryModelFromDomain creates a persistence model from a domain Category
func TariffCategoryModelFromDomain(c *tariff.Category) *TariffCategoryModel {
	m := &TariffCategoryModel{
		Code:        c.Code,
		Name:        c.Name,
		UtilityType: c.UtilityType,
		Description: c.Description,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}

// TariffSlabModel is the persistence model for tariff slabs.
type TariffSlabModel struct {
	BaseModel
	TariffCategoryID uuid.UUID        `gorm:"type:uuid;not null;index"`
	FromUnit         decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	ToUnit           *decimal.Decimal `gorm:"type:decimal(18,4)"`
	RatePerUnit      decimal.Decimal  `gorm:"type:decimal(18,4);not null"`
	FixedCharge      decimal.Decimal  `gorm:"type:decimal(18,2);not null;default:0"`
	ValidFrom        time.Time        `gorm:"type:date;not null"`
	ValidTo          *time.Time       `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (TariffSlabModel) TableName() string {
	return "tariff_slabs"
}

// ToDomain converts the persistence model to a domain Slab
func (m *TariffSlabModel) ToDomain() *tariff.Slab {
	return &tariff.Slab{
		BaseEntity:       m.BaseModel.ToDomain(),
		TariffCategoryID: m.TariffCategoryID,
		FromUnit:         m.FromUnit,
		ToUnit:           m.ToUnit,
		RatePerUnit:      m.RatePerUnit,
		FixedCharge:      m.FixedCharge,
		ValidFrom:        m.ValidFrom,
		ValidTo:          m.ValidTo,
	}
}

// TariffSlabModelFromDomain creates a persistence model from a domain Slab
func TariffSlabModelFromDomain(s *tariff.Slab) *TariffSlabModel {
	m := &TariffSlabModel{
		TariffCategoryID: s.TariffCategoryID,
		FromUnit:         s.FromUnit,
		ToUnit:           s.ToUnit,
		RatePerUnit:      s.RatePerUnit,
		FixedCharge:      s.FixedCharge,
		ValidFrom:        s.ValidFrom,
		ValidTo:          s.ValidTo,
	}
	m.FromDomainBaseEntity(s.BaseEntity)
	return m
}

// TaxConfigModel is the persistence model for tax configuration.
type TaxConfigModel struct {
	AggregateModel
	Name          string           `gorm:"type:varchar(100);not null"`
	RatePercent   decimal.Decimal  `gorm:"type:decimal(7,4);not null"`
	Status        tariff.TaxStatus `gorm:"type:varchar(20);not null;index"`
	EffectiveFrom time.Time        `gorm:"type:date;not null"`
	EffectiveTo   *time.Time       `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (TaxConfigModel) TableName() string {
	return "tax_configs"
}

// ToDomain converts the persistence model to a domain TaxConfig
func (m *TaxConfigModel) ToDomain() *tariff.TaxConfig {
	return &tariff.TaxConfig{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Name:              m.Name,
		RatePercent:       m.RatePercent,
		Status:            m.Status,
		EffectiveFrom:     m.EffectiveFrom,
		EffectiveTo:       m.EffectiveTo,
	}
}

// TaxConfigModelFromDomain creates a persistence model from a domain TaxConfig
func TaxConfigModelFromDomain(t *tariff.TaxConfig) *TaxConfigModel {
	m := &TaxConfigModel{
		Name:          t.Name,
		RatePercent:   t.RatePercent,
		Status:        t.Status,
		EffectiveFrom: t.EffectiveFrom,
		EffectiveTo:   t.EffectiveTo,
	}
	m.FromDomainAggregateRoot(t.BaseAggregateRoot)
	return m
}
