package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/metering"
)

// MeterModel is the persistence model for the Meter aggregate.
type MeterModel struct {
	AggregateModel
	MeterNumber  string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	UtilityType  metering.UtilityType `gorm:"type:varchar(20);not null"`
	Status       metering.MeterStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	IsSmartMeter bool                 `gorm:"not null;default:false"`
	InstalledAt  time.Time            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MeterModel) TableName() string {
	return "meters"
}

// ToDomain converts the persistence model to a domain Meter
func (m *MeterModel) ToDomain() *metering.Meter {
	return &metering.Meter{
		BaseAggregateRoot: m.ToAggregateRoot(),
		MeterNumber:       m.MeterNumber,
		UtilityType:       m.UtilityType,
		Status:            m.Status,
		IsSmartMeter:      m.IsSmartMeter,
		InstalledAt:       m.InstalledAt,
	}
}

// MeterModelFromDomain creates a persistence model from a domain Meter
func MeterModelFromDomain(meter *metering.Meter) *MeterModel {
	m := &MeterModel{
		MeterNumber:  meter.MeterNumber,
		UtilityType:  meter.UtilityType,
		Status:       meter.Status,
		IsSmartMeter: meter.IsSmartMeter,
		InstalledAt:  meter.InstalledAt,
	}
	m.FromDomainAggregateRoot(meter.BaseAggregateRoot)
	return m
}

// MeterReadingModel is the persistence model for meter readings.
// Readings are append-only.
type MeterReadingModel struct {
	BaseModel
	MeterID           uuid.UUID              `gorm:"type:uuid;not null;index:idx_readings_meter_date,priority:1"`
	ReadingDate       time.Time              `gorm:"type:date;not null;index:idx_readings_meter_date,priority:2"`
	ImportReading     decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	PrevImportReading decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	ExportReading     decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	PrevExportReading decimal.Decimal        `gorm:"type:decimal(18,4);not null;default:0"`
	Source            metering.ReadingSource `gorm:"type:varchar(20);not null"`
	RecordedBy        *uuid.UUID             `gorm:"type:uuid"`
	Notes             string                 `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}

// ToDomain converts the persistence model to a domain MeterReading
func (m *MeterReadingModel) ToDomain() *metering.MeterReading {
	return &metering.MeterReading{
		BaseEntity:        m.BaseModel.ToDomain(),
		MeterID:           m.MeterID,
		ReadingDate:       m.ReadingDate.UTC(),
		ImportReading:     m.ImportReading,
		PrevImportReading: m.PrevImportReading,
		ExportReading:     m.ExportReading,
		PrevExportReading: m.PrevExportReading,
		Source:            m.Source,
		RecordedBy:        m.RecordedBy,
		Notes:             m.Notes,
	}
}

// MeterReadingModelFromDomain creates a persistence model from a domain MeterReading
func MeterReadingModelFromDomain(r *metering.MeterReading) *MeterReadingModel {
	m := &MeterReadingModel{
		MeterID:           r.MeterID,
		ReadingDate:       r.ReadingDate,
		ImportReading:     r.ImportReading,
		PrevImportReading: r.PrevImportReading,
		ExportReading:     r.ExportReading,
		PrevExportReading: r.PrevExportReading,
		Source:            r.Source,
		RecordedBy:        r.RecordedBy,
		Notes:             r.Notes,
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m
}

// ServiceConnectionModel is the persistence model for service connections.
type ServiceConnectionModel struct {
	AggregateModel
	ConnectionNumber string                    `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID       uuid.UUID                 `gorm:"type:uuid;not null;index"`
	MeterID          uuid.UUID                 `gorm:"type:uuid;not null;index"`
	UtilityType      metering.UtilityType      `gorm:"type:varchar(20);not null"`
	TariffCategoryID *uuid.UUID                `gorm:"type:uuid"`
	Status           metering.ConnectionStatus `gorm:"type:varchar(20);not null;index"`
	ConnectedAt      *time.Time
}

// TableName returns the table name for GORM
func (ServiceConnectionModel) TableName() string {
	return "service_connections"
}

// ToDomain converts the persistence model to a domain ServiceConnection
func (m *ServiceConnectionModel) ToDomain() *metering.ServiceConnection {
	return &metering.ServiceConnection{
		BaseAggregateRoot: m.ToAggregateRoot(),
		ConnectionNumber:  m.ConnectionNumber,
		CustomerID:        m.CustomerID,
		MeterID:           m.MeterID,
		UtilityType:       m.UtilityType,
		TariffCategoryID:  m.TariffCategoryID,
		Status:            m.Status,
		ConnectedAt:       m.ConnectedAt,
	}
}

// ServiceConnectionModelFromDomain creates a persistence model from a domain ServiceConnection
func ServiceConnectionModelFromDomain(c *metering.ServiceConnection) *ServiceConnectionModel {
	m := &ServiceConnectionModel{
		ConnectionNumber: c.ConnectionNumber,
		CustomerID:       c.CustomerID,
		MeterID:          c.MeterID,
		UtilityType:      c.UtilityType,
		TariffCategoryID: c.TariffCategoryID,
		Status:           c.Status,
		ConnectedAt:      c.ConnectedAt,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}
