package metering

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// UtilityType is the commodity a meter measures
type UtilityType string

const (
	UtilityTypeElectricity UtilityType = "ELECTRICITY"
	UtilityTypeWater       UtilityType = "WATER"
)

// IsValid checks if the utility type is known
func (u UtilityType) IsValid() bool {
	return u == UtilityTypeElectricity || u == UtilityTypeWater
}

// String returns the string representation of UtilityType
func (u UtilityType) String() string {
	return string(u)
}

// MeterStatus is the operational state of a meter
type MeterStatus string

const (
	MeterStatusActive   MeterStatus = "ACTIVE"
	MeterStatusInactive MeterStatus = "INACTIVE"
	MeterStatusFaulty   MeterStatus = "FAULTY"
)

// IsValid checks if the meter status is known
func (s MeterStatus) IsValid() bool {
	switch s {
	case MeterStatusActive, MeterStatusInactive, MeterStatusFaulty:
		return true
	}
	return false
}

// Meter is a physical metering device
type Meter struct {
	shared.BaseAggregateRoot
	MeterNumber  string      `json:"meter_number"`
	UtilityType  UtilityType `json:"utility_type"`
	Status       MeterStatus `json:"status"`
	IsSmartMeter bool        `json:"is_smart_meter"`
	InstalledAt  time.Time   `json:"installed_at"`
}

// NewMeter creates an active meter
func NewMeter(meterNumber string, utilityType UtilityType, smart bool, installedAt time.Time) (*Meter, error) {
	meterNumber = strings.TrimSpace(meterNumber)
	if meterNumber == "" {
		return nil, shared.NewDomainError("INVALID_METER_NUMBER", "Meter number cannot be empty")
	}
	if !utilityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_UTILITY_TYPE", "Invalid utility type")
	}

	return &Meter{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		MeterNumber:       meterNumber,
		UtilityType:       utilityType,
		Status:            MeterStatusActive,
		IsSmartMeter:      smart,
		InstalledAt:       installedAt,
	}, nil
}

// MeterRepository defines persistence operations for meters
type MeterRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Meter, error)
	FindByNumber(ctx context.Context, meterNumber string) (*Meter, error)
	Save(ctx context.Context, meter *Meter) error
}
