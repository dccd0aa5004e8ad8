package metering

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/customer"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// ConnectionStatus is the lifecycle state of a service connection
type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "PENDING"
	ConnectionStatusActive       ConnectionStatus = "ACTIVE"
	ConnectionStatusSuspended    ConnectionStatus = "SUSPENDED"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// IsValid checks if the connection status is known
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusPending, ConnectionStatusActive, ConnectionStatusSuspended, ConnectionStatusDisconnected:
		return true
	}
	return false
}

// ServiceConnection binds a meter to a customer and the tariff category they are billed under
type ServiceConnection struct {
	shared.BaseAggregateRoot
	ConnectionNumber string           `json:"connection_number"`
	CustomerID       uuid.UUID        `json:"customer_id"`
	MeterID          uuid.UUID        `json:"meter_id"`
	UtilityType      UtilityType      `json:"utility_type"`
	TariffCategoryID *uuid.UUID       `json:"tariff_category_id,omitempty"`
	Status           ConnectionStatus `json:"status"`
	ConnectedAt      *time.Time       `json:"connected_at,omitempty"`
}

// NewServiceConnection creates a pending connection
func NewServiceConnection(connectionNumber string, customerID, meterID uuid.UUID, utilityType UtilityType) (*ServiceConnection, error) {
	if connectionNumber == "" {
		return nil, shared.NewDomainError("INVALID_CONNECTION_NUMBER", "Connection number cannot be empty")
	}
	if customerID == uuid.Nil || meterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CONNECTION", "Customer and meter are required")
	}
	if !utilityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_UTILITY_TYPE", "Invalid utility type")
	}

	return &ServiceConnection{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ConnectionNumber:  connectionNumber,
		CustomerID:        customerID,
		MeterID:           meterID,
		UtilityType:       utilityType,
		Status:            ConnectionStatusPending,
	}, nil
}

// Activate puts the connection into service
func (c *ServiceConnection) Activate(at time.Time) error {
	if c.Status == ConnectionStatusDisconnected {
		return shared.NewDomainError("INVALID_STATE", "Cannot activate a disconnected connection")
	}
	c.Status = ConnectionStatusActive
	c.ConnectedAt = &at
	c.Touch()
	return nil
}

// AssignTariffCategory sets the category the connection is billed under
func (c *ServiceConnection) AssignTariffCategory(categoryID uuid.UUID) {
	c.TariffCategoryID = &categoryID
	c.Touch()
}

// IsActive returns true if the connection is in service
func (c *ServiceConnection) IsActive() bool {
	return c.Status == ConnectionStatusActive
}

// HasTariffCategory returns true if a tariff category is assigned
func (c *ServiceConnection) HasTariffCategory() bool {
	return c.TariffCategoryID != nil && *c.TariffCategoryID != uuid.Nil
}

// ConnectionFilter selects active connections for bulk billing.
// Zero-valued fields do not restrict the selection.
type ConnectionFilter struct {
	UtilityType  UtilityType
	CustomerType customer.CustomerType
	MeterIDs     []uuid.UUID
}

// ConnectionRepository defines persistence operations for service connections
type ConnectionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ServiceConnection, error)
	// FindActiveByMeter returns the ACTIVE connection for a meter, or shared.ErrNotFound
	FindActiveByMeter(ctx context.Context, meterID uuid.UUID) (*ServiceConnection, error)
	// FindActive returns ACTIVE connections matching the filter, ordered by meter
	FindActive(ctx context.Context, filter ConnectionFilter) ([]ServiceConnection, error)
	Save(ctx context.Context, conn *ServiceConnection) error
}
