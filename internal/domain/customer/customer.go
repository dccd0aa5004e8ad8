// Package customer holds the account holder that service connections and bills belong to.
package customer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// CustomerType is the tariff-relevant classification of a customer
type CustomerType string

const (
	CustomerTypeResidential CustomerType = "RESIDENTIAL"
	CustomerTypeCommercial  CustomerType = "COMMERCIAL"
	CustomerTypeIndustrial  CustomerType = "INDUSTRIAL"
	CustomerTypeGovernment  CustomerType = "GOVERNMENT"
)

// IsValid checks if the customer type is known
func (t CustomerType) IsValid() bool {
	switch t {
	case CustomerTypeResidential, CustomerTypeCommercial, CustomerTypeIndustrial, CustomerTypeGovernment:
		return true
	}
	return false
}

// String returns the string representation of CustomerType
func (t CustomerType) String() string {
	return string(t)
}

// Status is the lifecycle state of a customer account
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Customer is an account holder
type Customer struct {
	shared.BaseAggregateRoot
	AccountNumber string       `json:"account_number"`
	Name          string       `json:"name"`
	Email         string       `json:"email"`
	CustomerType  CustomerType `json:"customer_type"`
	Status        Status       `json:"status"`
}

// NewCustomer creates an active customer
func NewCustomer(accountNumber, name string, customerType CustomerType) (*Customer, error) {
	accountNumber = strings.TrimSpace(accountNumber)
	if accountNumber == "" {
		return nil, shared.NewDomainError("INVALID_ACCOUNT_NUMBER", "Account number cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
	}
	if !customerType.IsValid() {
		return nil, shared.NewDomainError("INVALID_CUSTOMER_TYPE", "Invalid customer type")
	}

	return &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		AccountNumber:     accountNumber,
		Name:              strings.TrimSpace(name),
		CustomerType:      customerType,
		Status:            StatusActive,
	}, nil
}

// IsActive returns true if the account is active
func (c *Customer) IsActive() bool {
	return c.Status == StatusActive
}

// Repository defines persistence operations for customers
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) (*Customer, error)
	Save(ctx context.Context, c *Customer) error
}
