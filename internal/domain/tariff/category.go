package tariff

import (
	"context"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// Category is the pricing policy bucket a service connection is assigned to
// (residential, commercial, ...). It owns one or more slabs.
type Category struct {
	shared.BaseAggregateRoot
	Code        string               `json:"code"`
	Name        string               `json:"name"`
	UtilityType metering.UtilityType `json:"utility_type"`
	Description string               `json:"description,omitempty"`
}

// NewCategory creates a tariff category
func NewCategory(code, name string, utilityType metering.UtilityType) (*Category, error) {
	if code == "" || name == "" {
		return nil, shared.NewDomainError("INVALID_TARIFF_CATEGORY", "Tariff category code and name are required")
	}
	if !utilityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_UTILITY_TYPE", "Invalid utility type")
	}
	return &Category{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              code,
		Name:              name,
		UtilityType:       utilityType,
	}, nil
}

// CategoryRepository defines persistence operations for tariff categories
type CategoryRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Category, error)
	Save(ctx context.Context, c *Category) error
}
