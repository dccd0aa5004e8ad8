package models

import (
	"github.com/utilitybill/backend/internal/domain/customer"
)

// CustomerModel is the persistence model for the Customer aggregate.
type CustomerModel struct {
	AggregateModel
	AccountNumber string                `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name          string                `gorm:"type:varchar(200);not null"`
	Email         string                `gorm:"type:varchar(200)"`
	CustomerType  customer.CustomerType `gorm:"type:varchar(20);not null"`
	Status        customer.Status       `gorm:"type:varchar(20);not null;default:'ACTIVE'"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer
func (m *CustomerModel) ToDomain() *customer.Customer {
	return &customer.Customer{
		BaseAggregateRoot: m.ToAggregateRoot(),
		AccountNumber:     m.AccountNumber,
		Name:              m.Name,
		Email:             m.Email,
		CustomerType:      m.CustomerType,
		Status:            m.Status,
	}
}

// CustomerModelFromDomain creates a persistence model from a domain Customer
func CustomerModelFromDomain(c *customer.Customer) *CustomerModel {
	m := &CustomerModel{
		AccountNumber: c.AccountNumber,
		Name:          c.Name,
		Email:         c.Email,
		CustomerType:  c.CustomerType,
		Status:        c.Status,
	}
	m.FromDomainAggregateRoot(c.BaseAggregateRoot)
	return m
}
