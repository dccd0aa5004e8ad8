// Package models contains GORM persistence models that map to database tables.
// They are kept apart from the domain types so the domain stays free of ORM
// tags; each model converts with ToDomain and a XModelFromDomain constructor.
//
// Files:
//   - base.go: shared identity, timestamp and version columns
//   - customer.go, metering.go: account holders, meters, readings, connections
//   - tariff.go: tariff categories, slabs, tax configuration
//   - billing.go: bills with their detail and tax lines, payments
//   - outbox.go: transactional outbox rows
package models
