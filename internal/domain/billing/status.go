package billing

import "time"

// BillStatus is the lifecycle state of a bill
type BillStatus string

const (
	BillStatusActive BillStatus = "ACTIVE"
	BillStatusVoided BillStatus = "VOIDED"
)

// IsValid checks if the status is known
func (s BillStatus) IsValid() bool {
	return s == BillStatusActive || s == BillStatusVoided
}

// String returns the string representation of BillStatus
func (s BillStatus) String() string {
	return string(s)
}

// VoidedDueDate is the far-future due date written on voided bills.
// Rows voided before the status column existed are recognized by it.
var VoidedDueDate = time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC)

// isSentinelDueDate compares by calendar date so the check survives
// round-trips through DATE columns and time zones.
func isSentinelDueDate(t time.Time) bool {
	y, m, d := t.Date()
	vy, vm, vd := VoidedDueDate.Date()
	return y == vy && m == vm && d == vd
}
