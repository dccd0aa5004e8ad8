// Package billing turns metered consumption into bills.
//
// The Calculator prices a billing period from readings and tariff reference
// data handed to it: slab energy charge, the category fixed charge, subsidy
// and solar export credit (both pluggable policies), then the additive tax
// stack. It performs no I/O.
//
// Bill is the persisted snapshot of a calculation together with its slab
// lines (BillDetail) and tax lines (BillTax). A bill is mutated only by
// recalculation, which replaces its lines, or by voiding, which zeroes its
// charges and is refused once any payment exists.
package billing
