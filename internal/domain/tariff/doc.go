// Package tariff holds the priced reference data used by billing: tariff
// categories, their consumption slabs and the percentage taxes stacked on a
// bill. Everything here is read-only from billing's point of view.
//
// ApplySlabs and CalculateTaxes are pure: they take the reference rows as
// arguments and never perform I/O.
package tariff
