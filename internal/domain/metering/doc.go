// Package metering models meters, the readings taken from them and the
// service connections that tie a meter to a customer and a tariff category.
//
// Readings are append-only. A reading never goes below its predecessor
// unless it is recorded with the CORRECTED source, which is how operators fix
// a bad entry without deleting history.
package metering
