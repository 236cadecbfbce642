// Package gormstore is the relational persist.Store.
//
// Records live in a single table keyed by their UUID. Merge and Remove are
// optimistic: they only touch the row if its version still matches, and a
// miss is reported as persist.ErrNotFound or persist.ErrVersionConflict.
// Removing a record that never received a version (Version 0) is reported
// as persist.ErrDetached.
//
// Rules returns the classification rules for GORM and the MySQL and SQLite
// drivers.
package gormstore
