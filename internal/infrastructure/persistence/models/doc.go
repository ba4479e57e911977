// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from the ledger domain types to keep the domain layer pure
// and free from ORM concerns.
//
// Structure:
// - raw.go: append-only raw batches and their order, invoice, payment and corporate rows
// - snapshot.go: versioned snapshots, the current pointer, ledger rows, exceptions, run history
package models
