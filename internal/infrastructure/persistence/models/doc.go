// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel and AggregateModel
// - licensing.go: licenses and product_keys
// - usage.go: usage_daily aggregates
// - audit.go: append-only audit_entries
// - activity.go: product traffic tables read through the scope filter
//
// Column types are chosen so every model also migrates on SQLite, which the
// repository tests run against.
package models
