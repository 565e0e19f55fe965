// Package datascope restricts GORM queries to the product keys an actor may see.
//
// A licensing.Scope is resolved once per request by the application layer and
// then applied here to every product-keyed table:
//   - unrestricted (master): no condition is added
//   - empty: WHERE 1 = 0, so nothing is returned
//   - otherwise: WHERE <column> IN (<keys>)
//
// Usage:
//
//	filter := datascope.NewFilter(scope)
//	db.Scopes(filter.ApplyToQuery("conversation_logs")).Find(&rows)
package datascope

import (
	"context"

	"github.com/licensehub/backend/internal/domain/licensing"
	"gorm.io/gorm"
)

// DataScopeContextKey is the context key for a resolved scope
type DataScopeContextKey string

// ScopeKey is the context key for storing the request's resolved scope
const ScopeKey DataScopeContextKey = "data_scope"

// DefaultColumn is the column product traffic tables are keyed by
const DefaultColumn = "product_key"

// scopedColumns whitelists the filter column per table. Tables not listed
// use DefaultColumn.
var scopedColumns = map[string]string{
	"conversation_logs": DefaultColumn,
	"leads":             DefaultColumn,
	"campaign_stats":    DefaultColumn,
	"product_keys":      "key",
}

// ScopeFunc is a GORM scope function
type ScopeFunc func(db *gorm.DB) *gorm.DB

// Filter applies a resolved scope to GORM queries
type Filter struct {
	scope licensing.Scope
}

// NewFilter creates a Filter for the scope
func NewFilter(scope licensing.Scope) *Filter {
	return &Filter{scope: scope}
}

// NewFilterFromContext creates a Filter from the scope stored in ctx. A context
// without a scope yields a filter that matches nothing.
func NewFilterFromContext(ctx context.Context) *Filter {
	scope, _ := ctx.Value(ScopeKey).(licensing.Scope)
	return NewFilter(scope)
}

// WithScope stores a resolved scope in the context
func WithScope(ctx context.Context, scope licensing.Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// Apply adds the scope condition for the given table to db
func (f *Filter) Apply(db *gorm.DB, table string) *gorm.DB {
	switch {
	case f.scope.IsUnrestricted():
		return db
	case f.scope.IsEmpty():
		return db.Where("1 = 0")
	default:
		return db.Where(ColumnFor(table)+" IN ?", f.scope.Keys())
	}
}

// ApplyToQuery returns Apply as a scope function for db.Scopes
func (f *Filter) ApplyToQuery(table string) ScopeFunc {
	return func(db *gorm.DB) *gorm.DB {
		return f.Apply(db, table)
	}
}

// CanAccessAll reports whether the filter adds no condition
func (f *Filter) CanAccessAll() bool {
	return f.scope.IsUnrestricted()
}

// Allows reports whether a single product key is inside the scope
func (f *Filter) Allows(productKey string) bool {
	return f.scope.Allows(productKey)
}

// ColumnFor returns the whitelisted scope column of a table
func ColumnFor(table string) string {
	if col, ok := scopedColumns[table]; ok {
		return col
	}
	return DefaultColumn
}
