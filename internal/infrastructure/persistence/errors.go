package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// classify maps driver and gorm errors onto the domain error taxonomy.
// Errors it does not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound.WithCause(err)
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return licensing.ErrDuplicateKey.WithCause(err)
	case isUnavailable(err):
		return shared.ErrStoreUnavailable.WithCause(err)
	}
	return err
}

// classifyNotFound is classify with a more specific NotFound error
func classifyNotFound(err error, notFound *shared.DomainError) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound.WithCause(err)
	}
	return classify(err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "failed to connect") ||
		strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "sql: database is closed")
}

// isUniqueViolation catches constraint errors that were not translated,
// e.g. when TranslateError is off or the statement used raw SQL.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
