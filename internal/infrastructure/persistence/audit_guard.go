package persistence

import (
	"github.com/licensehub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// auditTable is the append-only table protected by the guard
const auditTable = "audit_entries"

// ErrAuditImmutable is returned for UPDATE or DELETE against the audit table
var ErrAuditImmutable = shared.ErrForbidden.WithMessage("Audit entries are append-only")

// RegisterAuditGuard registers callbacks that reject UPDATE and DELETE
// statements against the audit table.
func RegisterAuditGuard(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("audit:guard_update", guardAudit); err != nil {
		return err
	}
	return db.Callback().Delete().Before("gorm:delete").Register("audit:guard_delete", guardAudit)
}

func guardAudit(db *gorm.DB) {
	if db.Statement.Table == auditTable {
		_ = db.AddError(ErrAuditImmutable)
	}
}
