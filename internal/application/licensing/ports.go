package licensing

import (
	"context"
	"time"

	appaudit "github.com/licensehub/backend/internal/application/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
)

// AuditTrail receives audit events for privileged actions
type AuditTrail interface {
	Record(ctx context.Context, ev appaudit.Event)
}

// Metrics receives entitlement counters. A nil Metrics is replaced by a no-op.
type Metrics interface {
	KeyIssued(ctx context.Context, product string, created bool)
	KeyCollision(ctx context.Context, product string)
	KeySpaceExhausted(ctx context.Context, product string)
	ResolveDenied(ctx context.Context, reason string)
}

// SessionIssuer mints session tokens on behalf of a license
type SessionIssuer interface {
	IssueImpersonation(master licensing.Actor, target licensing.LicenseKey) (token string, expiresAt time.Time, err error)
}

// SessionRevoker invalidates the outstanding session tokens of a license
type SessionRevoker interface {
	InvalidateLicense(ctx context.Context, key licensing.LicenseKey) error
}

type noopMetrics struct{}

func (noopMetrics) KeyIssued(context.Context, string, bool)   {}
func (noopMetrics) KeyCollision(context.Context, string)      {}
func (noopMetrics) KeySpaceExhausted(context.Context, string) {}
func (noopMetrics) ResolveDenied(context.Context, string)     {}

type noopRevoker struct{}

func (noopRevoker) InvalidateLicense(context.Context, licensing.LicenseKey) error { return nil }
