package licensing

import (
	"github.com/licensehub/backend/internal/domain/shared"
)

// LicenseStatus is the lifecycle state of a license
type LicenseStatus string

const (
	LicenseStatusPending   LicenseStatus = "pending"
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusRevoked   LicenseStatus = "revoked" // terminal
)

// AllLicenseStatuses lists every recognised license status
var AllLicenseStatuses = []LicenseStatus{
	LicenseStatusPending,
	LicenseStatusActive,
	LicenseStatusSuspended,
	LicenseStatusExpired,
	LicenseStatusRevoked,
}

// ParseLicenseStatus converts a stored string into a LicenseStatus.
// Unknown values are rejected rather than treated as any particular state.
func ParseLicenseStatus(s string) (LicenseStatus, error) {
	switch LicenseStatus(s) {
	case LicenseStatusPending, LicenseStatusActive, LicenseStatusSuspended,
		LicenseStatusExpired, LicenseStatusRevoked:
		return LicenseStatus(s), nil
	default:
		return "", shared.ErrInvalidInput.WithMessage("Unknown license status: " + s)
	}
}

// IsValid returns true if the status is a recognised value
func (s LicenseStatus) IsValid() bool {
	_, err := ParseLicenseStatus(string(s))
	return err == nil
}

// IsTerminal reports whether no further transitions are permitted
func (s LicenseStatus) IsTerminal() bool {
	return s == LicenseStatusRevoked
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
//
//	pending   -> active, revoked
//	active    -> suspended, expired, revoked
//	suspended -> active, expired, revoked
//	expired   -> revoked
//	revoked   -> (none)
func (s LicenseStatus) CanTransitionTo(next LicenseStatus) bool {
	switch s {
	case LicenseStatusPending:
		return next == LicenseStatusActive || next == LicenseStatusRevoked
	case LicenseStatusActive:
		return next == LicenseStatusSuspended || next == LicenseStatusExpired || next == LicenseStatusRevoked
	case LicenseStatusSuspended:
		return next == LicenseStatusActive || next == LicenseStatusExpired || next == LicenseStatusRevoked
	case LicenseStatusExpired:
		return next == LicenseStatusRevoked
	case LicenseStatusRevoked:
		return false
	default:
		return false
	}
}

// KeyStatus is the state of a single product key
type KeyStatus string

const (
	KeyStatusActive   KeyStatus = "active"
	KeyStatusInactive KeyStatus = "inactive"
)

// ParseKeyStatus converts a stored string into a KeyStatus
func ParseKeyStatus(s string) (KeyStatus, error) {
	switch KeyStatus(s) {
	case KeyStatusActive, KeyStatusInactive:
		return KeyStatus(s), nil
	default:
		return "", shared.ErrInvalidInput.WithMessage("Unknown product key status: " + s)
	}
}

// Plan is the subscription tier of a license
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// ParsePlan converts a string into a Plan
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanFree, PlanStarter, PlanPro, PlanEnterprise:
		return Plan(s), nil
	default:
		return "", shared.ErrInvalidInput.WithMessage("Unknown plan: " + s)
	}
}
