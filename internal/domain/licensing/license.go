package licensing

import (
	"regexp"
	"strings"
	"time"

	"github.com/licensehub/backend/internal/domain/shared"
)

var licenseKeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// LicenseKey is the stable, human-readable identity of a tenant
type LicenseKey string

// ParseLicenseKey normalises and validates a license key
func ParseLicenseKey(s string) (LicenseKey, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !licenseKeyPattern.MatchString(s) {
		return "", ErrInvalidLicenseKey
	}
	return LicenseKey(s), nil
}

func (k LicenseKey) String() string {
	return string(k)
}

// License is the tenant aggregate root. The key is immutable once issued and
// is never reassigned, even after revocation.
type License struct {
	shared.BaseAggregateRoot
	Key                    LicenseKey
	Email                  string
	Name                   string
	Plan                   Plan
	Status                 LicenseStatus
	Products               ProductSet
	LegacyCredential       string // pre product-key single credential, kept for data continuity
	ExternalSubscriptionID string
	LastUsedAt             *time.Time
	RevokedAt              *time.Time
}

// NewLicense creates a pending license
func NewLicense(key LicenseKey, email, name string, plan Plan, products ProductSet, now time.Time) (*License, error) {
	if !licenseKeyPattern.MatchString(string(key)) {
		return nil, ErrInvalidLicenseKey
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, shared.ErrInvalidInput.WithMessage("Email cannot be empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.ErrInvalidInput.WithMessage("Name cannot be empty")
	}
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, err
	}
	return &License{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Key:               key,
		Email:             strings.ToLower(email),
		Name:              name,
		Plan:              plan,
		Status:            LicenseStatusPending,
		Products:          products,
	}, nil
}

// IsActive returns true if the license may use its products
func (l *License) IsActive() bool {
	return l.Status == LicenseStatusActive
}

// IsRevoked returns true if the license has been permanently revoked
func (l *License) IsRevoked() bool {
	return l.Status == LicenseStatusRevoked
}

// IsEntitledTo reports whether the product is in the license's enabled set
func (l *License) IsEntitledTo(p Product) bool {
	return l.Products.Contains(p)
}

// HasLegacyCredential reports whether a pre product-key credential is recorded
func (l *License) HasLegacyCredential() bool {
	return l.LegacyCredential != ""
}

// TransitionTo moves the license to next, enforcing the lifecycle.
func (l *License) TransitionTo(next LicenseStatus, now time.Time) error {
	if !next.IsValid() {
		return shared.ErrInvalidInput.WithMessage("Unknown license status: " + string(next))
	}
	if !l.Status.CanTransitionTo(next) {
		return ErrTransitionDenied.WithMessage(
			"Cannot move license from " + string(l.Status) + " to " + string(next))
	}
	l.Status = next
	if next == LicenseStatusRevoked {
		l.RevokedAt = &now
	}
	l.Touch(now)
	l.IncrementVersion()
	return nil
}

// Activate moves a pending or suspended license to active
func (l *License) Activate(now time.Time) error {
	return l.TransitionTo(LicenseStatusActive, now)
}

// Suspend moves an active license to suspended
func (l *License) Suspend(now time.Time) error {
	return l.TransitionTo(LicenseStatusSuspended, now)
}

// Expire marks the license as expired
func (l *License) Expire(now time.Time) error {
	return l.TransitionTo(LicenseStatusExpired, now)
}

// Revoke permanently revokes the license. Revoking an already revoked
// license is a no-op and reports changed=false.
func (l *License) Revoke(now time.Time) (changed bool, err error) {
	if l.IsRevoked() {
		return false, nil
	}
	if err := l.TransitionTo(LicenseStatusRevoked, now); err != nil {
		return false, err
	}
	return true, nil
}

// EnableProduct adds p to the entitled set
func (l *License) EnableProduct(p Product, now time.Time) error {
	if l.IsRevoked() {
		return ErrLicenseNotActive.WithMessage("Cannot change products of a revoked license")
	}
	if l.Products.Contains(p) {
		return nil
	}
	l.Products = l.Products.With(p)
	l.Touch(now)
	l.IncrementVersion()
	return nil
}

// DisableProduct removes p from the entitled set. Existing keys are left for
// the caller to revoke.
func (l *License) DisableProduct(p Product, now time.Time) error {
	if l.IsRevoked() {
		return ErrLicenseNotActive.WithMessage("Cannot change products of a revoked license")
	}
	if !l.Products.Contains(p) {
		return nil
	}
	l.Products = l.Products.Without(p)
	l.Touch(now)
	l.IncrementVersion()
	return nil
}

// AttachSubscription records the external billing subscription id
func (l *License) AttachSubscription(id string, now time.Time) {
	l.ExternalSubscriptionID = strings.TrimSpace(id)
	l.Touch(now)
}
