package licensing

import (
	"time"

	"github.com/google/uuid"
	"github.com/licensehub/backend/internal/domain/shared"
)

// ProductKey is an opaque credential authenticating one product integration
// on behalf of a license. Keys are deactivated, never deleted or transferred.
type ProductKey struct {
	shared.BaseEntity
	Key        string
	LicenseKey LicenseKey
	Product    Product
	Status     KeyStatus
	Metadata   map[string]any
	LastUsedAt *time.Time
}

// NewProductKey creates an active key
func NewProductKey(value string, license LicenseKey, product Product, now time.Time) *ProductKey {
	return &ProductKey{
		BaseEntity: shared.BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Key:        value,
		LicenseKey: license,
		Product:    product,
		Status:     KeyStatusActive,
		Metadata:   map[string]any{},
	}
}

// IsActive returns true if the key itself is active
func (k *ProductKey) IsActive() bool {
	return k.Status == KeyStatusActive
}

// Deactivate marks the key inactive
func (k *ProductKey) Deactivate(now time.Time) {
	k.Status = KeyStatusInactive
	k.Touch(now)
}

// Resolution is the outcome of resolving a raw product key
type Resolution struct {
	LicenseKey LicenseKey    `json:"license_key"`
	Product    Product       `json:"product"`
	KeyStatus  KeyStatus     `json:"key_status"`
	License    LicenseStatus `json:"license_status"`
	Plan       Plan          `json:"plan"`
}

// Usable reports whether both the key and its owning license are active
func (r Resolution) Usable() bool {
	return r.KeyStatus == KeyStatusActive && r.License == LicenseStatusActive
}
