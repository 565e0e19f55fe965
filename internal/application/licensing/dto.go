package licensing

import (
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
)

// LicenseDTO represents license data returned to callers
type LicenseDTO struct {
	Key                    string     `json:"key"`
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	Plan                   string     `json:"plan"`
	Status                 string     `json:"status"`
	Products               []string   `json:"products"`
	HasLegacyCredential    bool       `json:"has_legacy_credential"`
	ExternalSubscriptionID string     `json:"external_subscription_id,omitempty"`
	LastUsedAt             *time.Time `json:"last_used_at,omitempty"`
	RevokedAt              *time.Time `json:"revoked_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ToLicenseDTO converts a License aggregate to a DTO. The legacy credential
// itself is never exposed.
func ToLicenseDTO(l *licensing.License) LicenseDTO {
	return LicenseDTO{
		Key:                    l.Key.String(),
		Email:                  l.Email,
		Name:                   l.Name,
		Plan:                   string(l.Plan),
		Status:                 string(l.Status),
		Products:               l.Products.Strings(),
		HasLegacyCredential:    l.HasLegacyCredential(),
		ExternalSubscriptionID: l.ExternalSubscriptionID,
		LastUsedAt:             l.LastUsedAt,
		RevokedAt:              l.RevokedAt,
		CreatedAt:              l.CreatedAt,
		UpdatedAt:              l.UpdatedAt,
	}
}

// ProductKeyDTO represents a product key returned to its owner
type ProductKeyDTO struct {
	Key        string         `json:"key"`
	LicenseKey string         `json:"license_key"`
	Product    string         `json:"product"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ToProductKeyDTO converts a ProductKey to a DTO
func ToProductKeyDTO(k *licensing.ProductKey) ProductKeyDTO {
	return ProductKeyDTO{
		Key:        k.Key,
		LicenseKey: k.LicenseKey.String(),
		Product:    string(k.Product),
		Status:     string(k.Status),
		Metadata:   k.Metadata,
		LastUsedAt: k.LastUsedAt,
		CreatedAt:  k.CreatedAt,
	}
}

// ToProductKeyDTOs converts a slice of keys
func ToProductKeyDTOs(keys []licensing.ProductKey) []ProductKeyDTO {
	out := make([]ProductKeyDTO, len(keys))
	for i := range keys {
		out[i] = ToProductKeyDTO(&keys[i])
	}
	return out
}

// MaskKey returns a product key with its random part hidden, for logs and audit payloads
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:6] + "****" + key[len(key)-2:]
}
