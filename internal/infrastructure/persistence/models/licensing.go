package models

import (
	"fmt"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"gorm.io/datatypes"
)

// LicenseModel is the persistence model for the License aggregate root
type LicenseModel struct {
	AggregateModel
	Key                    string                      `gorm:"type:varchar(19);not null;uniqueIndex"`
	Email                  string                      `gorm:"type:varchar(200);not null;index"`
	Name                   string                      `gorm:"type:varchar(200);not null"`
	Plan                   string                      `gorm:"type:varchar(20);not null;default:'free'"`
	Status                 string                      `gorm:"type:varchar(20);not null;default:'pending';index"`
	Products               datatypes.JSONSlice[string] `gorm:"type:json"`
	LegacyCredential       *string                     `gorm:"type:varchar(128);uniqueIndex"`
	ExternalSubscriptionID string                      `gorm:"type:varchar(100);index"`
	LastUsedAt             *time.Time
	RevokedAt              *time.Time
}

// TableName returns the table name for GORM
func (LicenseModel) TableName() string {
	return "licenses"
}

// ToDomain converts the persistence model to a License aggregate. Unknown
// stored statuses are an error rather than a silent default.
func (m *LicenseModel) ToDomain() (*licensing.License, error) {
	status, err := licensing.ParseLicenseStatus(m.Status)
	if err != nil {
		return nil, fmt.Errorf("license %s: %w", m.Key, err)
	}
	products := make(licensing.ProductSet, 0, len(m.Products))
	for _, p := range m.Products {
		products = products.With(licensing.Product(p))
	}
	l := &licensing.License{
		BaseAggregateRoot:      m.ToDomainAggregateRoot(),
		Key:                    licensing.LicenseKey(m.Key),
		Email:                  m.Email,
		Name:                   m.Name,
		Plan:                   licensing.Plan(m.Plan),
		Status:                 status,
		Products:               products,
		ExternalSubscriptionID: m.ExternalSubscriptionID,
		LastUsedAt:             m.LastUsedAt,
		RevokedAt:              m.RevokedAt,
	}
	if m.LegacyCredential != nil {
		l.LegacyCredential = *m.LegacyCredential
	}
	return l, nil
}

// FromDomain populates the persistence model from a License aggregate
func (m *LicenseModel) FromDomain(l *licensing.License) {
	m.FromDomainAggregateRoot(l.BaseAggregateRoot)
	m.Key = l.Key.String()
	m.Email = l.Email
	m.Name = l.Name
	m.Plan = string(l.Plan)
	m.Status = string(l.Status)
	m.Products = datatypes.JSONSlice[string](l.Products.Strings())
	m.LegacyCredential = nil
	if l.LegacyCredential != "" {
		c := l.LegacyCredential
		m.LegacyCredential = &c
	}
	m.ExternalSubscriptionID = l.ExternalSubscriptionID
	m.LastUsedAt = l.LastUsedAt
	m.RevokedAt = l.RevokedAt
}

// LicenseModelFromDomain creates a persistence model from a License aggregate
func LicenseModelFromDomain(l *licensing.License) *LicenseModel {
	m := &LicenseModel{}
	m.FromDomain(l)
	return m
}

// ProductKeyModel is the persistence model for ProductKey. The partial
// unique index keeps at most one active key per (license, product) while
// allowing any number of inactive ones.
type ProductKeyModel struct {
	BaseModel
	Key        string            `gorm:"type:varchar(128);not null;uniqueIndex"`
	LicenseKey string            `gorm:"type:varchar(19);not null;index:idx_product_keys_license;uniqueIndex:idx_product_keys_one_active,where:status = 'active'"`
	Product    string            `gorm:"type:varchar(32);not null;uniqueIndex:idx_product_keys_one_active,where:status = 'active'"`
	Status     string            `gorm:"type:varchar(16);not null;default:'active';index"`
	Metadata   datatypes.JSONMap `gorm:"type:json"`
	LastUsedAt *time.Time
}

// TableName returns the table name for GORM
func (ProductKeyModel) TableName() string {
	return "product_keys"
}

// ToDomain converts the persistence model to a ProductKey
func (m *ProductKeyModel) ToDomain() (*licensing.ProductKey, error) {
	status, err := licensing.ParseKeyStatus(m.Status)
	if err != nil {
		return nil, err
	}
	metadata := map[string]any{}
	for k, v := range m.Metadata {
		metadata[k] = v
	}
	return &licensing.ProductKey{
		BaseEntity: shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		Key:        m.Key,
		LicenseKey: licensing.LicenseKey(m.LicenseKey),
		Product:    licensing.Product(m.Product),
		Status:     status,
		Metadata:   metadata,
		LastUsedAt: m.LastUsedAt,
	}, nil
}

// FromDomain populates the persistence model from a ProductKey
func (m *ProductKeyModel) FromDomain(k *licensing.ProductKey) {
	m.FromDomainBaseEntity(k.BaseEntity)
	m.Key = k.Key
	m.LicenseKey = k.LicenseKey.String()
	m.Product = string(k.Product)
	m.Status = string(k.Status)
	m.Metadata = datatypes.JSONMap(k.Metadata)
	m.LastUsedAt = k.LastUsedAt
}

// ProductKeyModelFromDomain creates a persistence model from a ProductKey
func ProductKeyModelFromDomain(k *licensing.ProductKey) *ProductKeyModel {
	m := &ProductKeyModel{}
	m.FromDomain(k)
	return m
}
