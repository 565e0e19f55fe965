package licensing

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/shared"
)

// LicenseFilter narrows license listings
type LicenseFilter struct {
	shared.Filter
	Status  LicenseStatus
	Plan    Plan
	Product Product
}

// LicenseRepository persists License aggregates
type LicenseRepository interface {
	FindByKey(ctx context.Context, key LicenseKey) (*License, error)
	ExistsByKey(ctx context.Context, key LicenseKey) (bool, error)
	// Create inserts a new license, returning ErrDuplicateKey if the key is taken
	Create(ctx context.Context, license *License) error
	Save(ctx context.Context, license *License) error
	List(ctx context.Context, filter LicenseFilter) ([]License, int64, error)
	// ListWithLegacyCredential pages through licenses carrying a legacy credential,
	// ordered by key and starting after the given key.
	ListWithLegacyCredential(ctx context.Context, after LicenseKey, limit int) ([]License, error)
	TouchLastUsed(ctx context.Context, key LicenseKey, at time.Time) error
}

// ProductKeyRepository persists ProductKey records
type ProductKeyRepository interface {
	FindByKey(ctx context.Context, value string) (*ProductKey, error)
	ExistsByKey(ctx context.Context, value string) (bool, error)
	// FindActive returns the active key for (license, product) or ErrProductKeyNotFound
	FindActive(ctx context.Context, license LicenseKey, product Product) (*ProductKey, error)
	ListByLicense(ctx context.Context, license LicenseKey) ([]ProductKey, error)
	ListByLicenseProduct(ctx context.Context, license LicenseKey, product Product) ([]ProductKey, error)
	// ActiveKeyValues returns the values of the license's active keys, optionally
	// limited to one product.
	ActiveKeyValues(ctx context.Context, license LicenseKey, product *Product) ([]string, error)
	// Create inserts a key, returning ErrDuplicateKey when either the key value or
	// the single-active-key-per-(license, product) constraint is violated.
	Create(ctx context.Context, key *ProductKey) error
	// CreateForLicense inserts key and saves license in one transaction
	CreateForLicense(ctx context.Context, key *ProductKey, license *License) error
	// DeactivateAll sets every active key of (license, product) inactive in a
	// single statement and returns the number of rows changed.
	DeactivateAll(ctx context.Context, license LicenseKey, product Product, at time.Time) (int64, error)
	TouchLastUsed(ctx context.Context, value string, at time.Time) error
	// WithinTx runs fn against a repository bound to a single transaction,
	// committing when fn returns nil and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(keys ProductKeyRepository) error) error
}
