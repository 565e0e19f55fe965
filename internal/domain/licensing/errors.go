package licensing

import "github.com/licensehub/backend/internal/domain/shared"

// Licensing errors. Each reuses a shared taxonomy code so callers can test
// with errors.Is against the shared sentinels.
var (
	ErrLicenseNotFound    = shared.ErrNotFound.WithMessage("License not found")
	ErrProductKeyNotFound = shared.ErrNotFound.WithMessage("Product key not found")
	ErrLicenseNotActive   = shared.ErrInvalidState.WithMessage("License is not active")
	ErrKeyNotActive       = shared.ErrInvalidState.WithMessage("Product key is not active")
	ErrProductNotEntitled = shared.ErrInvalidState.WithMessage("License is not entitled to this product")
	ErrTransitionDenied   = shared.ErrInvalidState.WithMessage("License status transition not allowed")
	ErrKeySpaceExhausted  = shared.ErrConflict.WithMessage("Could not generate a unique key within the retry bound")
	ErrLicenseModified    = shared.ErrConflict.WithMessage("License was modified concurrently; reload and retry")
	ErrUnknownProduct     = shared.ErrInvalidInput.WithMessage("Unknown product")
	ErrInvalidLicenseKey  = shared.ErrInvalidInput.WithMessage("License key must be four hyphen-separated groups of four uppercase letters or digits")

	// ErrDuplicateKey is returned by repositories when an insert violates a
	// uniqueness constraint (key value or the single-active-key index).
	ErrDuplicateKey = shared.ErrAlreadyExists.WithMessage("Duplicate key")
)
