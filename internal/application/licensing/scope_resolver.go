package licensing

import (
	"context"
	"errors"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ScopeResolver builds the read scope of an actor over product-key
// attributed data
type ScopeResolver struct {
	licenses      licensing.LicenseRepository
	keys          licensing.ProductKeyRepository
	legacyProduct licensing.Product
	logger        *zap.Logger
}

// NewScopeResolver creates a scope resolver. legacyProduct is the product the
// pre product-key credential belonged to.
func NewScopeResolver(
	licenses licensing.LicenseRepository,
	keys licensing.ProductKeyRepository,
	legacyProduct licensing.Product,
	log *zap.Logger,
) *ScopeResolver {
	if log == nil {
		log = zap.NewNop()
	}
	if legacyProduct == "" {
		legacyProduct = licensing.ProductChatbot
	}
	return &ScopeResolver{
		licenses:      licenses,
		keys:          keys,
		legacyProduct: legacyProduct,
		logger:        log,
	}
}

// ScopeFilter returns the scope for actor, optionally narrowed to product.
//
// The master license is unrestricted. Everyone else sees rows attributed to
// their active product keys, plus their legacy credential while it has not
// been migrated. An actor owning no keys gets an empty scope; store failures
// are returned, never widened into an unscoped read.
func (r *ScopeResolver) ScopeFilter(ctx context.Context, actor licensing.Actor, product *licensing.Product) (licensing.Scope, error) {
	if actor.IsMaster {
		return licensing.MatchAll(), nil
	}
	if actor.LicenseKey == "" {
		return licensing.MatchNothing(), nil
	}

	license, err := r.licenses.FindByKey(ctx, actor.LicenseKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			logger.WithLogger(ctx, r.logger).Warn("Scope requested for unknown license",
				zap.String("license_key", actor.LicenseKey.String()))
			return licensing.MatchNothing(), nil
		}
		return licensing.MatchNothing(), err
	}
	if license.IsRevoked() {
		return licensing.MatchNothing(), nil
	}

	values, err := r.keys.ActiveKeyValues(ctx, license.Key, product)
	if err != nil {
		return licensing.MatchNothing(), err
	}

	if license.HasLegacyCredential() && (product == nil || *product == r.legacyProduct) {
		migrated, err := r.keys.ExistsByKey(ctx, license.LegacyCredential)
		if err != nil {
			return licensing.MatchNothing(), err
		}
		if !migrated {
			values = append(values, license.LegacyCredential)
		}
	}

	return licensing.MatchKeys(values...), nil
}
