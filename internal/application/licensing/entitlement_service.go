package licensing

import (
	"context"
	"errors"

	appaudit "github.com/licensehub/backend/internal/application/audit"
	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"github.com/licensehub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// revokeSaveAttempts bounds how often RevokeTenant reloads a license that
// was modified between its read and its write.
const revokeSaveAttempts = 3

// EntitlementService issues, resolves and revokes product keys
type EntitlementService struct {
	licenses    licensing.LicenseRepository
	keys        licensing.ProductKeyRepository
	generator   licensing.KeyGenerator
	audit       AuditTrail
	metrics     Metrics
	revoker     SessionRevoker
	clock       shared.Clock
	maxAttempts int
	logger      *zap.Logger
}

// Option configures the licensing services
type Option func(*options)

type options struct {
	clock       shared.Clock
	maxAttempts int
	metrics     Metrics
	revoker     SessionRevoker
}

func buildOptions(opts []Option) options {
	o := options{
		clock:       shared.SystemClock{},
		maxAttempts: licensing.DefaultMaxAttempts,
		metrics:     noopMetrics{},
		revoker:     noopRevoker{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxAttempts sets the bound of the key generation loop
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(c shared.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithMetrics attaches entitlement metrics
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSessionRevoker invalidates sessions when a license stops being active
func WithSessionRevoker(r SessionRevoker) Option {
	return func(o *options) {
		if r != nil {
			o.revoker = r
		}
	}
}

// NewEntitlementService creates a new entitlement service
func NewEntitlementService(
	licenses licensing.LicenseRepository,
	keys licensing.ProductKeyRepository,
	generator licensing.KeyGenerator,
	trail AuditTrail,
	log *zap.Logger,
	opts ...Option,
) *EntitlementService {
	if log == nil {
		log = zap.NewNop()
	}
	o := buildOptions(opts)
	return &EntitlementService{
		licenses:    licenses,
		keys:        keys,
		generator:   generator,
		audit:       trail,
		metrics:     o.metrics,
		revoker:     o.revoker,
		clock:       o.clock,
		maxAttempts: o.maxAttempts,
		logger:      log,
	}
}

// IssueKey returns the active key for (license, product), creating one if
// none exists. Concurrent callers for the same pair observe the same key.
func (s *EntitlementService) IssueKey(ctx context.Context, actor licensing.Actor, in KeyInput) (pk *licensing.ProductKey, err error) {
	licenseKey, product := in.parse()
	created := false
	defer func() {
		changes := map[string]any{"product": string(product), "created": created}
		if pk != nil {
			changes["key"] = MaskKey(pk.Key)
		}
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionGenerate,
			Actor:      actor,
			LicenseKey: licenseKey.String(),
			Resource:   string(product),
			Changes:    changes,
			Err:        err,
		})
	}()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := authorize(actor, licenseKey); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "entitlement", "issue_key",
		telemetry.WithAttribute(telemetry.SpanAttrLicenseKey, licenseKey.String()),
		telemetry.WithAttribute(telemetry.SpanAttrProduct, string(product)))
	defer func() {
		telemetry.SetAttributes(span, telemetry.SpanAttrCreated, created)
		telemetry.RecordError(span, err)
		span.End()
	}()

	license, err := s.requireIssuable(ctx, licenseKey, product)
	if err != nil {
		return nil, err
	}

	pk, created, err = s.issue(ctx, s.keys, license, product)
	return pk, err
}

// requireIssuable loads the license and checks it may hold a key for product
func (s *EntitlementService) requireIssuable(ctx context.Context, key licensing.LicenseKey, product licensing.Product) (*licensing.License, error) {
	license, err := s.licenses.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	switch license.Status {
	case licensing.LicenseStatusActive:
	case licensing.LicenseStatusPending, licensing.LicenseStatusSuspended,
		licensing.LicenseStatusExpired, licensing.LicenseStatusRevoked:
		return nil, ErrLicenseState(license.Status)
	default:
		return nil, shared.ErrInvalidState.WithMessage("License has unrecognised status " + string(license.Status))
	}
	if !license.IsEntitledTo(product) {
		return nil, licensing.ErrProductNotEntitled
	}
	return license, nil
}

// ErrLicenseState returns the InvalidState error for a license in status
func ErrLicenseState(status licensing.LicenseStatus) error {
	return licensing.ErrLicenseNotActive.WithMessage("License is " + string(status))
}

// issue implements check-before-create with a bounded generation loop. A
// unique violation on insert means either another caller created the active
// key for this pair first, or the candidate value collided; the first case
// is resolved by re-reading, the second by retrying.
func (s *EntitlementService) issue(ctx context.Context, keys licensing.ProductKeyRepository, license *licensing.License, product licensing.Product) (*licensing.ProductKey, bool, error) {
	existing, err := keys.FindActive(ctx, license.Key, product)
	if err == nil {
		s.metrics.KeyIssued(ctx, string(product), false)
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate, err := s.generator.ProductKey(product)
		if err != nil {
			return nil, false, err
		}

		taken, err := keys.ExistsByKey(ctx, candidate)
		if err != nil {
			return nil, false, err
		}
		if taken {
			s.metrics.KeyCollision(ctx, string(product))
			s.log(ctx).Warn("Product key candidate collided",
				zap.String("product", string(product)),
				zap.Int("attempt", attempt))
			continue
		}

		pk := licensing.NewProductKey(candidate, license.Key, product, s.clock.Now())
		err = keys.Create(ctx, pk)
		if err == nil {
			s.metrics.KeyIssued(ctx, string(product), true)
			s.log(ctx).Info("Product key issued",
				zap.String("license_key", license.Key.String()),
				zap.String("product", string(product)),
				zap.String("key", MaskKey(pk.Key)))
			return pk, true, nil
		}
		if !errors.Is(err, licensing.ErrDuplicateKey) {
			return nil, false, err
		}

		existing, err := keys.FindActive(ctx, license.Key, product)
		if err == nil {
			s.metrics.KeyIssued(ctx, string(product), false)
			return existing, false, nil
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, false, err
		}
		s.metrics.KeyCollision(ctx, string(product))
	}

	s.metrics.KeySpaceExhausted(ctx, string(product))
	s.log(ctx).Error("Product key generation exhausted its retry bound",
		zap.String("license_key", license.Key.String()),
		zap.String("product", string(product)),
		zap.Int("max_attempts", s.maxAttempts))
	return nil, false, licensing.ErrKeySpaceExhausted
}

// ResolveKey looks up the owner of a raw product key. It fails closed: unless
// both the key and its license are active the error is NotFound, with the
// resolution still populated for callers that need the detail.
func (s *EntitlementService) ResolveKey(ctx context.Context, rawKey string) (res licensing.Resolution, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "entitlement", "resolve_key",
		telemetry.WithAttribute(telemetry.SpanAttrKeyMasked, MaskKey(rawKey)))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	if rawKey == "" || len(rawKey) > 128 {
		s.metrics.ResolveDenied(ctx, "malformed")
		return licensing.Resolution{}, licensing.ErrProductKeyNotFound
	}

	pk, err := s.keys.FindByKey(ctx, rawKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.ResolveDenied(ctx, "unknown_key")
		}
		return licensing.Resolution{}, err
	}

	license, err := s.licenses.FindByKey(ctx, pk.LicenseKey)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.metrics.ResolveDenied(ctx, "unknown_license")
			return licensing.Resolution{}, licensing.ErrProductKeyNotFound
		}
		return licensing.Resolution{}, err
	}

	res = licensing.Resolution{
		LicenseKey: license.Key,
		Product:    pk.Product,
		KeyStatus:  pk.Status,
		License:    license.Status,
		Plan:       license.Plan,
	}
	if !res.Usable() {
		reason := "key_inactive"
		if res.KeyStatus == licensing.KeyStatusActive {
			reason = "license_" + string(license.Status)
		}
		s.metrics.ResolveDenied(ctx, reason)
		s.log(ctx).Debug("Product key resolved to an unusable credential",
			zap.String("license_key", license.Key.String()),
			zap.String("reason", reason))
		return res, licensing.ErrProductKeyNotFound
	}

	now := s.clock.Now()
	if err := s.keys.TouchLastUsed(ctx, pk.Key, now); err != nil {
		s.log(ctx).Warn("Failed to touch product key last_used_at", zap.Error(err))
	}
	if err := s.licenses.TouchLastUsed(ctx, license.Key, now); err != nil {
		s.log(ctx).Warn("Failed to touch license last_used_at", zap.Error(err))
	}
	return res, nil
}

// ValidateKey resolves a key on behalf of a product instance and audits the attempt
func (s *EntitlementService) ValidateKey(ctx context.Context, rawKey, ip string) (licensing.Resolution, error) {
	res, err := s.ResolveKey(ctx, rawKey)
	s.audit.Record(ctx, appaudit.Event{
		Action:     audit.ActionValidate,
		Actor:      licensing.Actor{ActorID: "product:" + MaskKey(rawKey), IP: ip},
		LicenseKey: res.LicenseKey.String(),
		Resource:   MaskKey(rawKey),
		Changes:    map[string]any{"product": string(res.Product)},
		Err:        err,
	})
	return res, err
}

// RevokeKey deactivates every key of (license, product) and returns how many changed
func (s *EntitlementService) RevokeKey(ctx context.Context, actor licensing.Actor, in KeyInput) (int64, error) {
	return s.revoke(ctx, actor, in, audit.ActionRevoke)
}

// ResetProduct is the owner-facing reset of a product's configuration. It
// deactivates the product's keys and is audited as a reset.
func (s *EntitlementService) ResetProduct(ctx context.Context, actor licensing.Actor, in KeyInput) (int64, error) {
	return s.revoke(ctx, actor, in, audit.ActionReset)
}

func (s *EntitlementService) revoke(ctx context.Context, actor licensing.Actor, in KeyInput, action audit.Action) (count int64, err error) {
	licenseKey, product := in.parse()
	var before []map[string]any
	defer func() {
		s.audit.Record(ctx, appaudit.Event{
			Action:     action,
			Actor:      actor,
			LicenseKey: licenseKey.String(),
			Resource:   string(product),
			Changes:    map[string]any{"product": string(product), "before": before, "deactivated": count},
			Err:        err,
		})
	}()

	if err := validateInput(in); err != nil {
		return 0, err
	}
	if err := authorize(actor, licenseKey); err != nil {
		return 0, err
	}

	if _, err := s.licenses.FindByKey(ctx, licenseKey); err != nil {
		return 0, err
	}

	existing, err := s.keys.ListByLicenseProduct(ctx, licenseKey, product)
	if err != nil {
		return 0, err
	}
	for i := range existing {
		before = append(before, map[string]any{
			"key":    MaskKey(existing[i].Key),
			"status": string(existing[i].Status),
		})
	}

	count, err = s.keys.DeactivateAll(ctx, licenseKey, product, s.clock.Now())
	if err != nil {
		return 0, err
	}
	s.log(ctx).Info("Product keys deactivated",
		zap.String("license_key", licenseKey.String()),
		zap.String("product", string(product)),
		zap.Int64("count", count))
	return count, nil
}

// RegenerateKey replaces the active key of (license, product) with a new one.
// Deactivation and issuance share one transaction, so a failed issuance
// leaves the previous key active.
func (s *EntitlementService) RegenerateKey(ctx context.Context, actor licensing.Actor, in KeyInput) (pk *licensing.ProductKey, err error) {
	licenseKey, product := in.parse()
	var previous []string
	defer func() {
		changes := map[string]any{"product": string(product), "previous": previous}
		if pk != nil {
			changes["key"] = MaskKey(pk.Key)
		}
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionRegenerate,
			Actor:      actor,
			LicenseKey: licenseKey.String(),
			Resource:   string(product),
			Changes:    changes,
			Err:        err,
		})
	}()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if err := authorize(actor, licenseKey); err != nil {
		return nil, err
	}

	license, err := s.requireIssuable(ctx, licenseKey, product)
	if err != nil {
		return nil, err
	}

	err = s.keys.WithinTx(ctx, func(keys licensing.ProductKeyRepository) error {
		old, err := keys.ActiveKeyValues(ctx, licenseKey, &product)
		if err != nil {
			return err
		}
		for _, k := range old {
			previous = append(previous, MaskKey(k))
		}
		if _, err := keys.DeactivateAll(ctx, licenseKey, product, s.clock.Now()); err != nil {
			return err
		}
		pk, _, err = s.issue(ctx, keys, license, product)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pk, nil
}

// RevokeTenant permanently revokes a license. Revoking a revoked license
// succeeds without change. Keys keep their stored status; resolution
// rejects them through the license status.
func (s *EntitlementService) RevokeTenant(ctx context.Context, actor licensing.Actor, licenseKey string) (err error) {
	key, parseErr := licensing.ParseLicenseKey(licenseKey)
	var previous licensing.LicenseStatus
	changed := false
	defer func() {
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionRevoke,
			Actor:      actor,
			LicenseKey: key.String(),
			Resource:   key.String(),
			Changes:    map[string]any{"from": string(previous), "to": string(licensing.LicenseStatusRevoked), "changed": changed},
			Err:        err,
		})
	}()

	if parseErr != nil {
		return parseErr
	}
	if !actor.IsMaster {
		return shared.ErrForbidden.WithMessage("Only the master license may revoke licenses")
	}

	// A concurrent writer may bump the version between load and save; the
	// revocation is retried against the fresh copy.
	for attempt := 1; ; attempt++ {
		license, err := s.licenses.FindByKey(ctx, key)
		if err != nil {
			return err
		}
		previous = license.Status

		changed, err = license.Revoke(s.clock.Now())
		if err != nil || !changed {
			return err
		}
		err = s.licenses.Save(ctx, license)
		if err == nil {
			break
		}
		changed = false
		if !errors.Is(err, shared.ErrConflict) || attempt == revokeSaveAttempts {
			return err
		}
	}

	s.log(ctx).Info("License revoked", zap.String("license_key", key.String()), zap.String("from", string(previous)))
	if rerr := s.revoker.InvalidateLicense(ctx, key); rerr != nil {
		s.log(ctx).Warn("Failed to invalidate sessions of revoked license", zap.String("license_key", key.String()), zap.Error(rerr))
	}
	return nil
}

// ListKeys returns every key of a license, active and inactive
func (s *EntitlementService) ListKeys(ctx context.Context, actor licensing.Actor, licenseKey string) ([]licensing.ProductKey, error) {
	key, err := licensing.ParseLicenseKey(licenseKey)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, key); err != nil {
		return nil, err
	}
	if _, err := s.licenses.FindByKey(ctx, key); err != nil {
		return nil, err
	}
	return s.keys.ListByLicense(ctx, key)
}

func (s *EntitlementService) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, s.logger)
}

// authorize allows the owning license and the master license
func authorize(actor licensing.Actor, target licensing.LicenseKey) error {
	if actor.IsMaster || actor.LicenseKey == target {
		return nil
	}
	return shared.ErrForbidden.WithMessage("Actor does not own this license")
}
