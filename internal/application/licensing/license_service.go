package licensing

import (
	"context"
	"errors"
	"strings"
	"time"

	appaudit "github.com/licensehub/backend/internal/application/audit"
	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LicenseService handles administrative license provisioning and lifecycle
type LicenseService struct {
	licenses    licensing.LicenseRepository
	keys        licensing.ProductKeyRepository
	generator   licensing.KeyGenerator
	sessions    SessionIssuer
	revoker     SessionRevoker
	audit       AuditTrail
	clock       shared.Clock
	maxAttempts int
	logger      *zap.Logger
}

// NewLicenseService creates a new license service
func NewLicenseService(
	licenses licensing.LicenseRepository,
	keys licensing.ProductKeyRepository,
	generator licensing.KeyGenerator,
	sessions SessionIssuer,
	trail AuditTrail,
	log *zap.Logger,
	opts ...Option,
) *LicenseService {
	if log == nil {
		log = zap.NewNop()
	}
	o := buildOptions(opts)
	return &LicenseService{
		licenses:    licenses,
		keys:        keys,
		generator:   generator,
		sessions:    sessions,
		revoker:     o.revoker,
		audit:       trail,
		clock:       o.clock,
		maxAttempts: o.maxAttempts,
		logger:      log,
	}
}

// Provision creates a license with a freshly generated key
func (s *LicenseService) Provision(ctx context.Context, actor licensing.Actor, in ProvisionLicenseInput) (license *licensing.License, err error) {
	defer func() {
		key := ""
		if license != nil {
			key = license.Key.String()
		}
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionProvision,
			Actor:      actor,
			LicenseKey: key,
			Resource:   key,
			Changes: map[string]any{
				"email":    strings.ToLower(in.Email),
				"plan":     in.Plan,
				"products": in.Products,
				"activate": in.Activate,
			},
			Err: err,
		})
	}()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if !actor.IsMaster {
		return nil, shared.ErrForbidden.WithMessage("Only the master license may provision licenses")
	}

	products, err := licensing.NewProductSet(in.Products)
	if err != nil {
		return nil, err
	}

	if in.LegacyCredential != "" {
		taken, err := s.keys.ExistsByKey(ctx, in.LegacyCredential)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, shared.ErrAlreadyExists.WithMessage("Legacy credential is already in use")
		}
	}

	now := s.clock.Now()
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		key, err := s.generator.LicenseKey()
		if err != nil {
			return nil, err
		}
		exists, err := s.licenses.ExistsByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		candidate, err := licensing.NewLicense(key, in.Email, in.Name, licensing.Plan(in.Plan), products, now)
		if err != nil {
			return nil, err
		}
		candidate.LegacyCredential = in.LegacyCredential
		if in.ExternalSubscriptionID != "" {
			candidate.AttachSubscription(in.ExternalSubscriptionID, now)
		}
		if in.Activate {
			if err := candidate.Activate(now); err != nil {
				return nil, err
			}
		}

		err = s.licenses.Create(ctx, candidate)
		if err == nil {
			s.log(ctx).Info("License provisioned",
				zap.String("license_key", candidate.Key.String()),
				zap.String("plan", in.Plan))
			return candidate, nil
		}
		if !errors.Is(err, licensing.ErrDuplicateKey) {
			return nil, err
		}
	}

	s.log(ctx).Error("License key generation exhausted its retry bound", zap.Int("max_attempts", s.maxAttempts))
	return nil, licensing.ErrKeySpaceExhausted
}

// Get returns a license visible to actor
func (s *LicenseService) Get(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error) {
	key, err := licensing.ParseLicenseKey(licenseKey)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, key); err != nil {
		return nil, err
	}
	return s.licenses.FindByKey(ctx, key)
}

// List returns a page of licenses. Master only.
func (s *LicenseService) List(ctx context.Context, actor licensing.Actor, in ListLicensesInput) (shared.Paginated[licensing.License], error) {
	if err := validateInput(in); err != nil {
		return shared.Paginated[licensing.License]{}, err
	}
	if !actor.IsMaster {
		return shared.Paginated[licensing.License]{}, shared.ErrForbidden.WithMessage("Only the master license may list licenses")
	}

	filter := licensing.LicenseFilter{
		Filter:  shared.DefaultFilter(),
		Status:  licensing.LicenseStatus(in.Status),
		Plan:    licensing.Plan(in.Plan),
		Product: licensing.Product(in.Product),
	}
	if in.Page > 0 {
		filter.Page = in.Page
	}
	if in.PageSize > 0 {
		filter.PageSize = in.PageSize
	}
	filter.Search = in.Search

	items, total, err := s.licenses.List(ctx, filter)
	if err != nil {
		return shared.Paginated[licensing.License]{}, err
	}
	return shared.NewPaginated(items, total, filter.Page, filter.Limit()), nil
}

// Activate moves a license to active
func (s *LicenseService) Activate(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error) {
	return s.transition(ctx, actor, licenseKey, licensing.LicenseStatusActive)
}

// Suspend moves a license to suspended
func (s *LicenseService) Suspend(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error) {
	return s.transition(ctx, actor, licenseKey, licensing.LicenseStatusSuspended)
}

// Expire moves a license to expired
func (s *LicenseService) Expire(ctx context.Context, actor licensing.Actor, licenseKey string) (*licensing.License, error) {
	return s.transition(ctx, actor, licenseKey, licensing.LicenseStatusExpired)
}

func (s *LicenseService) transition(ctx context.Context, actor licensing.Actor, licenseKey string, next licensing.LicenseStatus) (license *licensing.License, err error) {
	key, parseErr := licensing.ParseLicenseKey(licenseKey)
	var from licensing.LicenseStatus
	defer func() {
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionStatus,
			Actor:      actor,
			LicenseKey: key.String(),
			Resource:   key.String(),
			Changes:    map[string]any{"from": string(from), "to": string(next)},
			Err:        err,
		})
	}()

	if parseErr != nil {
		return nil, parseErr
	}
	if !actor.IsMaster {
		return nil, shared.ErrForbidden.WithMessage("Only the master license may change license status")
	}

	license, err = s.licenses.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	from = license.Status
	if from == next {
		return license, nil
	}
	if err := license.TransitionTo(next, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.licenses.Save(ctx, license); err != nil {
		return nil, err
	}
	if !license.IsActive() {
		if rerr := s.revoker.InvalidateLicense(ctx, key); rerr != nil {
			s.log(ctx).Warn("Failed to invalidate sessions", zap.String("license_key", key.String()), zap.Error(rerr))
		}
	}
	return license, nil
}

// SetProducts enables and disables products for a license. Disabling a
// product deactivates its keys.
func (s *LicenseService) SetProducts(ctx context.Context, actor licensing.Actor, licenseKey string, enable, disable []string) (license *licensing.License, err error) {
	key, parseErr := licensing.ParseLicenseKey(licenseKey)
	var before []string
	defer func() {
		changes := map[string]any{"before": before, "enable": enable, "disable": disable}
		if license != nil {
			changes["after"] = license.Products.Strings()
		}
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionProducts,
			Actor:      actor,
			LicenseKey: key.String(),
			Resource:   key.String(),
			Changes:    changes,
			Err:        err,
		})
	}()

	if parseErr != nil {
		return nil, parseErr
	}
	if !actor.IsMaster {
		return nil, shared.ErrForbidden.WithMessage("Only the master license may change products")
	}
	toEnable, err := licensing.NewProductSet(enable)
	if err != nil {
		return nil, err
	}
	toDisable, err := licensing.NewProductSet(disable)
	if err != nil {
		return nil, err
	}

	license, err = s.licenses.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	before = license.Products.Strings()

	now := s.clock.Now()
	for _, p := range toEnable {
		if err := license.EnableProduct(p, now); err != nil {
			return nil, err
		}
	}
	for _, p := range toDisable {
		if err := license.DisableProduct(p, now); err != nil {
			return nil, err
		}
	}
	if err := s.licenses.Save(ctx, license); err != nil {
		return nil, err
	}
	for _, p := range toDisable {
		if _, err := s.keys.DeactivateAll(ctx, key, p, now); err != nil {
			return nil, err
		}
	}
	return license, nil
}

// ImpersonationSession is a short-lived session minted for another license
type ImpersonationSession struct {
	Token      string    `json:"token"`
	LicenseKey string    `json:"license_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Impersonate mints a session acting as target. The attempt is audited
// whether or not it succeeds.
func (s *LicenseService) Impersonate(ctx context.Context, actor licensing.Actor, licenseKey string) (session *ImpersonationSession, err error) {
	defer func() {
		s.audit.Record(ctx, appaudit.Event{
			Action:     audit.ActionImpersonate,
			Actor:      actor,
			LicenseKey: strings.ToUpper(strings.TrimSpace(licenseKey)),
			Resource:   strings.ToUpper(strings.TrimSpace(licenseKey)),
			Changes:    map[string]any{"master": actor.LicenseKey.String()},
			Err:        err,
		})
	}()

	if !actor.IsMaster {
		return nil, shared.ErrForbidden.WithMessage("Only the master license may impersonate")
	}
	key, err := licensing.ParseLicenseKey(licenseKey)
	if err != nil {
		return nil, err
	}
	license, err := s.licenses.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if license.IsRevoked() {
		return nil, ErrLicenseState(license.Status)
	}

	token, expiresAt, err := s.sessions.IssueImpersonation(actor, license.Key)
	if err != nil {
		return nil, err
	}
	s.log(ctx).Warn("Impersonation session issued",
		zap.String("target", license.Key.String()),
		zap.String("master_actor", actor.ActorID))
	return &ImpersonationSession{Token: token, LicenseKey: license.Key.String(), ExpiresAt: expiresAt}, nil
}

func (s *LicenseService) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, s.logger)
}
