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

const defaultMigrationBatchSize = 200

// MigrationFailure describes one license that could not be migrated
type MigrationFailure struct {
	LicenseKey string `json:"license_key"`
	Reason     string `json:"reason"`
}

// MigrationReport summarises a legacy credential migration run
type MigrationReport struct {
	Migrated int                `json:"migrated"`
	Skipped  int                `json:"skipped"`
	Failures []MigrationFailure `json:"failures,omitempty"`
}

// MigrationService back-fills product keys from legacy single credentials
type MigrationService struct {
	licenses      licensing.LicenseRepository
	keys          licensing.ProductKeyRepository
	audit         AuditTrail
	clock         shared.Clock
	legacyProduct licensing.Product
	batchSize     int
	logger        *zap.Logger
}

// NewMigrationService creates a migration service
func NewMigrationService(
	licenses licensing.LicenseRepository,
	keys licensing.ProductKeyRepository,
	trail AuditTrail,
	legacyProduct licensing.Product,
	log *zap.Logger,
	opts ...Option,
) *MigrationService {
	if log == nil {
		log = zap.NewNop()
	}
	if legacyProduct == "" {
		legacyProduct = licensing.ProductChatbot
	}
	return &MigrationService{
		licenses:      licenses,
		keys:          keys,
		audit:         trail,
		clock:         buildOptions(opts).clock,
		legacyProduct: legacyProduct,
		batchSize:     defaultMigrationBatchSize,
		logger:        log,
	}
}

// WithBatchSize sets how many licenses are loaded per page
func (s *MigrationService) WithBatchSize(n int) *MigrationService {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// MigrateLegacyCredentials creates a product key carrying the exact legacy
// credential value for every license that has one and no matching key yet.
// Each license is migrated independently; failures are collected in the
// report. Only a failure to page through licenses aborts the run.
func (s *MigrationService) MigrateLegacyCredentials(ctx context.Context, actor licensing.Actor) (report MigrationReport, err error) {
	if !actor.IsMaster {
		err = shared.ErrForbidden.WithMessage("Only the master license may run migrations")
		s.audit.Record(ctx, appaudit.Event{
			Action:   audit.ActionMigrate,
			Actor:    actor,
			Resource: string(s.legacyProduct),
			Err:      err,
		})
		return report, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "migration", "legacy_credentials")
	defer func() {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrMigrated, report.Migrated,
			telemetry.SpanAttrSkipped, report.Skipped,
			telemetry.SpanAttrFailed, len(report.Failures))
		telemetry.RecordError(span, err)
		span.End()
	}()

	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("migrate_legacy_credentials", nil), func(ctx context.Context) {
		err = s.migrateAll(ctx, actor, &report)
	})
	return report, err
}

func (s *MigrationService) migrateAll(ctx context.Context, actor licensing.Actor, report *MigrationReport) error {
	log := logger.WithLogger(ctx, s.logger)
	var after licensing.LicenseKey

	for {
		batch, err := s.licenses.ListWithLegacyCredential(ctx, after, s.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		for i := range batch {
			license := &batch[i]
			outcome, err := s.migrateOne(ctx, license)
			switch {
			case err != nil:
				report.Failures = append(report.Failures, MigrationFailure{
					LicenseKey: license.Key.String(),
					Reason:     err.Error(),
				})
				log.Warn("Legacy credential migration failed",
					zap.String("license_key", license.Key.String()), zap.Error(err))
			case outcome == outcomeMigrated:
				report.Migrated++
			default:
				report.Skipped++
			}
			if outcome == outcomeMigrated || err != nil {
				s.audit.Record(ctx, appaudit.Event{
					Action:     audit.ActionMigrate,
					Actor:      actor,
					LicenseKey: license.Key.String(),
					Resource:   string(s.legacyProduct),
					Changes:    map[string]any{"product": string(s.legacyProduct), "key": MaskKey(license.LegacyCredential)},
					Err:        err,
				})
			}
		}

		after = batch[len(batch)-1].Key
		if len(batch) < s.batchSize {
			break
		}
	}

	log.Info("Legacy credential migration finished",
		zap.Int("migrated", report.Migrated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)))
	return nil
}

type migrationOutcome int

const (
	outcomeSkipped migrationOutcome = iota
	outcomeMigrated
)

func (s *MigrationService) migrateOne(ctx context.Context, license *licensing.License) (migrationOutcome, error) {
	credential := license.LegacyCredential

	existing, err := s.keys.FindByKey(ctx, credential)
	if err == nil {
		return s.alreadyPresent(license, existing)
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return outcomeSkipped, err
	}

	if active, err := s.keys.FindActive(ctx, license.Key, s.legacyProduct); err == nil {
		// The license was moved to a new key by hand; the legacy value stays
		// on the license and is not retried as a failure on every run.
		logger.WithLogger(ctx, s.logger).Warn("License already has an active key that differs from its legacy credential",
			zap.String("license_key", license.Key.String()),
			zap.String("product", string(s.legacyProduct)),
			zap.String("active_key", MaskKey(active.Key)))
		return outcomeSkipped, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return outcomeSkipped, err
	}

	now := s.clock.Now()
	pk := licensing.NewProductKey(credential, license.Key, s.legacyProduct, now)
	pk.Metadata = map[string]any{"source": "legacy_migration"}

	if license.IsEntitledTo(s.legacyProduct) || license.IsRevoked() {
		err = s.keys.Create(ctx, pk)
	} else {
		if err := license.EnableProduct(s.legacyProduct, now); err != nil {
			return outcomeSkipped, err
		}
		err = s.keys.CreateForLicense(ctx, pk, license)
	}
	if err == nil {
		return outcomeMigrated, nil
	}
	if !errors.Is(err, licensing.ErrDuplicateKey) {
		return outcomeSkipped, err
	}

	// A concurrent run may have inserted the same row
	existing, ferr := s.keys.FindByKey(ctx, credential)
	if ferr != nil {
		return outcomeSkipped, err
	}
	return s.alreadyPresent(license, existing)
}

func (s *MigrationService) alreadyPresent(license *licensing.License, existing *licensing.ProductKey) (migrationOutcome, error) {
	if existing.LicenseKey != license.Key {
		return outcomeSkipped, shared.ErrConflict.WithMessage("Legacy credential is already used by another license")
	}
	return outcomeSkipped, nil
}
