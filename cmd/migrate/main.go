package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	auditapp "github.com/licensehub/backend/internal/application/audit"
	licensingapp "github.com/licensehub/backend/internal/application/licensing"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/infrastructure/config"
	"github.com/licensehub/backend/internal/infrastructure/logger"
	"github.com/licensehub/backend/internal/infrastructure/migration"
	"github.com/licensehub/backend/internal/infrastructure/persistence"
	"github.com/licensehub/backend/internal/infrastructure/storage"
	"github.com/licensehub/backend/migrations"
	"go.uber.org/zap"
)

const (
	defaultMigrationsPath = "migrations"
	backfillActorID       = "migrate-cli"
)

func main() {
	var (
		migrationsPath string
		logLevel       string
		batchSize      int
		timeout        time.Duration
	)

	flag.StringVar(&migrationsPath, "path", "", "Path to migrations directory (default: embedded migrations)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.IntVar(&batchSize, "batch-size", 0, "Licenses loaded per page by backfill-legacy")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Deadline for backfill-legacy and archive-audit")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log, err := logger.New(&logger.Config{
		Level:  logLevel,
		Format: "console",
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// create and list work on files, so they need a directory on disk
	if command == "create" || command == "list" {
		dir := migrationsPath
		if dir == "" {
			dir = defaultMigrationsPath
		}
		if dir, err = filepath.Abs(dir); err != nil {
			log.Fatal("Failed to get absolute path", zap.Error(err))
		}
		runFileCommand(log, dir, args)
		return
	}

	log.Info("Migration CLI started",
		zap.String("command", command),
		zap.String("migrations_path", sourceName(migrationsPath)),
	)

	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel))))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if command == "backfill-legacy" {
		runBackfill(log, cfg, db, batchSize, timeout)
		return
	}
	if command == "archive-audit" {
		runArchive(log, cfg, db, args[1:], timeout)
		return
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get sql.DB", zap.Error(err))
	}

	var m *migration.Migrator
	if migrationsPath == "" {
		m, err = migration.NewFromFS(sqlDB, migrations.FS, log)
	} else {
		m, err = migration.New(sqlDB, migrationsPath, log)
	}
	if err != nil {
		log.Fatal("Failed to create migrator", zap.Error(err))
	}
	defer func() { _ = m.Close() }()

	switch command {
	case "up":
		if err := m.Up(); err != nil {
			log.Fatal("Migration up failed", zap.Error(err))
		}

	case "down":
		if err := m.Down(); err != nil {
			log.Fatal("Migration down failed", zap.Error(err))
		}

	case "step":
		if len(args) < 2 {
			log.Fatal("Step count required. Usage: migrate step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid step count", zap.String("value", args[1]))
		}
		if err := m.Steps(n); err != nil {
			log.Fatal("Migration step failed", zap.Error(err))
		}

	case "goto":
		if len(args) < 2 {
			log.Fatal("Version required. Usage: migrate goto <version>")
		}
		version, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		if err := m.GoTo(uint(version)); err != nil {
			log.Fatal("Migration goto failed", zap.Error(err))
		}

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			log.Fatal("Failed to get version", zap.Error(err))
		}
		if version == 0 {
			log.Info("No migrations applied")
		} else {
			log.Info("Current migration version",
				zap.Uint("version", version),
				zap.Bool("dirty", dirty),
			)
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("Version required. Usage: migrate force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatal("Invalid version number", zap.String("value", args[1]))
		}
		log.Warn("Forcing migration version - use with caution!")
		if err := m.Force(version); err != nil {
			log.Fatal("Force version failed", zap.Error(err))
		}

	default:
		log.Error("Unknown command", zap.String("command", command))
		printUsage()
		os.Exit(1)
	}
}

func runFileCommand(log *zap.Logger, dir string, args []string) {
	switch args[0] {
	case "create":
		if len(args) < 2 {
			log.Fatal("Migration name required. Usage: migrate create <name> [description]")
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			log.Fatal("Failed to create migration", zap.Error(err))
		}
		log.Info("Migration created successfully",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)

	case "list":
		files, err := migration.ListMigrations(dir)
		if err != nil {
			log.Fatal("Failed to list migrations", zap.Error(err))
		}
		if len(files) == 0 {
			log.Info("No migrations found")
			return
		}
		log.Info("Available migrations", zap.Int("count", len(files)))
		for _, f := range files {
			fmt.Println("  -", f)
		}
	}
}

// runBackfill copies legacy single credentials into product keys, acting as
// the configured master license.
func runBackfill(log *zap.Logger, cfg *config.Config, db *persistence.Database, batchSize int, timeout time.Duration) {
	if cfg.Entitlement.MasterLicenseKey == "" {
		log.Fatal("entitlement.master_license_key must be set to run the backfill")
	}
	actor := licensing.Actor{
		LicenseKey: licensing.LicenseKey(cfg.Entitlement.MasterLicenseKey),
		ActorID:    backfillActorID,
		IsMaster:   true,
	}

	recorder := auditapp.NewRecorder(persistence.NewGormAuditRepository(db.DB), log)
	svc := licensingapp.NewMigrationService(
		persistence.NewGormLicenseRepository(db.DB),
		persistence.NewGormProductKeyRepository(db.DB),
		recorder,
		licensing.Product(cfg.Entitlement.LegacyProduct),
		log,
	).WithBatchSize(batchSize)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := svc.MigrateLegacyCredentials(ctx, actor)
	if err != nil {
		log.Fatal("Legacy credential backfill failed",
			zap.Int("migrated", report.Migrated),
			zap.Error(err))
	}
	for _, f := range report.Failures {
		log.Warn("License not migrated",
			zap.String("license_key", f.LicenseKey),
			zap.String("reason", f.Reason))
	}
	log.Info("Legacy credential backfill finished",
		zap.Int("migrated", report.Migrated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)),
	)
	if len(report.Failures) > 0 {
		os.Exit(2)
	}
}

// runArchive writes one day of the audit trail to the archive bucket,
// yesterday unless a YYYY-MM-DD argument is given
func runArchive(log *zap.Logger, cfg *config.Config, db *persistence.Database, args []string, timeout time.Duration) {
	if !cfg.Archive.Enabled {
		log.Fatal("archive.enabled must be set to archive the audit trail")
	}
	day := time.Now().UTC().AddDate(0, 0, -1)
	if len(args) > 0 {
		parsed, err := time.Parse(time.DateOnly, args[0])
		if err != nil {
			log.Fatal("Invalid day, expected YYYY-MM-DD", zap.String("value", args[0]))
		}
		day = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := storage.NewS3ObjectStorage(&cfg.Archive, storage.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to create archive storage", zap.Error(err))
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal("Failed to prepare archive bucket", zap.Error(err))
	}
	archiver := auditapp.NewArchiver(persistence.NewGormAuditRepository(db.DB), store, cfg.Archive.Prefix, log)
	res, err := archiver.ArchiveDay(ctx, day)
	if err != nil {
		log.Fatal("Audit archive failed", zap.Error(err))
	}
	url, expires, err := store.DownloadURL(ctx, res.Key)
	if err != nil {
		log.Warn("Failed to presign archive download", zap.Error(err))
		return
	}
	log.Info("Archive download link", zap.String("url", url), zap.Time("expires_at", expires))
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

func printUsage() {
	fmt.Println(`LicenseHub Database Migration Tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  goto <version>        Migrate to a specific version
  version               Show current migration version
  force <version>       Force set migration version (use with caution)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations
  backfill-legacy       Copy legacy credentials into product keys
  archive-audit [day]   Write one UTC day of the audit trail to the archive bucket

Flags:
  -path string          Migrations directory (default: embedded, ./migrations for create/list)
  -log-level string     Log level: debug, info, warn, error (default: info)
  -batch-size int       Licenses per page for backfill-legacy
  -timeout duration     Deadline for backfill-legacy and archive-audit (default: 10m)

Environment Variables:
  LICENSEHUB_DATABASE_HOST, LICENSEHUB_DATABASE_PORT, LICENSEHUB_DATABASE_USER,
  LICENSEHUB_DATABASE_PASSWORD, LICENSEHUB_DATABASE_DBNAME,
  LICENSEHUB_ENTITLEMENT_MASTER_LICENSE_KEY, LICENSEHUB_ARCHIVE_BUCKET

Examples:
  # Apply all pending migrations
  migrate up

  # Roll back the last migration
  migrate step -1

  # Back-fill product keys after deploying the product key schema
  migrate backfill-legacy

  # Archive the audit trail of 3 May 2026
  migrate archive-audit 2026-05-03`)
}
