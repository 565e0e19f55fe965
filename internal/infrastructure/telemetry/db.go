package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBConfig configures the gorm instrumentation.
type DBConfig struct {
	TraceEnabled bool
	// LogFullSQL puts bound query variables into spans. The product_keys
	// table holds credentials, so this stays off outside development.
	LogFullSQL         bool
	DBSystem           string
	SlowQueryThreshold time.Duration
}

func (c DBConfig) withDefaults() DBConfig {
	if c.DBSystem == "" {
		c.DBSystem = "postgresql"
	}
	if c.SlowQueryThreshold <= 0 {
		c.SlowQueryThreshold = 200 * time.Millisecond
	}
	return c
}

type queryStartKey struct{}

// RegisterDBTracing installs the otelgorm plugin plus a callback that marks
// slow statements and errors on the active span.
func RegisterDBTracing(db *gorm.DB, cfg DBConfig, logger *zap.Logger) error {
	cfg = cfg.withDefaults()
	if !cfg.TraceEnabled {
		logger.Debug("Database tracing disabled")
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	after := func(tx *gorm.DB) { annotateSpan(tx, cfg.SlowQueryThreshold) }
	if err := registerAround(db, "otel_span", markQueryStart, after); err != nil {
		return err
	}

	logger.Info("Database tracing enabled",
		zap.Bool("log_full_sql", cfg.LogFullSQL),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return nil
}

func annotateSpan(tx *gorm.DB, slow time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))
	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}
	if elapsed, ok := queryElapsed(ctx); ok && elapsed > slow {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
}

// DBMetrics records query latency and connection pool state.
type DBMetrics struct {
	queryTotal     *Counter
	queryDuration  *Histogram
	slowQueryTotal *Counter
	poolGauge      metric.Int64ObservableGauge
	registration   metric.Registration
	slow           time.Duration
}

// RegisterDBMetrics installs the query metrics callbacks on db and observes
// the pool stats of sqlDB on every collection. Call Stop on shutdown.
func RegisterDBMetrics(db *gorm.DB, sqlDB *sql.DB, mp *MeterProvider, cfg DBConfig, logger *zap.Logger) (*DBMetrics, error) {
	cfg = cfg.withDefaults()
	meter := mp.Meter("db.client")

	m := &DBMetrics{slow: cfg.SlowQueryThreshold}
	var err error
	if m.queryTotal, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.queryDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.slowQueryTotal, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow query threshold", "{query}"); err != nil {
		return nil, err
	}
	if m.poolGauge, err = meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
	); err != nil {
		return nil, err
	}

	if sqlDB != nil {
		m.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			stats := sqlDB.Stats()
			o.ObserveInt64(m.poolGauge, int64(stats.Idle), metric.WithAttributes(AttrDBState.String("idle")))
			o.ObserveInt64(m.poolGauge, int64(stats.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
			o.ObserveInt64(m.poolGauge, int64(stats.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
			return nil
		}, m.poolGauge)
		if err != nil {
			return nil, err
		}
	}

	if err := registerAround(db, "otel_metrics", markQueryStart, m.record); err != nil {
		return nil, err
	}
	logger.Info("Database metrics registered", zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold))
	return m, nil
}

// RecordQuery records one statement
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, d time.Duration) {
	if operation == "" {
		operation = "OTHER"
	}
	m.queryTotal.Inc(ctx, AttrDBOperation.String(operation))
	m.queryDuration.RecordDuration(ctx, d, AttrDBOperation.String(operation))
	if d > m.slow {
		if table == "" {
			table = "unknown"
		}
		m.slowQueryTotal.Inc(ctx, AttrDBTable.String(table))
	}
}

// Stop unregisters the pool stats callback
func (m *DBMetrics) Stop() error {
	if m == nil || m.registration == nil {
		return nil
	}
	return m.registration.Unregister()
}

func (m *DBMetrics) record(tx *gorm.DB) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	d, _ := queryElapsed(ctx)
	m.RecordQuery(ctx, operationOf(tx.Statement.SQL.String()), tx.Statement.Table, d)
}

func operationOf(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(sql, op) {
			return op
		}
	}
	return "OTHER"
}

func markQueryStart(tx *gorm.DB) {
	if tx.Statement.Context == nil {
		return
	}
	if _, ok := tx.Statement.Context.Value(queryStartKey{}).(time.Time); ok {
		return
	}
	tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
}

func queryElapsed(ctx context.Context) (time.Duration, bool) {
	start, ok := ctx.Value(queryStartKey{}).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

// registerAround registers before/after callbacks on every gorm processor.
// Callback names are prefixed so tracing and metrics can both be installed.
func registerAround(db *gorm.DB, prefix string, before, after func(*gorm.DB)) error {
	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register(prefix+":before_create", before),
		cb.Query().Before("gorm:query").Register(prefix+":before_query", before),
		cb.Update().Before("gorm:update").Register(prefix+":before_update", before),
		cb.Delete().Before("gorm:delete").Register(prefix+":before_delete", before),
		cb.Row().Before("gorm:row").Register(prefix+":before_row", before),
		cb.Raw().Before("gorm:raw").Register(prefix+":before_raw", before),
		cb.Create().After("gorm:create").Register(prefix+":after_create", after),
		cb.Query().After("gorm:query").Register(prefix+":after_query", after),
		cb.Update().After("gorm:update").Register(prefix+":after_update", after),
		cb.Delete().After("gorm:delete").Register(prefix+":after_delete", after),
		cb.Row().After("gorm:row").Register(prefix+":after_row", after),
		cb.Raw().After("gorm:raw").Register(prefix+":after_raw", after),
	)
}
