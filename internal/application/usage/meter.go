// Package usage attributes resource consumption to licenses.
package usage

import (
	"context"
	"errors"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultWriteTimeout = 2 * time.Second

// WriteObserver receives the latency and outcome of each usage write
type WriteObserver interface {
	ObserveUsageWrite(ctx context.Context, metric string, d time.Duration, err error)
}

// Meter records usage. Record never returns an error: metering must not
// fail the request being metered.
type Meter struct {
	repo         usage.Repository
	counter      usage.Counter
	observer     WriteObserver
	clock        shared.Clock
	writeTimeout time.Duration
	logger       *zap.Logger
}

// MeterOption configures a Meter
type MeterOption func(*Meter)

// WithCounter attaches a real-time counter updated alongside the aggregate
func WithCounter(c usage.Counter) MeterOption {
	return func(m *Meter) { m.counter = c }
}

// WithObserver attaches a write observer
func WithObserver(o WriteObserver) MeterOption {
	return func(m *Meter) { m.observer = o }
}

// WithMeterClock overrides the timestamp source
func WithMeterClock(c shared.Clock) MeterOption {
	return func(m *Meter) { m.clock = c }
}

// WithWriteTimeout bounds each write
func WithWriteTimeout(d time.Duration) MeterOption {
	return func(m *Meter) {
		if d > 0 {
			m.writeTimeout = d
		}
	}
}

// NewMeter creates a usage meter
func NewMeter(repo usage.Repository, logger *zap.Logger, opts ...MeterOption) *Meter {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meter{
		repo:         repo,
		clock:        shared.SystemClock{},
		writeTimeout: defaultWriteTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record attributes value of metric to license. The write is one atomic
// upsert on a context detached from the caller, so a cancelled request
// neither aborts nor half-applies it.
func (m *Meter) Record(ctx context.Context, license licensing.LicenseKey, metric usage.Metric, value decimal.Decimal) {
	if license == "" {
		return
	}
	if _, err := usage.ParseMetric(string(metric)); err != nil || value.IsNegative() {
		m.logger.Warn("Discarding invalid usage record",
			zap.String("license_key", license.String()),
			zap.String("metric", string(metric)),
			zap.String("value", value.String()))
		return
	}

	rec := usage.Record{LicenseKey: license, Metric: metric, Value: value, At: m.clock.Now()}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.writeTimeout)
	defer cancel()

	start := time.Now()
	err := m.repo.Add(writeCtx, rec)
	if m.observer != nil {
		m.observer.ObserveUsageWrite(writeCtx, string(metric), time.Since(start), err)
	}
	if err != nil {
		m.logger.Warn("Failed to record usage",
			zap.String("license_key", license.String()),
			zap.String("metric", string(metric)),
			zap.Error(err))
		return
	}

	if m.counter != nil {
		if err := m.counter.Incr(writeCtx, rec); err != nil {
			m.logger.Debug("Failed to update real-time usage counter", zap.Error(err))
		}
	}
}

// Current returns today's value of metric for license. The real-time
// counter is preferred when configured; the daily aggregate is the fallback.
func (m *Meter) Current(ctx context.Context, license licensing.LicenseKey, metric usage.Metric) (decimal.Decimal, error) {
	day := usage.DayOf(m.clock.Now())
	if m.counter != nil {
		v, ok, err := m.counter.Current(ctx, license, metric, day)
		if err == nil && ok {
			return v, nil
		}
		if err != nil {
			m.logger.Debug("Real-time usage counter unavailable", zap.Error(err))
		}
	}
	agg, err := m.repo.Get(ctx, license, metric, day)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return agg.Value, nil
}

// Summary returns the daily aggregates of license between from and to inclusive
func (m *Meter) Summary(ctx context.Context, license licensing.LicenseKey, from, to time.Time) ([]usage.DailyUsage, error) {
	from, to = usage.DayOf(from), usage.DayOf(to)
	if to.Before(from) {
		return nil, shared.ErrInvalidInput.WithMessage("Usage range end is before its start")
	}
	if to.Sub(from) > 366*24*time.Hour {
		return nil, shared.ErrInvalidInput.WithMessage("Usage range cannot exceed one year")
	}
	return m.repo.Range(ctx, license, from, to)
}

// QuotaStatus reports a license's standing against its daily api_call limit
type QuotaStatus struct {
	Metric    usage.Metric    `json:"metric"`
	Used      decimal.Decimal `json:"used"`
	Limit     decimal.Decimal `json:"limit"`
	Unlimited bool            `json:"unlimited"`
	Remaining decimal.Decimal `json:"remaining"`
	Exceeded  bool            `json:"exceeded"`
}

// CheckQuota evaluates today's api_call usage against the plan limit
func (m *Meter) CheckQuota(ctx context.Context, license licensing.LicenseKey, plan licensing.Plan) (QuotaStatus, error) {
	limit := usage.LimitFor(plan, usage.MetricAPICall)
	status := QuotaStatus{Metric: usage.MetricAPICall, Limit: limit.PerDay, Unlimited: limit.Unlimited}
	if limit.Unlimited {
		status.Remaining = limit.Remaining(decimal.Zero)
		return status, nil
	}
	used, err := m.Current(ctx, license, usage.MetricAPICall)
	if err != nil {
		return status, err
	}
	status.Used = used
	status.Remaining = limit.Remaining(used)
	status.Exceeded = limit.Exceeded(used)
	return status, nil
}
