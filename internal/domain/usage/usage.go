package usage

import (
	"context"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Metric is the kind of resource consumption being attributed
type Metric string

const (
	MetricAPICall        Metric = "api_call"
	MetricComputeSeconds Metric = "compute_seconds"
	MetricBandwidthBytes Metric = "bandwidth_bytes"
)

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricAPICall, MetricComputeSeconds, MetricBandwidthBytes:
		return Metric(s), nil
	default:
		return "", shared.ErrInvalidInput.WithMessage("Unknown usage metric: " + s)
	}
}

// Record is one observation attributed to a license
type Record struct {
	LicenseKey licensing.LicenseKey
	Metric     Metric
	Value      decimal.Decimal
	At         time.Time
}

// Day returns the UTC day bucket the record aggregates into
func (r Record) Day() time.Time {
	return DayOf(r.At)
}

// DayOf truncates t to its UTC calendar day
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DailyUsage is the per (license, metric, day) aggregate
type DailyUsage struct {
	LicenseKey licensing.LicenseKey `json:"license_key"`
	Metric     Metric               `json:"metric"`
	Day        time.Time            `json:"day"`
	Value      decimal.Decimal      `json:"value"`
	Count      int64                `json:"count"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Repository stores daily aggregates. Add must be a single atomic upsert.
type Repository interface {
	Add(ctx context.Context, rec Record) error
	Get(ctx context.Context, license licensing.LicenseKey, metric Metric, day time.Time) (*DailyUsage, error)
	Range(ctx context.Context, license licensing.LicenseKey, from, to time.Time) ([]DailyUsage, error)
}

// Counter is an optional real-time counter kept alongside the aggregates
type Counter interface {
	Incr(ctx context.Context, rec Record) error
	Current(ctx context.Context, license licensing.LicenseKey, metric Metric, day time.Time) (decimal.Decimal, bool, error)
}
