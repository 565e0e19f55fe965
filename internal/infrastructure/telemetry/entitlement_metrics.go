package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// EntitlementMetrics counts credential issuance and resolution outcomes and
// times usage writes. It satisfies the licensing service Metrics port and
// the usage meter WriteObserver.
type EntitlementMetrics struct {
	keysIssued        *Counter
	keyCollisions     *Counter
	keySpaceExhausted *Counter
	resolveDenied     *Counter
	usageWrites       *Counter
	usageWriteLatency *Histogram
}

// NewEntitlementMetrics registers the instruments on mp
func NewEntitlementMetrics(mp *MeterProvider) (*EntitlementMetrics, error) {
	meter := mp.Meter("licensehub.entitlement")
	m := &EntitlementMetrics{}

	var err error
	if m.keysIssued, err = NewCounter(meter, "product_keys_issued_total",
		"issueKey calls by product and whether a new key was created", "{key}"); err != nil {
		return nil, err
	}
	if m.keyCollisions, err = NewCounter(meter, "product_key_collisions_total",
		"Generated product key values that already existed", "{collision}"); err != nil {
		return nil, err
	}
	if m.keySpaceExhausted, err = NewCounter(meter, "product_key_space_exhausted_total",
		"issueKey calls that ran out of generation attempts", "{call}"); err != nil {
		return nil, err
	}
	if m.resolveDenied, err = NewCounter(meter, "product_key_resolve_denied_total",
		"resolveKey calls that did not yield an entitlement, by reason", "{call}"); err != nil {
		return nil, err
	}
	if m.usageWrites, err = NewCounter(meter, "usage_writes_total",
		"Usage record writes by metric and outcome", "{write}"); err != nil {
		return nil, err
	}
	if m.usageWriteLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "usage_write_duration_seconds",
		Description: "Latency of usage record writes",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EntitlementMetrics) KeyIssued(ctx context.Context, product string, created bool) {
	m.keysIssued.Inc(ctx, AttrProduct.String(product), attribute.Bool("created", created))
}

func (m *EntitlementMetrics) KeyCollision(ctx context.Context, product string) {
	m.keyCollisions.Inc(ctx, AttrProduct.String(product))
}

func (m *EntitlementMetrics) KeySpaceExhausted(ctx context.Context, product string) {
	m.keySpaceExhausted.Inc(ctx, AttrProduct.String(product))
}

func (m *EntitlementMetrics) ResolveDenied(ctx context.Context, reason string) {
	m.resolveDenied.Inc(ctx, AttrReason.String(reason))
}

// ObserveUsageWrite records one usage write. Writes that fail are counted
// with outcome=error; the error itself is logged by the meter.
func (m *EntitlementMetrics) ObserveUsageWrite(ctx context.Context, metric string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{AttrMetric.String(metric), AttrOutcome.String(outcome)}
	m.usageWrites.Inc(ctx, attrs...)
	m.usageWriteLatency.RecordDuration(ctx, d, attrs...)
}
