package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/usage"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// counterTTL keeps a day's counter around long enough for late reads
const counterTTL = 48 * time.Hour

// UsageCounter implements usage.Counter with one INCRBYFLOAT key per
// (license, metric, UTC day)
type UsageCounter struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewUsageCounter creates a counter on an existing client
func NewUsageCounter(client redis.UniversalClient) *UsageCounter {
	return &UsageCounter{client: client, keyPrefix: "usage:"}
}

func (c *UsageCounter) key(license licensing.LicenseKey, metric usage.Metric, day time.Time) string {
	return fmt.Sprintf("%s%s:%s:%s", c.keyPrefix, license, metric, usage.DayOf(day).Format("2006-01-02"))
}

// Incr adds the record's value to its day counter
func (c *UsageCounter) Incr(ctx context.Context, rec usage.Record) error {
	key := c.key(rec.LicenseKey, rec.Metric, rec.At)
	pipe := c.client.TxPipeline()
	pipe.IncrByFloat(ctx, key, rec.Value.InexactFloat64())
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment usage counter: %w", err)
	}
	return nil
}

// Current returns the day counter. ok is false when no counter exists.
func (c *UsageCounter) Current(ctx context.Context, license licensing.LicenseKey, metric usage.Metric, day time.Time) (decimal.Decimal, bool, error) {
	val, err := c.client.Get(ctx, c.key(license, metric, day)).Result()
	if err == redis.Nil {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to read usage counter: %w", err)
	}
	d, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("malformed usage counter %q: %w", val, err)
	}
	return d, true, nil
}
