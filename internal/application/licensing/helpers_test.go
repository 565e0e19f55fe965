package licensing

import (
	"context"
	"sync"
	"testing"
	"time"

	appaudit "github.com/licensehub/backend/internal/application/audit"
	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/persistence"
	"github.com/licensehub/backend/internal/infrastructure/persistence/sqlitetest"
	"github.com/stretchr/testify/require"
)

const (
	masterKey = licensing.LicenseKey("MAST-ER00-0000-0001")
	tenantA   = licensing.LicenseKey("TENA-0000-0000-000A")
	tenantB   = licensing.LicenseKey("TENA-0000-0000-000B")
)

var (
	testNow     = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	masterActor = licensing.Actor{LicenseKey: masterKey, ActorID: "ops", IsMaster: true}
)

func tenantActor(key licensing.LicenseKey) licensing.Actor {
	return licensing.Actor{LicenseKey: key, ActorID: key.String()}
}

// captureTrail keeps audit events in memory
type captureTrail struct {
	mu     sync.Mutex
	events []appaudit.Event
}

func (c *captureTrail) Record(_ context.Context, ev appaudit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureTrail) last() appaudit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[len(c.events)-1]
}

func (c *captureTrail) count(action audit.Action) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Action == action {
			n++
		}
	}
	return n
}

// sequenceGenerator hands out a fixed list of candidates, repeating the last one
type sequenceGenerator struct {
	mu     sync.Mutex
	values []string
	calls  int
}

func (g *sequenceGenerator) ProductKey(licensing.Product) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := min(g.calls, len(g.values)-1)
	g.calls++
	return g.values[i], nil
}

func (g *sequenceGenerator) LicenseKey() (licensing.LicenseKey, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return licensing.LicenseKey(g.values[0]), nil
}

type fixture struct {
	licenses *persistence.GormLicenseRepository
	keys     *persistence.GormProductKeyRepository
	trail    *captureTrail
	clock    shared.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqlitetest.New(t)
	return &fixture{
		licenses: persistence.NewGormLicenseRepository(db),
		keys:     persistence.NewGormProductKeyRepository(db),
		trail:    &captureTrail{},
		clock:    shared.FixedClock{At: testNow},
	}
}

func (f *fixture) entitlements(gen licensing.KeyGenerator, opts ...Option) *EntitlementService {
	if gen == nil {
		gen = licensing.NewRandomKeyGenerator(licensing.DefaultProductKeyLength)
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	return NewEntitlementService(f.licenses, f.keys, gen, f.trail, nil, opts...)
}

// seed stores a license in status entitled to products
func (f *fixture) seed(t *testing.T, key licensing.LicenseKey, status licensing.LicenseStatus, products ...licensing.Product) *licensing.License {
	t.Helper()
	set := licensing.ProductSet{}
	for _, p := range products {
		set = set.With(p)
	}
	l, err := licensing.NewLicense(key, key.String()+"@example.com", "Tenant "+key.String(), licensing.PlanStarter, set, testNow)
	require.NoError(t, err)

	switch status {
	case licensing.LicenseStatusPending:
	case licensing.LicenseStatusRevoked:
		_, err = l.Revoke(testNow)
		require.NoError(t, err)
	case licensing.LicenseStatusExpired, licensing.LicenseStatusSuspended:
		require.NoError(t, l.Activate(testNow))
		require.NoError(t, l.TransitionTo(status, testNow))
	default:
		require.NoError(t, l.Activate(testNow))
	}
	require.NoError(t, f.licenses.Create(context.Background(), l))
	return l
}

func keyInput(key licensing.LicenseKey, p licensing.Product) KeyInput {
	return KeyInput{LicenseKey: key.String(), Product: string(p)}
}
