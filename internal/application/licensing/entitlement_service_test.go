package licensing

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/licensehub/backend/internal/domain/audit"
	"github.com/licensehub/backend/internal/domain/licensing"
	"github.com/licensehub/backend/internal/domain/shared"
	"github.com/licensehub/backend/internal/infrastructure/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueKey_CreatesOnceThenReturnsTheSameKey(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	svc := f.entitlements(nil)
	ctx := context.Background()

	first, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Key, "cb_"))
	assert.Len(t, first.Key, len("cb_")+licensing.DefaultProductKeyLength)
	assert.Equal(t, true, f.trail.last().Changes["created"])

	second, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, false, f.trail.last().Changes["created"])

	all, err := f.keys.ListByLicenseProduct(ctx, tenantA, licensing.ProductChatbot)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIssueKey_ConcurrentCallersShareOneKey(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductOutreach)
	svc := f.entitlements(nil)

	const callers = 12
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pk, err := svc.IssueKey(context.Background(), tenantActor(tenantA), keyInput(tenantA, licensing.ProductOutreach))
			errs[i] = err
			if pk != nil {
				results[i] = pk.Key
			}
		}(i)
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
	values, err := f.keys.ActiveKeyValues(context.Background(), tenantA, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{results[0]}, values)
}

func TestIssueKey_RetriesOnCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	f.seed(t, tenantB, licensing.LicenseStatusActive, licensing.ProductChatbot)
	require.NoError(t, f.keys.Create(ctx, licensing.NewProductKey("cb_taken", tenantB, licensing.ProductChatbot, testNow)))

	gen := &sequenceGenerator{values: []string{"cb_taken", "cb_taken", "cb_fresh"}}
	pk, err := f.entitlements(gen).IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))

	require.NoError(t, err)
	assert.Equal(t, "cb_fresh", pk.Key)
	assert.Equal(t, 3, gen.calls)

	owner, err := f.keys.FindByKey(ctx, "cb_taken")
	require.NoError(t, err)
	assert.Equal(t, tenantB, owner.LicenseKey)
}

func TestIssueKey_ExhaustsRetryBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	f.seed(t, tenantB, licensing.LicenseStatusActive, licensing.ProductChatbot)
	require.NoError(t, f.keys.Create(ctx, licensing.NewProductKey("cb_taken", tenantB, licensing.ProductChatbot, testNow)))

	gen := &sequenceGenerator{values: []string{"cb_taken"}}
	_, err := f.entitlements(gen, WithMaxAttempts(10)).IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))

	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, 10, gen.calls)

	_, err = f.keys.FindActive(ctx, tenantA, licensing.ProductChatbot)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Error(t, f.trail.last().Err)
}

// racingKeys inserts a competing active key just before the first Create,
// reproducing a concurrent issuer winning the race
type racingKeys struct {
	*persistence.GormProductKeyRepository
	winner *licensing.ProductKey
	once   sync.Once
}

func (r *racingKeys) Create(ctx context.Context, pk *licensing.ProductKey) error {
	r.once.Do(func() { _ = r.GormProductKeyRepository.Create(ctx, r.winner) })
	return r.GormProductKeyRepository.Create(ctx, pk)
}

func TestIssueKey_DuplicateOnInsertReturnsTheWinner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	keys := &racingKeys{
		GormProductKeyRepository: f.keys,
		winner:                   licensing.NewProductKey("cb_winner", tenantA, licensing.ProductChatbot, testNow),
	}
	gen := &sequenceGenerator{values: []string{"cb_loser"}}
	svc := NewEntitlementService(f.licenses, keys, gen, f.trail, nil, WithClock(f.clock))

	pk, err := svc.IssueKey(context.Background(), tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))

	require.NoError(t, err)
	assert.Equal(t, "cb_winner", pk.Key)
	assert.Equal(t, 1, gen.calls)
}

func TestIssueKey_Rejections(t *testing.T) {
	f := newFixture(t)
	for _, st := range []licensing.LicenseStatus{
		licensing.LicenseStatusPending,
		licensing.LicenseStatusSuspended,
		licensing.LicenseStatusExpired,
		licensing.LicenseStatusRevoked,
	} {
		f.seed(t, licensing.LicenseKey("STAT-0000-0000-"+strings.ToUpper(string(st[:4]))), st, licensing.ProductChatbot)
	}
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	svc := f.entitlements(nil)

	tests := []struct {
		name   string
		actor  licensing.Actor
		in     KeyInput
		target error
	}{
		{"pending license", masterActor, KeyInput{LicenseKey: "STAT-0000-0000-PEND", Product: "chatbot"}, shared.ErrInvalidState},
		{"suspended license", masterActor, KeyInput{LicenseKey: "STAT-0000-0000-SUSP", Product: "chatbot"}, shared.ErrInvalidState},
		{"expired license", masterActor, KeyInput{LicenseKey: "STAT-0000-0000-EXPI", Product: "chatbot"}, shared.ErrInvalidState},
		{"revoked license", masterActor, KeyInput{LicenseKey: "STAT-0000-0000-REVO", Product: "chatbot"}, shared.ErrInvalidState},
		{"product not entitled", tenantActor(tenantA), keyInput(tenantA, licensing.ProductSetup), shared.ErrInvalidState},
		{"unknown license", masterActor, KeyInput{LicenseKey: "NONE-0000-0000-0000", Product: "chatbot"}, shared.ErrNotFound},
		{"unknown product", tenantActor(tenantA), KeyInput{LicenseKey: tenantA.String(), Product: "crm"}, shared.ErrInvalidInput},
		{"malformed license key", masterActor, KeyInput{LicenseKey: "abc", Product: "chatbot"}, shared.ErrInvalidInput},
		{"another tenant", tenantActor(tenantB), keyInput(tenantA, licensing.ProductChatbot), shared.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk, err := svc.IssueKey(context.Background(), tt.actor, tt.in)
			assert.Nil(t, pk)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	values, err := f.keys.ActiveKeyValues(context.Background(), tenantA, nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestResolveKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot, licensing.ProductOutreach)
	svc := f.entitlements(nil)

	pk, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)

	t.Run("active key on active license", func(t *testing.T) {
		res, err := svc.ResolveKey(ctx, pk.Key)
		require.NoError(t, err)
		assert.Equal(t, tenantA, res.LicenseKey)
		assert.Equal(t, licensing.ProductChatbot, res.Product)
		assert.Equal(t, licensing.PlanStarter, res.Plan)

		stored, err := f.keys.FindByKey(ctx, pk.Key)
		require.NoError(t, err)
		require.NotNil(t, stored.LastUsedAt)
		assert.True(t, stored.LastUsedAt.Equal(testNow))
	})

	t.Run("unknown and malformed keys", func(t *testing.T) {
		for _, raw := range []string{"cb_nope", "", strings.Repeat("x", 200)} {
			_, err := svc.ResolveKey(ctx, raw)
			assert.ErrorIs(t, err, shared.ErrNotFound)
		}
	})

	t.Run("suspended license fails closed", func(t *testing.T) {
		l, err := f.licenses.FindByKey(ctx, tenantA)
		require.NoError(t, err)
		require.NoError(t, l.Suspend(testNow))
		require.NoError(t, f.licenses.Save(ctx, l))

		res, err := svc.ResolveKey(ctx, pk.Key)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Equal(t, licensing.LicenseStatusSuspended, res.License)
		assert.Equal(t, licensing.KeyStatusActive, res.KeyStatus)

		require.NoError(t, l.Activate(testNow))
		require.NoError(t, f.licenses.Save(ctx, l))
	})

	t.Run("revoked key fails closed", func(t *testing.T) {
		n, err := svc.RevokeKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		res, err := svc.ResolveKey(ctx, pk.Key)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Equal(t, licensing.KeyStatusInactive, res.KeyStatus)
	})
}

// unavailableKeys fails every key lookup as an unreachable store would
type unavailableKeys struct {
	licensing.ProductKeyRepository
}

func (unavailableKeys) FindByKey(context.Context, string) (*licensing.ProductKey, error) {
	return nil, shared.ErrStoreUnavailable
}

func TestResolveKey_StoreUnavailableIsNotNotFound(t *testing.T) {
	f := newFixture(t)
	svc := NewEntitlementService(f.licenses, unavailableKeys{f.keys}, licensing.NewRandomKeyGenerator(0), f.trail, nil)

	_, err := svc.ResolveKey(context.Background(), "cb_anything")

	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	svc := f.entitlements(nil)

	first, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)

	t.Run("other tenants cannot revoke", func(t *testing.T) {
		_, err := svc.RevokeKey(ctx, tenantActor(tenantB), keyInput(tenantA, licensing.ProductChatbot))
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		n, err := svc.RevokeKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = svc.RevokeKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("the before state is audited with masked keys", func(t *testing.T) {
		ev := f.trail.last()
		assert.Equal(t, audit.ActionRevoke, ev.Action)
		before, ok := ev.Changes["before"].([]map[string]any)
		require.True(t, ok)
		require.Len(t, before, 1)
		assert.Equal(t, MaskKey(first.Key), before[0]["key"])
		assert.Equal(t, "inactive", before[0]["status"])
	})

	t.Run("issue after revoke creates a new key", func(t *testing.T) {
		next, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
		require.NoError(t, err)
		assert.NotEqual(t, first.Key, next.Key)

		keys, err := svc.ListKeys(ctx, tenantActor(tenantA), tenantA.String())
		require.NoError(t, err)
		assert.Len(t, keys, 2)
	})

	t.Run("reset is audited as a reset", func(t *testing.T) {
		n, err := svc.ResetProduct(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, audit.ActionReset, f.trail.last().Action)
	})
}

func TestRegenerateKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductSetup)
	svc := f.entitlements(nil)

	old, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductSetup))
	require.NoError(t, err)

	fresh, err := svc.RegenerateKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductSetup))
	require.NoError(t, err)
	assert.NotEqual(t, old.Key, fresh.Key)
	assert.True(t, strings.HasPrefix(fresh.Key, "su_"))

	_, err = svc.ResolveKey(ctx, old.Key)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	res, err := svc.ResolveKey(ctx, fresh.Key)
	require.NoError(t, err)
	assert.Equal(t, tenantA, res.LicenseKey)

	ev := f.trail.last()
	assert.Equal(t, audit.ActionRegenerate, ev.Action)
	assert.Equal(t, []string{MaskKey(old.Key)}, ev.Changes["previous"])
}

func TestRegenerateKey_FailedIssueKeepsThePreviousKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)

	// every candidate collides with the key being replaced
	svc := f.entitlements(&sequenceGenerator{values: []string{"cb_old"}}, WithMaxAttempts(3))
	old, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)
	require.Equal(t, "cb_old", old.Key)

	fresh, err := svc.RegenerateKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	assert.Nil(t, fresh)
	assert.ErrorIs(t, err, shared.ErrConflict)

	active, err := f.keys.FindActive(ctx, tenantA, licensing.ProductChatbot)
	require.NoError(t, err)
	assert.Equal(t, "cb_old", active.Key)

	res, err := svc.ResolveKey(ctx, "cb_old")
	require.NoError(t, err)
	assert.Equal(t, tenantA, res.LicenseKey)

	ev := f.trail.last()
	assert.Equal(t, audit.ActionRegenerate, ev.Action)
	assert.ErrorIs(t, ev.Err, shared.ErrConflict)
}

func TestEntitlementService_RejectedAttemptsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	f.seed(t, tenantB, licensing.LicenseStatusActive, licensing.ProductChatbot)
	svc := f.entitlements(nil)
	intruder := tenantActor(tenantB)

	pk, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)
	issued := len(f.trail.events)

	assert.ErrorIs(t, svc.RevokeTenant(ctx, intruder, tenantA.String()), shared.ErrForbidden)
	_, err = svc.RevokeKey(ctx, intruder, keyInput(tenantA, licensing.ProductChatbot))
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.IssueKey(ctx, intruder, keyInput(tenantA, licensing.ProductChatbot))
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.RegenerateKey(ctx, intruder, keyInput(tenantA, licensing.ProductChatbot))
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.ResetProduct(ctx, intruder, keyInput(tenantA, licensing.ProductChatbot))
	assert.ErrorIs(t, err, shared.ErrForbidden)

	rejected := f.trail.events[issued:]
	require.Len(t, rejected, 5)
	want := []audit.Action{audit.ActionRevoke, audit.ActionRevoke, audit.ActionGenerate, audit.ActionRegenerate, audit.ActionReset}
	for i, ev := range rejected {
		assert.Equal(t, want[i], ev.Action)
		assert.Equal(t, intruder, ev.Actor)
		assert.Equal(t, tenantA.String(), ev.LicenseKey)
		assert.ErrorIs(t, ev.Err, shared.ErrForbidden)
	}

	res, err := svc.ResolveKey(ctx, pk.Key)
	require.NoError(t, err)
	assert.Equal(t, tenantA, res.LicenseKey)
}

type recordingRevoker struct {
	mu   sync.Mutex
	keys []licensing.LicenseKey
}

func (r *recordingRevoker) InvalidateLicense(_ context.Context, key licensing.LicenseKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return nil
}

func TestRevokeTenant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot, licensing.ProductOutreach)
	revoker := &recordingRevoker{}
	svc := f.entitlements(nil, WithSessionRevoker(revoker))

	chatbot, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)
	outreach, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductOutreach))
	require.NoError(t, err)

	t.Run("tenants cannot revoke licenses", func(t *testing.T) {
		err := svc.RevokeTenant(ctx, tenantActor(tenantA), tenantA.String())
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})

	t.Run("every key stops resolving", func(t *testing.T) {
		require.NoError(t, svc.RevokeTenant(ctx, masterActor, tenantA.String()))

		for _, k := range []string{chatbot.Key, outreach.Key} {
			res, err := svc.ResolveKey(ctx, k)
			assert.ErrorIs(t, err, shared.ErrNotFound)
			assert.Equal(t, licensing.LicenseStatusRevoked, res.License)
		}
		assert.Equal(t, []licensing.LicenseKey{tenantA}, revoker.keys)

		l, err := f.licenses.FindByKey(ctx, tenantA)
		require.NoError(t, err)
		assert.True(t, l.IsRevoked())
		assert.NotNil(t, l.RevokedAt)
	})

	t.Run("revoking again is a no-op", func(t *testing.T) {
		require.NoError(t, svc.RevokeTenant(ctx, masterActor, tenantA.String()))
		assert.Equal(t, false, f.trail.last().Changes["changed"])
		assert.Len(t, revoker.keys, 1)
	})

	t.Run("no new keys for a revoked license", func(t *testing.T) {
		_, err := svc.IssueKey(ctx, masterActor, keyInput(tenantA, licensing.ProductChatbot))
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	t.Run("unknown license", func(t *testing.T) {
		err := svc.RevokeTenant(ctx, masterActor, "NONE-0000-0000-0000")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestRevokeTenant_StaleCopyCannotReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	svc := f.entitlements(nil)

	stale, err := f.licenses.FindByKey(ctx, tenantA)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeTenant(ctx, masterActor, tenantA.String()))

	require.NoError(t, stale.EnableProduct(licensing.ProductOutreach, testNow))
	assert.ErrorIs(t, f.licenses.Save(ctx, stale), shared.ErrConflict)

	l, err := f.licenses.FindByKey(ctx, tenantA)
	require.NoError(t, err)
	assert.True(t, l.IsRevoked())
	assert.False(t, l.IsEntitledTo(licensing.ProductOutreach))
}

func TestValidateKey_AuditsWithoutTheRawKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, tenantA, licensing.LicenseStatusActive, licensing.ProductChatbot)
	svc := f.entitlements(nil)

	pk, err := svc.IssueKey(ctx, tenantActor(tenantA), keyInput(tenantA, licensing.ProductChatbot))
	require.NoError(t, err)

	_, err = svc.ValidateKey(ctx, pk.Key, "203.0.113.9")
	require.NoError(t, err)
	_, err = svc.ValidateKey(ctx, "cb_unknown_value", "203.0.113.9")
	require.Error(t, err)

	assert.Equal(t, 2, f.trail.count(audit.ActionValidate))
	f.trail.mu.Lock()
	defer f.trail.mu.Unlock()
	for _, ev := range f.trail.events {
		if ev.Action != audit.ActionValidate {
			continue
		}
		assert.NotContains(t, ev.Resource, pk.Key)
		assert.NotContains(t, ev.Actor.ActorID, pk.Key)
		assert.Equal(t, "203.0.113.9", ev.Actor.IP)
	}
}
