package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/credits/billing"
	"careerkit-credits/internal/credits/ledger"
	"careerkit-credits/internal/models"
	"careerkit-credits/pkg/catalog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userUUID = "0b9f6a52-8a53-4c1e-9d56-5d2f1f1f0d11"

var (
	testNow     = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	periodStart = time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC)
)

type fakeSubs struct {
	subs    map[string]*models.Subscription
	users   map[string]*models.User
	subErr  error
	userErr error
}

func (f *fakeSubs) GetByUser(_ context.Context, userKey string) (*models.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	if s, ok := f.subs[userKey]; ok {
		return s, nil
	}
	return nil, billing.ErrNotFound
}

func (f *fakeSubs) FindUser(_ context.Context, ref string) (*models.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	for _, u := range f.users {
		if u.ID == ref || u.AuthUserID == ref {
			return u, nil
		}
	}
	return nil, billing.ErrNotFound
}

type fakeProvider struct {
	sub   *billing.ProviderSubscription
	err   error
	calls int
}

func (f *fakeProvider) LookupSubscription(context.Context, billing.Customer) (*billing.ProviderSubscription, error) {
	f.calls++
	return f.sub, f.err
}

type fixture struct {
	resolver *Resolver
	subs     *fakeSubs
	provider *fakeProvider
	ledger   *ledger.MemoryStore
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T, failOpen bool, withCache bool) *fixture {
	prices, err := catalog.NewPriceTable(map[string]string{
		catalog.PlanBasic: "price_basic", catalog.PlanStandard: "price_std", catalog.PlanPro: "price_pro",
	}, catalog.PlanBasic)
	require.NoError(t, err)

	f := &fixture{
		subs:     &fakeSubs{subs: map[string]*models.Subscription{}, users: map[string]*models.User{}},
		provider: &fakeProvider{err: billing.ErrNoSubscription},
		ledger:   ledger.NewMemoryStore(),
	}

	var cache *Cache
	if withCache {
		f.redis = miniredis.RunT(t)
		cache = NewCache(redis.NewClient(&redis.Options{Addr: f.redis.Addr()}), 5*time.Minute)
	}

	f.resolver = New(Options{
		Subscriptions:   f.subs,
		Provider:        f.provider,
		Prices:          prices,
		Ledger:          f.ledger,
		Cache:           cache,
		FreeTierCredits: 3,
		FailOpen:        failOpen,
		Logger:          logger.NewTestLogger(t),
	})
	f.resolver.now = func() time.Time { return testNow }
	return f
}

func (f *fixture) spend(t *testing.T, userKey string, credits int, at time.Time) {
	require.NoError(t, f.ledger.Append(context.Background(), models.UsageEvent{
		UserKey: userKey, Feature: catalog.ResumeGeneration, Credits: credits, CreatedAt: at,
	}))
}

func TestResolve_FreeTierDefault(t *testing.T) {
	f := newFixture(t, true, false)

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Outcome)
	assert.Equal(t, SourceFreeTier, res.Source)

	b := res.Balance
	assert.Equal(t, catalog.PlanFree, b.Plan)
	assert.Equal(t, 3, b.TotalCredits)
	assert.Equal(t, 0, b.UsedCredits)
	assert.Equal(t, 3, b.RemainingCredits)
	assert.True(t, b.IsActive)
	assert.False(t, b.Degraded)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), b.PeriodStart)
}

func TestResolve_StoredSubscriptionWithUsage(t *testing.T) {
	f := newFixture(t, true, false)
	f.subs.subs[userUUID] = &models.Subscription{
		UserKey: userUUID, PlanID: catalog.PlanStandard, Status: models.StatusActive, CreditsTotal: 50,
		CurrentPeriodStart: periodStart, CurrentPeriodEnd: periodEnd,
	}
	f.spend(t, userUUID, 40, periodStart.Add(time.Hour))
	f.spend(t, userUUID, 8, periodStart.Add(2*time.Hour))
	f.spend(t, userUUID, 30, periodStart.Add(-time.Hour))

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.Equal(t, SourceSubscription, res.Source)
	assert.Equal(t, 50, res.Balance.TotalCredits)
	assert.Equal(t, 48, res.Balance.UsedCredits)
	assert.Equal(t, 2, res.Balance.RemainingCredits)
	assert.Contains(t, res.Balance.Features, catalog.MockInterview)
	assert.Zero(t, f.provider.calls)
}

func TestResolve_InactiveSubscriptionIsNotActive(t *testing.T) {
	f := newFixture(t, true, false)
	f.subs.subs[userUUID] = &models.Subscription{
		UserKey: userUUID, PlanID: catalog.PlanPro, Status: models.StatusPastDue, CreditsTotal: 150,
		CurrentPeriodStart: periodStart, CurrentPeriodEnd: periodEnd,
	}

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.False(t, res.Balance.IsActive)
	assert.Equal(t, 150, res.Balance.RemainingCredits)
}

func TestResolve_ExternalIDMapsToInternalKey(t *testing.T) {
	f := newFixture(t, true, false)
	f.subs.users["u"] = &models.User{ID: userUUID, AuthUserID: "user_2abc"}
	f.spend(t, userUUID, 2, testNow.Add(-time.Hour))

	res, err := f.resolver.Resolve(context.Background(), "user_2abc")
	require.NoError(t, err)
	assert.Equal(t, userUUID, res.Balance.UserKey)
	assert.Equal(t, 2, res.Balance.UsedCredits)
}

func TestResolve_UnknownExternalIDUsesRawIdentifier(t *testing.T) {
	f := newFixture(t, true, false)
	f.spend(t, "user_zzz", 1, testNow.Add(-time.Hour))

	res, err := f.resolver.Resolve(context.Background(), "user_zzz")
	require.NoError(t, err)
	assert.Equal(t, "user_zzz", res.Balance.UserKey)
	assert.Equal(t, 1, res.Balance.UsedCredits)
}

func TestResolve_ProviderLookupWhenNoStoredRow(t *testing.T) {
	f := newFixture(t, true, false)
	f.subs.users["u"] = &models.User{ID: userUUID, AuthUserID: "user_2abc", Email: "a@example.com"}
	f.provider.err = nil
	f.provider.sub = &billing.ProviderSubscription{
		PriceID: "price_pro", Status: models.StatusActive, PeriodStart: periodStart, PeriodEnd: periodEnd,
	}

	res, err := f.resolver.Resolve(context.Background(), "user_2abc")
	require.NoError(t, err)
	assert.Equal(t, SourceProvider, res.Source)
	assert.Equal(t, catalog.PlanPro, res.Balance.Plan)
	assert.Equal(t, 150, res.Balance.TotalCredits)
	assert.Equal(t, 1, f.provider.calls)
}

func TestResolve_ProviderUnknownPriceUsesFallbackPlan(t *testing.T) {
	f := newFixture(t, true, false)
	f.subs.users["u"] = &models.User{ID: userUUID, AuthUserID: "user_2abc", StripeCustomerID: "cus_1"}
	f.provider.err = nil
	f.provider.sub = &billing.ProviderSubscription{PriceID: "price_retired", Status: models.StatusActive}

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanBasic, res.Balance.Plan)
	assert.Equal(t, 20, res.Balance.TotalCredits)
}

func TestResolve_BillingErrorDegradesToFreeTier(t *testing.T) {
	f := newFixture(t, true, false)
	f.subs.users["u"] = &models.User{ID: userUUID, AuthUserID: "user_2abc", Email: "a@example.com"}
	f.provider.err = errors.New("stripe timeout")

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.True(t, res.Balance.Degraded)
	assert.Equal(t, catalog.PlanFree, res.Balance.Plan)
	assert.Equal(t, 3, res.Balance.TotalCredits)
	assert.Equal(t, 0, res.Balance.UsedCredits)
	assert.True(t, apperrors.HasCode(res.Err, apperrors.ErrCodeBillingLookupFailed))
}

func TestResolve_StoreErrorFailsWhenFailClosed(t *testing.T) {
	f := newFixture(t, false, false)
	f.subs.subErr = errors.New("connection refused")

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCreditResolutionFailed))
}

func TestResolve_CachesResolvedBalance(t *testing.T) {
	f := newFixture(t, true, true)
	ctx := context.Background()

	first, err := f.resolver.Resolve(ctx, userUUID)
	require.NoError(t, err)
	assert.True(t, f.redis.Exists(cacheKey(userUUID)))

	f.spend(t, userUUID, 2, testNow.Add(-time.Minute))
	cached, err := f.resolver.Resolve(ctx, userUUID)
	require.NoError(t, err)
	assert.Equal(t, first.Balance.UsedCredits, cached.Balance.UsedCredits)

	require.NoError(t, f.resolver.Invalidate(ctx, userUUID))
	fresh, err := f.resolver.Resolve(ctx, userUUID)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Balance.UsedCredits)
}

func TestResolve_DegradedBalanceIsNotCached(t *testing.T) {
	f := newFixture(t, true, true)
	f.subs.subErr = errors.New("db down")

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.False(t, f.redis.Exists(cacheKey(userUUID)))
}

func TestResolve_CacheOutageFallsThrough(t *testing.T) {
	f := newFixture(t, true, true)
	f.redis.Close()

	res, err := f.resolver.Resolve(context.Background(), userUUID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeResolved, res.Outcome)
}

func TestRollPeriod(t *testing.T) {
	start := time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC)

	s, e := rollPeriod(start, end, testNow)
	assert.Equal(t, periodStart, s)
	assert.Equal(t, periodEnd, e)

	s, _ = rollPeriod(time.Time{}, time.Time{}, testNow)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), s)
}
