// Package resolver computes a user's current credit balance from the stored
// subscription, the billing provider and the usage ledger.
package resolver

import (
	"context"
	"errors"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/metrics"
	"careerkit-credits/internal/credits/billing"
	"careerkit-credits/internal/credits/ledger"
	"careerkit-credits/internal/models"
	"careerkit-credits/pkg/catalog"

	"github.com/google/uuid"
)

// Outcome tells a real balance apart from a fallback.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

// Source names where the plan came from.
type Source string

const (
	SourceSubscription Source = "subscription"
	SourceProvider     Source = "provider"
	SourceFreeTier     Source = "free_tier"
	SourceFallback     Source = "fallback"
)

// Result is a resolved balance. Err is set for degraded and failed outcomes.
type Result struct {
	Balance models.Balance
	Outcome Outcome
	Source  Source
	Err     error
}

// Subscriptions is the stored subscription and user data the resolver reads.
type Subscriptions interface {
	GetByUser(ctx context.Context, userKey string) (*models.Subscription, error)
	FindUser(ctx context.Context, ref string) (*models.User, error)
}

type Options struct {
	Subscriptions   Subscriptions
	Provider        billing.Provider
	Prices          *catalog.PriceTable
	Ledger          ledger.Store
	Cache           *Cache
	FreeTierCredits int
	FailOpen        bool
	Logger          logger.Logger
}

type Resolver struct {
	subs        Subscriptions
	provider    billing.Provider
	prices      *catalog.PriceTable
	ledger      ledger.Store
	cache       *Cache
	freeCredits int
	failOpen    bool
	logger      logger.Logger
	now         func() time.Time
}

func New(opts Options) *Resolver {
	return &Resolver{
		subs:        opts.Subscriptions,
		provider:    opts.Provider,
		prices:      opts.Prices,
		ledger:      opts.Ledger,
		cache:       opts.Cache,
		freeCredits: opts.FreeTierCredits,
		failOpen:    opts.FailOpen,
		logger:      opts.Logger.WithFields(map[string]interface{}{"component": "credit-resolver"}),
		now:         time.Now,
	}
}

// UserKey maps an identifier to the key the ledger and subscriptions use.
// UUIDs are taken as-is; anything else is looked up as an external auth id,
// falling back to the raw identifier.
func (r *Resolver) UserKey(ctx context.Context, identifier string) (string, *models.User) {
	if _, err := uuid.Parse(identifier); err == nil {
		u, _ := r.subs.FindUser(ctx, identifier)
		return identifier, u
	}

	u, err := r.subs.FindUser(ctx, identifier)
	if err != nil {
		if !errors.Is(err, billing.ErrNotFound) {
			r.logger.Warn("user lookup failed, using raw identifier", map[string]interface{}{
				"identifier": identifier,
				"error":      err,
			})
		}
		return identifier, nil
	}
	return u.ID, u
}

// Resolve returns the balance of identifier. The error is non-nil only for
// OutcomeFailed, which happens when fail-open is disabled.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Result, error) {
	userKey, user := r.UserKey(ctx, identifier)

	if r.cache != nil {
		cb, ok, err := r.cache.Get(ctx, userKey)
		if err != nil {
			r.logger.Warn("balance cache read failed", map[string]interface{}{"userKey": userKey, "error": err})
		}
		if ok {
			metrics.BalanceCacheHits.WithLabelValues("hit").Inc()
			return &Result{Balance: cb.Balance, Outcome: OutcomeResolved, Source: cb.Source}, nil
		}
		metrics.BalanceCacheHits.WithLabelValues("miss").Inc()
	}

	res, err := r.resolve(ctx, userKey, user)
	if err != nil {
		return r.fail(userKey, err)
	}

	metrics.BalanceResolutions.WithLabelValues(string(OutcomeResolved), string(res.Source)).Inc()
	if r.cache != nil {
		if err := r.cache.Set(ctx, userKey, cachedBalance{Balance: res.Balance, Source: res.Source}); err != nil {
			r.logger.Warn("balance cache write failed", map[string]interface{}{"userKey": userKey, "error": err})
		}
	}
	return res, nil
}

// Invalidate drops the cached balance of userKey.
func (r *Resolver) Invalidate(ctx context.Context, userKey string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, userKey)
}

type planState struct {
	plan   catalog.Plan
	total  int
	status models.SubscriptionStatus
	start  time.Time
	end    time.Time
	source Source
}

func (r *Resolver) resolve(ctx context.Context, userKey string, user *models.User) (*Result, error) {
	state, err := r.planFor(ctx, userKey, user)
	if err != nil {
		return nil, err
	}

	used, err := r.ledger.SumUsed(ctx, userKey, state.start)
	if err != nil {
		return nil, apperrors.NewLedgerQueryFailedError(err)
	}

	b := models.Balance{
		UserKey:      userKey,
		Plan:         state.plan.ID,
		PlanName:     state.plan.Name,
		Status:       state.status,
		TotalCredits: state.total,
		UsedCredits:  used,
		Features:     append([]string{}, state.plan.Features...),
		PeriodStart:  state.start,
		PeriodEnd:    state.end,
	}
	b.Recompute()
	return &Result{Balance: b, Outcome: OutcomeResolved, Source: state.source}, nil
}

func (r *Resolver) planFor(ctx context.Context, userKey string, user *models.User) (*planState, error) {
	sub, err := r.subs.GetByUser(ctx, userKey)
	if err == nil {
		plan, ok := catalog.PlanByID(sub.PlanID)
		if !ok {
			plan = r.prices.Fallback()
		}
		total := sub.CreditsTotal
		if total <= 0 {
			total = plan.MonthlyCredits
		}
		start, end := rollPeriod(sub.CurrentPeriodStart, sub.CurrentPeriodEnd, r.now())
		return &planState{plan: plan, total: total, status: sub.Status, start: start, end: end, source: SourceSubscription}, nil
	}
	if !errors.Is(err, billing.ErrNotFound) {
		return nil, apperrors.NewLedgerQueryFailedError(err)
	}

	if r.provider != nil {
		c := billing.Customer{UserKey: userKey}
		if user != nil {
			c.CustomerID = user.StripeCustomerID
			c.Email = user.Email
		}
		if c.CustomerID != "" || c.Email != "" {
			ps, err := r.provider.LookupSubscription(ctx, c)
			switch {
			case err == nil:
				plan, _ := r.prices.PlanForPrice(ps.PriceID)
				start, end := rollPeriod(ps.PeriodStart, ps.PeriodEnd, r.now())
				return &planState{plan: plan, total: plan.MonthlyCredits, status: ps.Status, start: start, end: end, source: SourceProvider}, nil
			case !errors.Is(err, billing.ErrNoSubscription):
				return nil, apperrors.NewBillingLookupFailedError(err)
			}
		}
	}

	return r.freeTier(SourceFreeTier), nil
}

func (r *Resolver) freeTier(source Source) *planState {
	start, end := models.MonthWindow(r.now())
	return &planState{
		plan:   catalog.FreePlan,
		total:  r.freeCredits,
		status: models.StatusActive,
		start:  start,
		end:    end,
		source: source,
	}
}

func (r *Resolver) fail(userKey string, cause error) (*Result, error) {
	r.logger.Error("credit resolution failed", map[string]interface{}{
		"userKey":  userKey,
		"failOpen": r.failOpen,
		"error":    cause,
	})

	if !r.failOpen {
		metrics.BalanceResolutions.WithLabelValues(string(OutcomeFailed), "").Inc()
		return &Result{Outcome: OutcomeFailed, Err: cause}, apperrors.NewCreditResolutionFailedError(cause)
	}

	state := r.freeTier(SourceFallback)
	b := models.Balance{
		UserKey:      userKey,
		Plan:         state.plan.ID,
		PlanName:     state.plan.Name,
		Status:       state.status,
		TotalCredits: state.total,
		Features:     append([]string{}, state.plan.Features...),
		PeriodStart:  state.start,
		PeriodEnd:    state.end,
		Degraded:     true,
	}
	b.Recompute()
	metrics.BalanceResolutions.WithLabelValues(string(OutcomeDegraded), string(SourceFallback)).Inc()
	return &Result{Balance: b, Outcome: OutcomeDegraded, Source: SourceFallback, Err: cause}, nil
}

// rollPeriod advances a stored billing period month by month until it
// contains now, so credits reset even when a renewal webhook is late.
func rollPeriod(start, end, now time.Time) (time.Time, time.Time) {
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return models.MonthWindow(now)
	}
	for !now.Before(end) {
		start, end = end, end.AddDate(0, 1, 0)
	}
	return start, end
}
