// Package gate charges credits for a feature after checking plan access,
// subscription status and the remaining balance.
package gate

import (
	"context"
	"fmt"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/metrics"
	"careerkit-credits/internal/credits/ledger"
	"careerkit-credits/internal/credits/resolver"
	"careerkit-credits/internal/models"
	"careerkit-credits/internal/notify"
	"careerkit-credits/pkg/catalog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Denial reasons.
const (
	ReasonInsufficientCredits  = "insufficient_credits"
	ReasonFeatureNotInPlan     = "feature_not_in_plan"
	ReasonSubscriptionInactive = "subscription_inactive"
)

type BalanceResolver interface {
	Resolve(ctx context.Context, identifier string) (*resolver.Result, error)
	Invalidate(ctx context.Context, userKey string) error
}

type EventIndexer interface {
	IndexEvent(ctx context.Context, ev models.UsageEvent) error
}

// Request charges Feature for the user. Cost 0 means the catalog cost.
type Request struct {
	Identifier string
	Feature    string
	Cost       int
}

// Result is the outcome of one consumption attempt. Balance reflects the
// state after the attempt.
type Result struct {
	Success   bool
	Feature   string
	Cost      int
	Remaining int
	Reason    string
	Balance   models.Balance
	Event     *models.UsageEvent
}

// DenialError returns the typed error for a denied attempt, nil on success.
func (r *Result) DenialError() *apperrors.StandardError {
	switch r.Reason {
	case ReasonInsufficientCredits:
		return apperrors.NewInsufficientCreditsError(r.Feature, r.Cost, r.Remaining)
	case ReasonFeatureNotInPlan:
		return apperrors.NewFeatureNotInPlanError(r.Feature, r.Balance.Plan)
	case ReasonSubscriptionInactive:
		return apperrors.NewSubscriptionInactiveError(string(r.Balance.Status))
	}
	return nil
}

type Gate struct {
	resolver BalanceResolver
	ledger   ledger.Store
	index    EventIndexer
	notifier notify.Notifier
	logger   logger.Logger

	enforcePlan bool
}

// New builds a gate. index and notifier may be nil.
func New(res BalanceResolver, store ledger.Store, index EventIndexer, notifier notify.Notifier, log logger.Logger) *Gate {
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	return &Gate{
		resolver: res,
		ledger:   store,
		index:    index,
		notifier: notifier,
		logger:   log.WithFields(map[string]interface{}{"component": "credit-gate"}),
	}
}

// WithPlanEnforcement makes Consume refuse features outside the caller's plan.
// Off by default: plan access is a client-side concern and the server only
// checks subscription status and balance.
func (g *Gate) WithPlanEnforcement(on bool) *Gate {
	g.enforcePlan = on
	return g
}

// Consume charges the feature cost. Retrying the same request charges again;
// callers that need at-most-once semantics must not resubmit.
func (g *Gate) Consume(ctx context.Context, req Request) (out *Result, err error) {
	ctx, span := otel.Tracer("careerkit-credits/gate").Start(ctx, "credits.consume")
	defer func() {
		span.SetAttributes(attribute.String("feature", req.Feature))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if out != nil {
			span.SetAttributes(
				attribute.Bool("success", out.Success),
				attribute.Int("cost", out.Cost),
				attribute.Int("remaining", out.Remaining),
			)
			if out.Reason != "" {
				span.SetAttributes(attribute.String("reason", out.Reason))
			}
		}
		span.End()
	}()

	feature, ok := catalog.LookupFeature(req.Feature)
	if !ok {
		return nil, apperrors.NewUnknownFeatureError(req.Feature)
	}
	cost := req.Cost
	if cost == 0 {
		cost = feature.Cost
	}
	if cost < 0 {
		return nil, apperrors.NewInvalidRequestError(fmt.Sprintf("cost must be positive, got %d", cost))
	}

	resolved, err := g.resolver.Resolve(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	if resolved.Outcome == resolver.OutcomeDegraded {
		g.logger.Warn("charging against degraded balance", map[string]interface{}{
			"userKey": resolved.Balance.UserKey,
			"cause":   resolved.Err,
		})
	}

	bal := resolved.Balance
	result := &Result{Feature: feature.Name, Cost: cost, Remaining: bal.RemainingCredits, Balance: bal}

	if g.enforcePlan && !hasFeature(bal, feature.Name) {
		return g.deny(result, ReasonFeatureNotInPlan), nil
	}
	if !bal.Status.GrantsAccess() {
		return g.deny(result, ReasonSubscriptionInactive), nil
	}

	res, err := g.ledger.ConsumeAtomic(ctx, ledger.ConsumeRequest{
		UserKey: bal.UserKey,
		Feature: feature.Name,
		Cost:    cost,
		Total:   bal.TotalCredits,
		Since:   bal.PeriodStart,
	})
	if err != nil {
		return nil, apperrors.NewLedgerWriteFailedError(err)
	}

	result.Balance.UsedCredits = res.Used
	result.Balance.Recompute()
	result.Remaining = res.Remaining

	if !res.Allowed {
		return g.deny(result, ReasonInsufficientCredits), nil
	}

	result.Success = true
	result.Event = res.Event
	g.afterCharge(ctx, result)
	return result, nil
}

func (g *Gate) deny(r *Result, reason string) *Result {
	r.Success = false
	r.Reason = reason
	metrics.ConsumptionsDenied.WithLabelValues(r.Feature, reason).Inc()
	g.logger.Info("consumption denied", map[string]interface{}{
		"userKey":   r.Balance.UserKey,
		"feature":   r.Feature,
		"cost":      r.Cost,
		"remaining": r.Remaining,
		"reason":    reason,
	})
	return r
}

// afterCharge runs the side effects of a successful charge. None of them
// can undo the charge; failures are logged.
func (g *Gate) afterCharge(ctx context.Context, r *Result) {
	userKey := r.Balance.UserKey
	metrics.CreditsConsumed.WithLabelValues(r.Feature, r.Balance.Plan).Add(float64(r.Cost))

	if err := g.resolver.Invalidate(ctx, userKey); err != nil {
		g.logger.Warn("balance cache invalidation failed", map[string]interface{}{"userKey": userKey, "error": err})
	}

	if g.index != nil && r.Event != nil {
		if err := g.index.IndexEvent(ctx, *r.Event); err != nil {
			g.logger.Warn("usage event indexing failed", map[string]interface{}{"eventId": r.Event.ID, "error": err})
		}
	}

	remaining := r.Remaining
	err := g.notifier.Publish(ctx, notify.Event{
		Name:             notify.EventCreditsUpdated,
		UserKey:          userKey,
		Feature:          r.Feature,
		Credits:          r.Cost,
		RemainingCredits: &remaining,
		Plan:             r.Balance.Plan,
	})
	if err != nil {
		g.logger.Warn("credits-updated publish failed", map[string]interface{}{"userKey": userKey, "error": err})
	}

	g.logger.Info("credits consumed", map[string]interface{}{
		"userKey":   userKey,
		"feature":   r.Feature,
		"cost":      r.Cost,
		"remaining": r.Remaining,
	})
}

func hasFeature(b models.Balance, feature string) bool {
	for _, f := range b.Features {
		if f == feature {
			return true
		}
	}
	return false
}
