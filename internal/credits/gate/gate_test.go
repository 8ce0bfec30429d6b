package gate

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/credits/billing"
	"careerkit-credits/internal/credits/ledger"
	"careerkit-credits/internal/credits/resolver"
	"careerkit-credits/internal/models"
	"careerkit-credits/internal/notify"
	"careerkit-credits/pkg/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const userKey = "0b9f6a52-8a53-4c1e-9d56-5d2f1f1f0d11"

type stubSubs struct {
	sub *models.Subscription
	err error
}

func (s *stubSubs) GetByUser(context.Context, string) (*models.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sub == nil {
		return nil, billing.ErrNotFound
	}
	return s.sub, nil
}

func (s *stubSubs) FindUser(context.Context, string) (*models.User, error) {
	return nil, billing.ErrNotFound
}

type recordingIndex struct {
	mu     sync.Mutex
	events []models.UsageEvent
}

func (r *recordingIndex) IndexEvent(_ context.Context, ev models.UsageEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) PaymentFailed(context.Context, notify.PaymentFailure) error { return nil }

type fixture struct {
	gate     *Gate
	subs     *stubSubs
	ledger   *ledger.MemoryStore
	index    *recordingIndex
	notifier *recordingNotifier
}

func newFixture(t *testing.T, failOpen bool) *fixture {
	prices, err := catalog.NewPriceTable(map[string]string{catalog.PlanStandard: "price_std"}, catalog.PlanBasic)
	require.NoError(t, err)

	f := &fixture{
		subs:     &stubSubs{},
		ledger:   ledger.NewMemoryStore(),
		index:    &recordingIndex{},
		notifier: &recordingNotifier{},
	}
	log := logger.NewTestLogger(t)
	res := resolver.New(resolver.Options{
		Subscriptions:   f.subs,
		Prices:          prices,
		Ledger:          f.ledger,
		FreeTierCredits: 3,
		FailOpen:        failOpen,
		Logger:          log,
	})
	f.gate = New(res, f.ledger, f.index, f.notifier, log)
	return f
}

func (f *fixture) subscribe(plan catalog.Plan, status models.SubscriptionStatus) {
	now := time.Now().UTC()
	f.subs.sub = &models.Subscription{
		UserKey: userKey, PlanID: plan.ID, Status: status, CreditsTotal: plan.MonthlyCredits,
		CurrentPeriodStart: now.Add(-24 * time.Hour), CurrentPeriodEnd: now.Add(29 * 24 * time.Hour),
	}
}

func (f *fixture) spend(t *testing.T, credits int) {
	require.NoError(t, f.ledger.Append(context.Background(), models.UsageEvent{
		UserKey: userKey, Feature: catalog.ResumeGeneration, Credits: credits,
	}))
}

func (f *fixture) eventCount(t *testing.T) int {
	events, err := f.ledger.List(context.Background(), userKey, 0)
	require.NoError(t, err)
	return len(events)
}

func standardPlan(t *testing.T) catalog.Plan {
	p, ok := catalog.PlanByID(catalog.PlanStandard)
	require.True(t, ok)
	return p
}

func TestConsume_SuccessDeductsCostAndRecordsOneEvent(t *testing.T) {
	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusActive)
	f.spend(t, 10)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.MockInterview})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 6, res.Cost)
	assert.Equal(t, 50-10-6, res.Remaining)
	assert.Equal(t, 16, res.Balance.UsedCredits)
	require.NotNil(t, res.Event)
	assert.Equal(t, 2, f.eventCount(t))
	assert.Nil(t, res.DenialError())

	require.Len(t, f.index.events, 1)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, notify.EventCreditsUpdated, f.notifier.events[0].Name)
	assert.Equal(t, 34, *f.notifier.events[0].RemainingCredits)
}

func TestConsume_InsufficientCreditsAppendsNothing(t *testing.T) {
	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusActive)
	f.spend(t, 48)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonInsufficientCredits, res.Reason)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 1, f.eventCount(t))
	assert.Empty(t, f.notifier.events)

	denial := res.DenialError()
	require.NotNil(t, denial)
	assert.Equal(t, http.StatusPaymentRequired, apperrors.HTTPStatus(denial.Code))
	assert.Equal(t, 3, denial.Metadata["requiredCredits"])
	assert.Equal(t, 2, denial.Metadata["remainingCredits"])
}

func TestConsume_FreeTier(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.ResumeGeneration})
	require.NoError(t, err)
	assert.False(t, res.Success, "resume generation costs more than the free allotment")
	assert.Equal(t, 3, res.Remaining)

	res, err = f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Remaining)
}

func TestConsume_FreeTierCanUseAnyAffordableFeature(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.SalaryResearch})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Reason)
	assert.Equal(t, 2, res.Cost)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, 1, f.eventCount(t))
}

func TestConsume_FeatureNotInPlanWhenEnforced(t *testing.T) {
	f := newFixture(t, true)
	f.gate.WithPlanEnforcement(true)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.SalaryResearch})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonFeatureNotInPlan, res.Reason)
	assert.Equal(t, apperrors.ErrCodeFeatureNotInPlan, res.DenialError().Code)
	assert.Equal(t, 0, f.eventCount(t))
}

func TestConsume_InactiveSubscription(t *testing.T) {
	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusPastDue)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonSubscriptionInactive, res.Reason)
	assert.Equal(t, 0, f.eventCount(t))
}

func TestConsume_UnknownFeature(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: "time_travel"})
	require.Error(t, err)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(stdErr.Code))
}

func TestConsume_NegativeCostRejected(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter, Cost: -1})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidRequest))
}

func TestConsume_ExplicitCostOverridesCatalog(t *testing.T) {
	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusActive)

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter, Cost: 1})
	require.NoError(t, err)
	assert.Equal(t, 49, res.Remaining)
}

func TestConsume_ResubmissionChargesTwice(t *testing.T) {
	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusActive)
	req := Request{Identifier: userKey, Feature: catalog.SalaryResearch}

	first, err := f.gate.Consume(context.Background(), req)
	require.NoError(t, err)
	second, err := f.gate.Consume(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.Success)
	assert.True(t, second.Success)
	assert.Equal(t, 46, second.Remaining)
	assert.Equal(t, 2, f.eventCount(t))
}

func TestConsume_ConcurrentRequestsCannotOverspend(t *testing.T) {
	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusActive)
	f.spend(t, 45)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.ResumeGeneration})
			if err == nil && res.Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	used, err := f.ledger.SumUsed(context.Background(), userKey, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 50, used)
}

func TestConsume_DegradedResolutionChargesAgainstFreeTier(t *testing.T) {
	f := newFixture(t, true)
	f.subs.err = errors.New("db down")

	res, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Balance.Degraded)
	assert.Equal(t, 0, res.Remaining)
}

func TestConsume_FailedResolutionReturnsError(t *testing.T) {
	f := newFixture(t, false)
	f.subs.err = errors.New("db down")

	_, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCreditResolutionFailed))
	assert.Equal(t, 0, f.eventCount(t))
}

func TestConsume_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	defer otel.SetTracerProvider(prev)

	f := newFixture(t, true)
	f.subscribe(standardPlan(t), models.StatusActive)
	f.spend(t, 48)

	_, err := f.gate.Consume(context.Background(), Request{Identifier: userKey, Feature: catalog.CoverLetter})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "credits.consume", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("reason", ReasonInsufficientCredits))
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("success", false))
}
