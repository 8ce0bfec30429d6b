package billing

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/metrics"
	"careerkit-credits/internal/models"
	"careerkit-credits/internal/notify"
	"careerkit-credits/pkg/catalog"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Repository is the storage the webhook processor mutates.
type Repository interface {
	Upsert(ctx context.Context, sub models.Subscription) error
	UpdateStatusByCustomer(ctx context.Context, customerID string, status models.SubscriptionStatus) ([]string, error)
	DeleteByStripeID(ctx context.Context, subscriptionID string) (string, error)
	LinkCustomer(ctx context.Context, userRef, customerID string) (string, error)
	UserKeyByCustomer(ctx context.Context, customerID string) (string, error)
	FindUser(ctx context.Context, ref string) (*models.User, error)
}

// Invalidator drops cached balances after the subscription changes.
type Invalidator interface {
	Invalidate(ctx context.Context, userKey string) error
}

// SubscriptionFetcher loads a full subscription when an event only carries
// its id.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// WebhookResult reports what an event changed.
type WebhookResult struct {
	EventID   string   `json:"eventId"`
	EventType string   `json:"eventType"`
	Handled   bool     `json:"handled"`
	UserKeys  []string `json:"userKeys,omitempty"`
}

type WebhookProcessor struct {
	secret   string
	repo     Repository
	prices   *catalog.PriceTable
	cache    Invalidator
	fetcher  SubscriptionFetcher
	notifier notify.Notifier
	logger   logger.Logger
}

type WebhookOptions struct {
	Secret   string
	Repo     Repository
	Prices   *catalog.PriceTable
	Cache    Invalidator
	Fetcher  SubscriptionFetcher
	Notifier notify.Notifier
	Logger   logger.Logger
}

func NewWebhookProcessor(opts WebhookOptions) *WebhookProcessor {
	n := opts.Notifier
	if n == nil {
		n = notify.NoOp{}
	}
	return &WebhookProcessor{
		secret:   opts.Secret,
		repo:     opts.Repo,
		prices:   opts.Prices,
		cache:    opts.Cache,
		fetcher:  opts.Fetcher,
		notifier: n,
		logger:   opts.Logger.WithFields(map[string]interface{}{"component": "billing-webhook"}),
	}
}

// Process verifies the signature header and applies the event. Event types
// the service does not track are acknowledged with Handled=false.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return nil, apperrors.NewWebhookSignatureError(err)
	}

	eventType := string(event.Type)
	result := &WebhookResult{EventID: event.ID, EventType: eventType}

	var keys []string
	switch eventType {
	case "checkout.session.completed":
		keys, err = p.checkoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		keys, err = p.subscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		keys, err = p.subscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded", "invoice.paid":
		keys, err = p.invoicePaid(ctx, event)
	case "invoice.payment_failed":
		keys, err = p.invoiceFailed(ctx, event)
	default:
		metrics.WebhookEvents.WithLabelValues(eventType, "ignored").Inc()
		p.logger.Debug("webhook event ignored", map[string]interface{}{"eventType": eventType})
		return result, nil
	}
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(eventType, "failed").Inc()
		p.logger.Error("webhook event failed", map[string]interface{}{
			"eventId":   event.ID,
			"eventType": eventType,
			"error":     err,
		})
		return nil, err
	}

	result.Handled = true
	result.UserKeys = keys
	for _, key := range keys {
		p.invalidate(ctx, key)
	}
	metrics.WebhookEvents.WithLabelValues(eventType, "handled").Inc()
	p.logger.Info("webhook event applied", map[string]interface{}{
		"eventId":   event.ID,
		"eventType": eventType,
		"users":     len(keys),
	})
	return result, nil
}

func (p *WebhookProcessor) checkoutCompleted(ctx context.Context, event stripe.Event) ([]string, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperrors.NewWebhookPayloadError(string(event.Type), err)
	}

	userRef := sess.ClientReferenceID
	if userRef == "" {
		userRef = sess.Metadata["user_id"]
	}
	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if userRef == "" || customerID == "" {
		return nil, apperrors.NewWebhookPayloadError(string(event.Type), errors.New("session has no user reference or customer"))
	}

	userKey, err := p.repo.LinkCustomer(ctx, userRef, customerID)
	if err != nil {
		return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
	}

	if sess.Subscription != nil && sess.Subscription.ID != "" && p.fetcher != nil {
		sub, err := p.fetcher.FetchSubscription(ctx, sess.Subscription.ID)
		if err != nil {
			// customer.subscription.created carries the same data.
			p.logger.Warn("checkout subscription fetch failed", map[string]interface{}{
				"subscriptionId": sess.Subscription.ID,
				"error":          err,
			})
		} else if err := p.repo.Upsert(ctx, p.toModel(FromStripe(sub), userKey)); err != nil {
			return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
		}
	}

	p.publish(ctx, notify.EventPaymentSuccess, userKey)
	return []string{userKey}, nil
}

func (p *WebhookProcessor) subscriptionChanged(ctx context.Context, event stripe.Event) ([]string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, apperrors.NewWebhookPayloadError(string(event.Type), err)
	}
	ps := FromStripe(&sub)
	if ps.CustomerID == "" {
		return nil, apperrors.NewWebhookPayloadError(string(event.Type), errors.New("subscription has no customer"))
	}

	userKey, err := p.userForSubscription(ctx, &sub, ps.CustomerID)
	if err != nil {
		return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
	}

	if ps.Status == models.StatusCanceled {
		if _, err := p.repo.DeleteByStripeID(ctx, ps.SubscriptionID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
		}
	} else if err := p.repo.Upsert(ctx, p.toModel(ps, userKey)); err != nil {
		return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
	}

	p.publish(ctx, notify.EventCreditsUpdated, userKey)
	return []string{userKey}, nil
}

func (p *WebhookProcessor) subscriptionDeleted(ctx context.Context, event stripe.Event) ([]string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, apperrors.NewWebhookPayloadError(string(event.Type), err)
	}

	userKey, err := p.repo.DeleteByStripeID(ctx, sub.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
	}

	p.publish(ctx, notify.EventCreditsUpdated, userKey)
	return []string{userKey}, nil
}

func (p *WebhookProcessor) invoicePaid(ctx context.Context, event stripe.Event) ([]string, error) {
	inv, err := decodeInvoice(event)
	if err != nil {
		return nil, err
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		return nil, nil
	}

	keys, err := p.repo.UpdateStatusByCustomer(ctx, inv.Customer.ID, models.StatusActive)
	if err != nil {
		return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
	}
	for _, key := range keys {
		p.publish(ctx, notify.EventPaymentSuccess, key)
	}
	return keys, nil
}

func (p *WebhookProcessor) invoiceFailed(ctx context.Context, event stripe.Event) ([]string, error) {
	inv, err := decodeInvoice(event)
	if err != nil {
		return nil, err
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		return nil, nil
	}

	keys, err := p.repo.UpdateStatusByCustomer(ctx, inv.Customer.ID, models.StatusPastDue)
	if err != nil {
		return nil, apperrors.NewSubscriptionSyncFailedError(string(event.Type), err)
	}

	for _, key := range keys {
		email := inv.CustomerEmail
		if email == "" {
			if u, err := p.repo.FindUser(ctx, key); err == nil {
				email = u.Email
			}
		}
		err := p.notifier.PaymentFailed(ctx, notify.PaymentFailure{
			UserKey:    key,
			Email:      email,
			CustomerID: inv.Customer.ID,
			AmountDue:  inv.AmountDue,
			Currency:   string(inv.Currency),
		})
		if err != nil {
			p.logger.Warn("payment failure notification not sent", map[string]interface{}{
				"userKey": key,
				"error":   err,
			})
		}
		p.publish(ctx, notify.EventCreditsUpdated, key)
	}
	return keys, nil
}

func decodeInvoice(event stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, apperrors.NewWebhookPayloadError(string(event.Type), err)
	}
	return &inv, nil
}

// userForSubscription prefers the user id stamped into the subscription
// metadata at checkout, then the customer link.
func (p *WebhookProcessor) userForSubscription(ctx context.Context, sub *stripe.Subscription, customerID string) (string, error) {
	if ref := sub.Metadata["user_id"]; ref != "" {
		return p.repo.LinkCustomer(ctx, ref, customerID)
	}
	return p.repo.UserKeyByCustomer(ctx, customerID)
}

func (p *WebhookProcessor) toModel(ps *ProviderSubscription, userKey string) models.Subscription {
	plan, known := p.prices.PlanForPrice(ps.PriceID)
	if !known {
		p.logger.Warn("unknown price id, using fallback plan", map[string]interface{}{
			"priceId": ps.PriceID,
			"plan":    plan.ID,
		})
	}
	return models.Subscription{
		UserKey:              userKey,
		PlanID:               plan.ID,
		Status:               ps.Status,
		CreditsTotal:         plan.MonthlyCredits,
		CurrentPeriodStart:   ps.PeriodStart,
		CurrentPeriodEnd:     ps.PeriodEnd,
		StripeCustomerID:     ps.CustomerID,
		StripeSubscriptionID: ps.SubscriptionID,
		StripePriceID:        ps.PriceID,
	}
}

func (p *WebhookProcessor) invalidate(ctx context.Context, userKey string) {
	if p.cache == nil || userKey == "" {
		return
	}
	if err := p.cache.Invalidate(ctx, userKey); err != nil {
		p.logger.Warn("balance cache invalidation failed", map[string]interface{}{
			"userKey": userKey,
			"error":   err,
		})
	}
}

func (p *WebhookProcessor) publish(ctx context.Context, name, userKey string) {
	if err := p.notifier.Publish(ctx, notify.Event{Name: name, UserKey: userKey}); err != nil {
		p.logger.Warn("event publish failed", map[string]interface{}{
			"event":   name,
			"userKey": userKey,
			"error":   err,
		})
	}
}
