package billing

import (
	"context"
	"fmt"
	"time"

	"careerkit-credits/internal/models"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

// stripeAPI is the slice of the Stripe API the provider calls.
type stripeAPI interface {
	FindCustomerIDByEmail(ctx context.Context, email string) (string, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api stripeAPI
}

func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{api: liveStripe{}}
}

func newStripeProviderWithAPI(api stripeAPI) *StripeProvider {
	return &StripeProvider{api: api}
}

// LookupSubscription picks the newest subscription in a status that still
// bills the customer.
func (p *StripeProvider) LookupSubscription(ctx context.Context, c Customer) (*ProviderSubscription, error) {
	customerID := c.CustomerID
	if customerID == "" {
		if c.Email == "" {
			return nil, ErrNoSubscription
		}
		id, err := p.api.FindCustomerIDByEmail(ctx, c.Email)
		if err != nil {
			return nil, fmt.Errorf("find stripe customer: %w", err)
		}
		if id == "" {
			return nil, ErrNoSubscription
		}
		customerID = id
	}

	subs, err := p.api.ListSubscriptions(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list stripe subscriptions: %w", err)
	}

	var best *stripe.Subscription
	for _, s := range subs {
		switch s.Status {
		case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
		default:
			continue
		}
		if best == nil || s.Created > best.Created {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNoSubscription
	}

	ps := FromStripe(best)
	if ps.CustomerID == "" {
		ps.CustomerID = customerID
	}
	return ps, nil
}

// FetchSubscription loads one subscription by id.
func (p *StripeProvider) FetchSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return p.api.GetSubscription(ctx, subscriptionID)
}

// FromStripe flattens a Stripe subscription. The period comes from the first
// item; a subscription without items gets the current UTC month.
func FromStripe(s *stripe.Subscription) *ProviderSubscription {
	ps := &ProviderSubscription{
		SubscriptionID: s.ID,
		Status:         models.NormalizeStatus(string(s.Status)),
	}
	if s.Customer != nil {
		ps.CustomerID = s.Customer.ID
	}

	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			ps.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			ps.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		}
		if item.CurrentPeriodEnd > 0 {
			ps.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}
	if ps.PeriodStart.IsZero() || ps.PeriodEnd.IsZero() {
		ps.PeriodStart, ps.PeriodEnd = models.MonthWindow(time.Now())
	}
	return ps
}

type liveStripe struct{}

func (liveStripe) FindCustomerIDByEmail(ctx context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := customer.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	return "", iter.Err()
}

func (liveStripe) ListSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx

	var subs []*stripe.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	return subs, iter.Err()
}

func (liveStripe) GetSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(subscriptionID, params)
}
