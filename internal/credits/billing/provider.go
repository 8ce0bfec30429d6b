// Package billing mirrors the billing provider's subscription state into the
// subscriptions table and answers plan lookups for users without a row.
package billing

import (
	"context"
	"errors"
	"time"

	"careerkit-credits/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNoSubscription = errors.New("no billable subscription")
)

// Customer identifies a user to the billing provider. Either field may be
// empty; the stored customer reference wins over the email.
type Customer struct {
	UserKey    string
	CustomerID string
	Email      string
}

// ProviderSubscription is the provider's view of a subscription.
type ProviderSubscription struct {
	CustomerID     string
	SubscriptionID string
	PriceID        string
	Status         models.SubscriptionStatus
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// Provider looks up live subscriptions at the billing provider.
type Provider interface {
	// LookupSubscription returns ErrNoSubscription when the customer has
	// nothing billable.
	LookupSubscription(ctx context.Context, customer Customer) (*ProviderSubscription, error)
}
