package models

import "time"

type SubscriptionStatus string

const (
	StatusActive     SubscriptionStatus = "active"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusInactive   SubscriptionStatus = "inactive"
	StatusCanceled   SubscriptionStatus = "canceled"
)

// GrantsAccess reports whether credits may be spent in this status.
func (s SubscriptionStatus) GrantsAccess() bool {
	return s == StatusActive || s == StatusTrialing
}

// NormalizeStatus folds provider statuses into the ones the service tracks.
func NormalizeStatus(raw string) SubscriptionStatus {
	switch SubscriptionStatus(raw) {
	case StatusActive, StatusTrialing, StatusPastDue, StatusIncomplete, StatusCanceled:
		return SubscriptionStatus(raw)
	case "unpaid":
		return StatusPastDue
	case "incomplete_expired", "paused":
		return StatusInactive
	default:
		return StatusInactive
	}
}

// Subscription is the stored paid subscription of one user. Used credits are
// not stored here; they are summed from the usage ledger.
type Subscription struct {
	UserKey              string             `json:"userKey"`
	PlanID               string             `json:"planId"`
	Status               SubscriptionStatus `json:"status"`
	CreditsTotal         int                `json:"creditsTotal"`
	CurrentPeriodStart   time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time          `json:"currentPeriodEnd"`
	StripeCustomerID     string             `json:"stripeCustomerId,omitempty"`
	StripeSubscriptionID string             `json:"stripeSubscriptionId,omitempty"`
	StripePriceID        string             `json:"stripePriceId,omitempty"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// MonthWindow returns the UTC calendar month containing now. Free tier
// credits reset on this window.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
