package models

import "time"

// Balance is the resolved credit position of a user for the current period.
type Balance struct {
	UserKey          string             `json:"userKey"`
	Plan             string             `json:"plan"`
	PlanName         string             `json:"planName"`
	Status           SubscriptionStatus `json:"status"`
	TotalCredits     int                `json:"totalCredits"`
	UsedCredits      int                `json:"usedCredits"`
	RemainingCredits int                `json:"remainingCredits"`
	IsActive         bool               `json:"isActive"`
	Features         []string           `json:"features"`
	PeriodStart      time.Time          `json:"periodStart"`
	PeriodEnd        time.Time          `json:"periodEnd"`
	Degraded         bool               `json:"degraded"`
}

// Recompute derives remaining credits and the active flag from the totals.
func (b *Balance) Recompute() {
	b.RemainingCredits = b.TotalCredits - b.UsedCredits
	if b.RemainingCredits < 0 {
		b.RemainingCredits = 0
	}
	b.IsActive = b.Status.GrantsAccess() && b.RemainingCredits >= 0
}
