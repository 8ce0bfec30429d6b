package models

import "time"

// User links the external auth identifier to the internal user key.
type User struct {
	ID               string    `json:"id"`
	AuthUserID       string    `json:"authUserId"`
	Email            string    `json:"email,omitempty"`
	StripeCustomerID string    `json:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
