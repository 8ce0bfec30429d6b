package models

import "time"

// UsageEvent is one successful credit consumption. Events are append-only.
type UsageEvent struct {
	ID        string    `json:"id"`
	UserKey   string    `json:"userKey"`
	Feature   string    `json:"feature"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}
