// internal/workers/credits/resolve-balance/models.go
package resolvebalance

import "careerkit-credits/internal/models"

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Subscription models.Balance `json:"subscription"`
	Degraded     bool           `json:"degraded"`
}
