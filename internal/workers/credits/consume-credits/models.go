// internal/workers/credits/consume-credits/models.go
package consumecredits

import "careerkit-credits/internal/models"

type Input struct {
	UserID  string `json:"userId"`
	Feature string `json:"feature"`
	Amount  int    `json:"amount,omitempty"`
}

type Output struct {
	Success          bool           `json:"success"`
	Feature          string         `json:"feature"`
	CreditsCharged   int            `json:"creditsCharged"`
	RemainingCredits int            `json:"remainingCredits"`
	UsageEventID     string         `json:"usageEventId,omitempty"`
	Subscription     models.Balance `json:"subscription"`
}
