// Package ledger records credit consumption as append-only usage events and
// answers how many credits a user has spent in a billing period.
package ledger

import (
	"context"
	"errors"
	"time"

	"careerkit-credits/internal/models"
)

var ErrInvalidCost = errors.New("credit cost must be positive")

// Store is the usage ledger.
type Store interface {
	// SumUsed returns the credits consumed by userKey since the given instant.
	SumUsed(ctx context.Context, userKey string, since time.Time) (int, error)
	// Append records a usage event unconditionally.
	Append(ctx context.Context, ev models.UsageEvent) error
	// ConsumeAtomic checks the period total and appends the event as one
	// step. Concurrent calls for the same user are serialised.
	ConsumeAtomic(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error)
	// List returns the newest events of userKey first.
	List(ctx context.Context, userKey string, limit int) ([]models.UsageEvent, error)
}

// ConsumeRequest charges Cost credits against a period allotment of Total.
type ConsumeRequest struct {
	UserKey string
	Feature string
	Cost    int
	Total   int
	Since   time.Time
}

// ConsumeResult reports the ledger state after a consumption attempt. Used
// and Remaining include the charge when Allowed is true.
type ConsumeResult struct {
	Allowed   bool
	Used      int
	Remaining int
	Event     *models.UsageEvent
}

func remaining(total, used int) int {
	if used >= total {
		return 0
	}
	return total - used
}

func validate(req ConsumeRequest) error {
	if req.Cost <= 0 {
		return ErrInvalidCost
	}
	if req.UserKey == "" {
		return errors.New("user key is required")
	}
	return nil
}
