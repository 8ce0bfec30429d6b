package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"careerkit-credits/internal/models"

	"github.com/google/uuid"
)

// SubscriptionStore persists users and their paid subscriptions in Postgres.
// Subscription rows are written only from billing webhooks.
type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `user_key, plan_id, status, credits_total, current_period_start, current_period_end,
	stripe_customer_id, stripe_subscription_id, stripe_price_id, updated_at`

func (s *SubscriptionStore) GetByUser(ctx context.Context, userKey string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_key = $1`

	var sub models.Subscription
	var status string
	err := s.db.QueryRowContext(ctx, query, userKey).Scan(
		&sub.UserKey, &sub.PlanID, &status, &sub.CreditsTotal,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID, &sub.StripePriceID, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get subscription for %s: %w", userKey, err)
	}
	sub.Status = models.SubscriptionStatus(status)
	return &sub, nil
}

// Upsert writes the subscription row for sub.UserKey. A user holds at most
// one paid subscription; a newer subscription id replaces the old one.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub models.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_key) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			credits_total = EXCLUDED.credits_total,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_price_id = EXCLUDED.stripe_price_id,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		sub.UserKey, sub.PlanID, string(sub.Status), sub.CreditsTotal,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.StripeCustomerID, sub.StripeSubscriptionID, sub.StripePriceID,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription for %s: %w", sub.UserKey, err)
	}
	return nil
}

// UpdateStatusByCustomer sets the status of every subscription billed to
// customerID and returns the affected user keys.
func (s *SubscriptionStore) UpdateStatusByCustomer(ctx context.Context, customerID string, status models.SubscriptionStatus) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`UPDATE subscriptions SET status = $2, updated_at = NOW() WHERE stripe_customer_id = $1 RETURNING user_key`,
		customerID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("update status for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteByStripeID removes a canceled subscription; the user falls back to
// the free tier.
func (s *SubscriptionStore) DeleteByStripeID(ctx context.Context, subscriptionID string) (string, error) {
	var userKey string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM subscriptions WHERE stripe_subscription_id = $1 RETURNING user_key`,
		subscriptionID,
	).Scan(&userKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("delete subscription %s: %w", subscriptionID, err)
	}
	return userKey, nil
}

// UpsertUser records the external auth identity and returns the internal user.
func (s *SubscriptionStore) UpsertUser(ctx context.Context, authUserID, email string) (*models.User, error) {
	query := `
		INSERT INTO users (id, auth_user_id, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (auth_user_id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			updated_at = NOW()
		RETURNING id, auth_user_id, email, stripe_customer_id, created_at`

	var u models.User
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), authUserID, email).Scan(
		&u.ID, &u.AuthUserID, &u.Email, &u.StripeCustomerID, &u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", authUserID, err)
	}
	return &u, nil
}

// FindUser looks a user up by internal id or by external auth id.
func (s *SubscriptionStore) FindUser(ctx context.Context, ref string) (*models.User, error) {
	query := `SELECT id, auth_user_id, email, stripe_customer_id, created_at FROM users WHERE auth_user_id = $1`
	if _, err := uuid.Parse(ref); err == nil {
		query = `SELECT id, auth_user_id, email, stripe_customer_id, created_at FROM users WHERE id = $1`
	}

	var u models.User
	err := s.db.QueryRowContext(ctx, query, ref).Scan(&u.ID, &u.AuthUserID, &u.Email, &u.StripeCustomerID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user %s: %w", ref, err)
	}
	return &u, nil
}

// LinkCustomer stores the billing customer on the user referenced by
// userRef, creating the user row when only the auth id is known.
func (s *SubscriptionStore) LinkCustomer(ctx context.Context, userRef, customerID string) (string, error) {
	if _, err := uuid.Parse(userRef); err == nil {
		var id string
		err := s.db.QueryRowContext(ctx,
			`UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1 RETURNING id`,
			userRef, customerID,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("link customer %s: %w", customerID, err)
		}
	}

	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, auth_user_id, stripe_customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (auth_user_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = NOW()
		RETURNING id`,
		uuid.NewString(), userRef, customerID,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("link customer %s: %w", customerID, err)
	}
	return id, nil
}

// UserKeyByCustomer maps a billing customer back to a user key.
func (s *SubscriptionStore) UserKeyByCustomer(ctx context.Context, customerID string) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx,
		`SELECT id::text FROM users WHERE stripe_customer_id = $1
		 UNION ALL
		 SELECT user_key FROM subscriptions WHERE stripe_customer_id = $1
		 LIMIT 1`,
		customerID,
	).Scan(&key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("find user for customer %s: %w", customerID, err)
	}
	return key, nil
}
