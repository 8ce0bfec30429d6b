package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"careerkit-credits/internal/models"

	"github.com/google/uuid"
)

const (
	sumUsedQuery = `SELECT COALESCE(SUM(credits), 0) FROM usage_events WHERE user_key = $1 AND created_at >= $2`
	insertQuery  = `INSERT INTO usage_events (id, user_key, feature, credits, created_at) VALUES ($1, $2, $3, $4, $5)`
	listQuery    = `SELECT id, user_key, feature, credits, created_at FROM usage_events WHERE user_key = $1 ORDER BY created_at DESC LIMIT $2`
	lockQuery    = `SELECT pg_advisory_xact_lock(hashtext($1))`
)

// PostgresStore keeps the ledger in the usage_events table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) SumUsed(ctx context.Context, userKey string, since time.Time) (int, error) {
	var used int
	if err := s.db.QueryRowContext(ctx, sumUsedQuery, userKey, since).Scan(&used); err != nil {
		return 0, fmt.Errorf("sum usage for %s: %w", userKey, err)
	}
	return used, nil
}

func (s *PostgresStore) Append(ctx context.Context, ev models.UsageEvent) error {
	if ev.Credits <= 0 {
		return ErrInvalidCost
	}
	s.stamp(&ev)
	if _, err := s.db.ExecContext(ctx, insertQuery, ev.ID, ev.UserKey, ev.Feature, ev.Credits, ev.CreatedAt); err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

// ConsumeAtomic holds a transaction-scoped advisory lock on the user key
// while it re-sums the period and inserts the event.
func (s *PostgresStore) ConsumeAtomic(ctx context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, lockQuery, req.UserKey); err != nil {
		return nil, fmt.Errorf("lock user %s: %w", req.UserKey, err)
	}

	var used int
	if err := tx.QueryRowContext(ctx, sumUsedQuery, req.UserKey, req.Since).Scan(&used); err != nil {
		return nil, fmt.Errorf("sum usage for %s: %w", req.UserKey, err)
	}

	if used+req.Cost > req.Total {
		return &ConsumeResult{Allowed: false, Used: used, Remaining: remaining(req.Total, used)}, nil
	}

	ev := models.UsageEvent{UserKey: req.UserKey, Feature: req.Feature, Credits: req.Cost}
	s.stamp(&ev)
	if _, err := tx.ExecContext(ctx, insertQuery, ev.ID, ev.UserKey, ev.Feature, ev.Credits, ev.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert usage event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume transaction: %w", err)
	}
	committed = true

	used += req.Cost
	return &ConsumeResult{Allowed: true, Used: used, Remaining: remaining(req.Total, used), Event: &ev}, nil
}

func (s *PostgresStore) List(ctx context.Context, userKey string, limit int) ([]models.UsageEvent, error) {
	rows, err := s.db.QueryContext(ctx, listQuery, userKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage for %s: %w", userKey, err)
	}
	defer rows.Close()

	events := []models.UsageEvent{}
	for rows.Next() {
		var ev models.UsageEvent
		if err := rows.Scan(&ev.ID, &ev.UserKey, &ev.Feature, &ev.Credits, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *PostgresStore) stamp(ev *models.UsageEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
}
