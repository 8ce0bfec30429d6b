package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"careerkit-credits/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process ledger for tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	events []models.UsageEvent
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// WithClock replaces the time source used to stamp new events.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) SumUsed(_ context.Context, userKey string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sumLocked(userKey, since), nil
}

func (m *MemoryStore) sumLocked(userKey string, since time.Time) int {
	used := 0
	for _, ev := range m.events {
		if ev.UserKey == userKey && !ev.CreatedAt.Before(since) {
			used += ev.Credits
		}
	}
	return used
}

func (m *MemoryStore) Append(_ context.Context, ev models.UsageEvent) error {
	if ev.Credits <= 0 {
		return ErrInvalidCost
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(&ev)
	return nil
}

func (m *MemoryStore) appendLocked(ev *models.UsageEvent) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now().UTC()
	}
	m.events = append(m.events, *ev)
}

func (m *MemoryStore) ConsumeAtomic(_ context.Context, req ConsumeRequest) (*ConsumeResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.sumLocked(req.UserKey, req.Since)
	if used+req.Cost > req.Total {
		return &ConsumeResult{Allowed: false, Used: used, Remaining: remaining(req.Total, used)}, nil
	}

	ev := models.UsageEvent{UserKey: req.UserKey, Feature: req.Feature, Credits: req.Cost}
	m.appendLocked(&ev)
	used += req.Cost
	return &ConsumeResult{Allowed: true, Used: used, Remaining: remaining(req.Total, used), Event: &ev}, nil
}

func (m *MemoryStore) List(_ context.Context, userKey string, limit int) ([]models.UsageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.UsageEvent{}
	for _, ev := range m.events {
		if ev.UserKey == userKey {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
