package creditclient

import (
	"context"
	"sync"

	"careerkit-credits/internal/common/logger"
	"careerkit-credits/pkg/catalog"
)

// Event names that trigger a refetch.
const (
	EventCreditsUpdated = "credits-updated"
	EventPaymentSuccess = "payment-success"
)

// Backend is the server side the store mirrors. *Client implements it.
type Backend interface {
	Balance(ctx context.Context) (*Subscription, error)
	Consume(ctx context.Context, feature string, amount int) (*ConsumeResult, error)
}

// Snapshot is a copy of the store state.
type Snapshot struct {
	Loading      bool
	Subscription *Subscription
	Err          error
}

// Store caches one user's balance. It fetches once on Load and again only
// on HandleEvent or after a failed consume; it never polls.
type Store struct {
	backend Backend
	logger  logger.Logger

	mu        sync.RWMutex
	started   bool
	state     Snapshot
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewStore(backend Backend, log logger.Logger) *Store {
	return &Store{
		backend:   backend,
		logger:    log.WithFields(map[string]interface{}{"component": "credit-store"}),
		state:     Snapshot{Loading: true},
		listeners: make(map[int]func(Snapshot)),
	}
}

// Load performs the initial fetch. Later calls are no-ops.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()
	return s.fetch(ctx)
}

// Refresh forces a fetch regardless of earlier loads.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s.fetch(ctx)
}

func (s *Store) fetch(ctx context.Context) error {
	sub, err := s.backend.Balance(ctx)

	s.mu.Lock()
	s.state.Loading = false
	if err != nil {
		s.state.Err = err
	} else {
		s.state.Subscription = sub
		s.state.Err = nil
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("balance fetch failed", map[string]interface{}{"error": err.Error()})
	}
	s.notify(snap)
	return err
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Loading: s.state.Loading, Subscription: s.state.Subscription.clone(), Err: s.state.Err}
}

// HasFeatureAccess reports whether the cached plan includes feature. It
// ignores the remaining balance.
func (s *Store) HasFeatureAccess(feature string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasFeature(s.state.Subscription, feature)
}

// CanUseFeature reports whether one use of feature at its catalog cost is
// affordable on the cached balance.
func (s *Store) CanUseFeature(feature string) bool {
	f, ok := catalog.LookupFeature(feature)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub := s.state.Subscription
	return sub != nil && sub.IsActive && hasFeature(sub, feature) && sub.RemainingCredits >= f.Cost
}

// ConsumeCredit decrements the cached balance at once, then charges on the
// server. On success the server's subscription replaces the cache; on
// failure a forced refetch discards the optimistic decrement.
func (s *Store) ConsumeCredit(ctx context.Context, feature string, amount int) (*ConsumeResult, error) {
	cost := amount
	if cost <= 0 {
		if f, ok := catalog.LookupFeature(feature); ok {
			cost = f.Cost
		}
	}
	s.applyOptimistic(cost)

	res, err := s.backend.Consume(ctx, feature, amount)
	if err != nil {
		s.logger.Warn("consume failed, refetching balance", map[string]interface{}{
			"feature": feature,
			"error":   err.Error(),
		})
		if refreshErr := s.Refresh(ctx); refreshErr != nil {
			s.logger.Error("refetch after failed consume failed", map[string]interface{}{"error": refreshErr.Error()})
		}
		return nil, err
	}

	if res.Subscription != nil {
		s.mu.Lock()
		s.state.Subscription = res.Subscription.clone()
		s.state.Err = nil
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
	}
	return res, nil
}

func (s *Store) applyOptimistic(cost int) {
	s.mu.Lock()
	sub := s.state.Subscription
	if sub == nil || cost <= 0 {
		s.mu.Unlock()
		return
	}
	next := sub.clone()
	next.UsedCredits += cost
	next.RemainingCredits -= cost
	if next.RemainingCredits < 0 {
		next.RemainingCredits = 0
	}
	s.state.Subscription = next
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// UseAIFeature runs apiCall, which is expected to charge server side, and
// reports the outcome through the callbacks. It does not charge itself. A
// successful call is followed by a refetch so the cache sees the charge.
func (s *Store) UseAIFeature(
	ctx context.Context,
	feature string,
	apiCall func(ctx context.Context) (interface{}, error),
	onSuccess func(result interface{}),
	onError func(err error),
) error {
	result, err := apiCall(ctx)
	if err != nil {
		s.logger.Warn("feature call failed", map[string]interface{}{"feature": feature, "error": err.Error()})
		if onError != nil {
			onError(err)
		}
		return err
	}
	if onSuccess != nil {
		onSuccess(result)
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("refetch after feature call failed", map[string]interface{}{"feature": feature})
	}
	return nil
}

// HandleEvent refetches once for credits-updated and payment-success. Other
// names are ignored.
func (s *Store) HandleEvent(ctx context.Context, name string) error {
	switch name {
	case EventCreditsUpdated, EventPaymentSuccess:
		return s.Refresh(ctx)
	default:
		return nil
	}
}

// Subscribe registers fn for every state change and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.RLock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func hasFeature(sub *Subscription, feature string) bool {
	if sub == nil {
		return false
	}
	for _, f := range sub.Features {
		if f == feature {
			return true
		}
	}
	return false
}
