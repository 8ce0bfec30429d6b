package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"careerkit-credits/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_ConsumeWithinAllotment(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	res, err := store.ConsumeAtomic(ctx, ConsumeRequest{UserKey: "u", Feature: "resume_generation", Cost: 5, Total: 20, Since: periodStart})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 15, res.Remaining)

	used, err := store.SumUsed(ctx, "u", periodStart)
	require.NoError(t, err)
	assert.Equal(t, 5, used)
}

func TestMemoryStore_DeniedConsumptionAppendsNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	res, err := store.ConsumeAtomic(ctx, ConsumeRequest{UserKey: "u", Feature: "resume_generation", Cost: 5, Total: 3, Since: periodStart})
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)

	events, err := store.List(ctx, "u", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMemoryStore_EventsBeforePeriodIgnored(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, models.UsageEvent{UserKey: "u", Feature: "cover_letter", Credits: 3, CreatedAt: periodStart.Add(-time.Hour)}))
	require.NoError(t, store.Append(ctx, models.UsageEvent{UserKey: "u", Feature: "cover_letter", Credits: 3, CreatedAt: periodStart.Add(time.Hour)}))
	require.NoError(t, store.Append(ctx, models.UsageEvent{UserKey: "other", Feature: "cover_letter", Credits: 3, CreatedAt: periodStart.Add(time.Hour)}))

	used, err := store.SumUsed(ctx, "u", periodStart)
	require.NoError(t, err)
	assert.Equal(t, 3, used)
}

func TestMemoryStore_ClockStampsAcrossPeriodBoundary(t *testing.T) {
	now := periodStart.Add(-time.Minute)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := store.ConsumeAtomic(ctx, ConsumeRequest{UserKey: "u", Feature: "salary_research", Cost: 2, Total: 3, Since: periodStart})
	require.NoError(t, err)

	now = periodStart.Add(time.Minute)
	res, err := store.ConsumeAtomic(ctx, ConsumeRequest{UserKey: "u", Feature: "salary_research", Cost: 2, Total: 3, Since: periodStart})
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	events, err := store.List(ctx, "u", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, periodStart.Add(time.Minute), events[0].CreatedAt)
	assert.Equal(t, periodStart.Add(-time.Minute), events[1].CreatedAt)
}

func TestMemoryStore_ConcurrentConsumersCannotOverspend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.ConsumeAtomic(ctx, ConsumeRequest{UserKey: "u", Feature: "resume_generation", Cost: 5, Total: 5, Since: periodStart})
			if err == nil {
				results <- res.Allowed
			}
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for ok := range results {
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)

	used, _ := store.SumUsed(ctx, "u", periodStart)
	assert.Equal(t, 5, used)
}

func TestMemoryStore_ListNewestFirstWithLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, models.UsageEvent{
			UserKey: "u", Feature: "salary_research", Credits: 2, CreatedAt: periodStart.Add(time.Duration(i) * time.Hour),
		}))
	}

	events, err := store.List(ctx, "u", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].CreatedAt.After(events[1].CreatedAt))
}

func TestMemoryStore_AppendRejectsNonPositiveCredits(t *testing.T) {
	store := NewMemoryStore()
	err := store.Append(context.Background(), models.UsageEvent{UserKey: "u", Feature: "x", Credits: 0})
	assert.ErrorIs(t, err, ErrInvalidCost)
}
