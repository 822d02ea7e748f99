package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trimline/trimline/internal/domain"
)

func newWaitingEntry(shopID, customerID string, seq int64) *domain.QueueEntry {
	return &domain.QueueEntry{
		ID:          fmt.Sprintf("entry-%s-%d", shopID, seq),
		ShopID:      shopID,
		CustomerID:  customerID,
		ServiceName: "haircut",
		Sequence:    seq,
		Status:      domain.StatusWaiting,
		JoinedAt:    time.Now(),
	}
}

func TestInsertRejectsDuplicateActiveSequence(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-1", "cust-1", 1)))

	dup := newWaitingEntry("shop-1", "cust-2", 1)
	dup.ID = "entry-dup"
	assert.ErrorIs(t, store.Insert(ctx, dup), domain.ErrDuplicateSequence)

	// Same sequence in another shop is fine.
	require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-2", "cust-1", 1)))
}

func TestClaimNextWaitingTakesLowestSequence(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-1", "cust-b", 7)))
	require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-1", "cust-a", 3)))

	claimed, err := store.ClaimNextWaiting(ctx, "shop-1", "prov-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), claimed.Sequence)
	assert.Equal(t, domain.StatusInProgress, claimed.Status)
	require.NotNil(t, claimed.ProviderID)
	assert.Equal(t, "prov-1", *claimed.ProviderID)
	require.NotNil(t, claimed.DispatchedAt)

	claimed, err = store.ClaimNextWaiting(ctx, "shop-1", "prov-2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), claimed.Sequence)

	_, err = store.ClaimNextWaiting(ctx, "shop-1", "prov-3", time.Now())
	assert.ErrorIs(t, err, domain.ErrNoCustomersWaiting)
}

func TestConcurrentClaimsAreDistinct(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-1", fmt.Sprintf("cust-%d", i), int64(i+1))))
	}

	var wg sync.WaitGroup
	claims := make([]*domain.QueueEntry, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := store.ClaimNextWaiting(ctx, "shop-1", fmt.Sprintf("prov-%d", i), time.Now())
			if err == nil {
				claims[i] = entry
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NotNil(t, claims[i], "claim %d failed", i)
		require.False(t, seen[claims[i].ID])
		seen[claims[i].ID] = true
	}
}

func TestUpdateStatusGuardsCurrentStatus(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	entry := newWaitingEntry("shop-1", "cust-1", 1)
	require.NoError(t, store.Insert(ctx, entry))

	_, err := store.UpdateStatus(ctx, entry.ID, domain.StatusInProgress, domain.StatusCompleted, time.Now())
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	updated, err := store.UpdateStatus(ctx, entry.ID, domain.StatusWaiting, domain.StatusCancelled, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	_, err = store.UpdateStatus(ctx, "missing", domain.StatusWaiting, domain.StatusCancelled, time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateNotesOnlyWhileWaiting(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	entry := newWaitingEntry("shop-1", "cust-1", 1)
	require.NoError(t, store.Insert(ctx, entry))

	updated, err := store.UpdateNotes(ctx, entry.ID, "beard trim too")
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "beard trim too", *updated.Notes)

	_, err = store.ClaimNextWaiting(ctx, "shop-1", "prov-1", time.Now())
	require.NoError(t, err)

	_, err = store.UpdateNotes(ctx, entry.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestListWaitingOrdersBySequence(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	for _, seq := range []int64{5, 2, 9, 1} {
		require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-1", fmt.Sprintf("cust-%d", seq), seq)))
	}

	waiting, err := store.ListWaiting(ctx, "shop-1")
	require.NoError(t, err)
	require.Len(t, waiting, 4)
	for i := 1; i < len(waiting); i++ {
		assert.Less(t, waiting[i-1].Sequence, waiting[i].Sequence)
	}

	count, err := store.CountWaiting(ctx, "shop-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestCustomerAndProviderLookups(t *testing.T) {
	store := NewEntryRepository()
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-1", "cust-1", 1)))
	require.NoError(t, store.Insert(ctx, newWaitingEntry("shop-2", "cust-1", 1)))

	active, err := store.GetActiveByCustomer(ctx, "shop-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "shop-1", active.ShopID)

	_, err = store.GetActiveByCustomer(ctx, "shop-1", "cust-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := store.ListActiveByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	claimed, err := store.ClaimNextWaiting(ctx, "shop-1", "prov-1", time.Now())
	require.NoError(t, err)

	current, err := store.GetInProgressByProvider(ctx, "shop-1", "prov-1")
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, current.ID)

	_, err = store.GetInProgressByProvider(ctx, "shop-1", "prov-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSequenceAllocatorIsMonotonicPerShop(t *testing.T) {
	alloc := NewSequenceAllocator()
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	seqs := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := alloc.NextSequence(ctx, "shop-1")
			if err == nil {
				seqs[i] = seq
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for _, seq := range seqs {
		require.Positive(t, seq)
		require.False(t, seen[seq], "sequence %d allocated twice", seq)
		seen[seq] = true
	}

	// Counters are independent per shop.
	seq, err := alloc.NextSequence(ctx, "shop-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}
