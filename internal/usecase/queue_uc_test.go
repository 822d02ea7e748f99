package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/internal/repository/memory"
)

const testShopID = "shop-1"

// captureNotifier records published events for assertions.
type captureNotifier struct {
	mu     sync.Mutex
	events []domain.QueueEvent
}

func (n *captureNotifier) Publish(ctx context.Context, event domain.QueueEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *captureNotifier) byType(eventType string) []domain.QueueEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.QueueEvent
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type engineFixture struct {
	uc       domain.QueueUsecase
	entries  domain.EntryStore
	shops    interface {
		PutQueueConfig(cfg domain.ShopQueueConfig)
	}
	notifier *captureNotifier
}

func newEngine(t *testing.T, cfg domain.ShopQueueConfig) *engineFixture {
	t.Helper()

	entries := memory.NewEntryRepository()
	shops := memory.NewShopRepository()
	shops.PutQueueConfig(cfg)
	notifier := &captureNotifier{}

	uc := NewQueueUsecase(entries, memory.NewSequenceAllocator(), shops, notifier, QueueUsecaseConfig{})
	return &engineFixture{uc: uc, entries: entries, shops: shops, notifier: notifier}
}

func defaultShop() domain.ShopQueueConfig {
	return domain.ShopQueueConfig{
		ShopID:                testShopID,
		Name:                  "Test Shop",
		AverageServiceMinutes: 15,
		MaxQueueSize:          0,
		IsAccepting:           true,
	}
}

func haircut() domain.ServiceRequest {
	return domain.ServiceRequest{Name: "haircut", Price: 25, Duration: 30}
}

func TestJoinAssignsIncreasingSequences(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		ranked, err := f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		require.NoError(t, err)
		assert.Greater(t, ranked.Entry.Sequence, last)
		assert.Equal(t, i+1, ranked.Rank)
		assert.Equal(t, (i+1)*15, ranked.EtaMinutes)
		last = ranked.Entry.Sequence
	}
}

func TestConcurrentJoinsGetUniqueSequences(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	const customers = 100

	var wg sync.WaitGroup
	results := make([]*domain.RankedEntry, customers)
	errs := make([]error, customers)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]string, customers)
	for i := 0; i < customers; i++ {
		require.NoError(t, errs[i])
		seq := results[i].Entry.Sequence
		prev, dup := seen[seq]
		require.False(t, dup, "sequence %d assigned to both %s and %s", seq, prev, results[i].Entry.ID)
		seen[seq] = results[i].Entry.ID
	}

	count, err := f.entries.CountWaiting(ctx, testShopID)
	require.NoError(t, err)
	assert.Equal(t, customers, count)
}

func TestJoinRejectsSecondActiveEntry(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	_, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)

	_, err = f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)

	// Dispatched customers still count as active.
	_, err = f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)
	_, err = f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	assert.ErrorIs(t, err, domain.ErrAlreadyQueued)
}

func TestJoinRespectsCapacityAndAccepting(t *testing.T) {
	cfg := defaultShop()
	cfg.MaxQueueSize = 2
	f := newEngine(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		require.NoError(t, err)
	}
	_, err := f.uc.Join(ctx, testShopID, "cust-late", haircut(), "")
	assert.ErrorIs(t, err, domain.ErrQueueFull)

	closed := defaultShop()
	closed.ShopID = "shop-closed"
	closed.IsAccepting = false
	f.shops.PutQueueConfig(closed)
	_, err = f.uc.Join(ctx, "shop-closed", "cust-1", haircut(), "")
	assert.ErrorIs(t, err, domain.ErrNotAccepting)
}

func TestJoinUnknownShop(t *testing.T) {
	f := newEngine(t, defaultShop())

	_, err := f.uc.Join(context.Background(), "nope", "cust-1", haircut(), "")
	assert.ErrorIs(t, err, domain.ErrShopNotFound)
}

func TestCallNextDispatchesInFIFOOrder(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	var joined []string
	for i := 0; i < 5; i++ {
		ranked, err := f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		require.NoError(t, err)
		joined = append(joined, ranked.Entry.ID)
	}

	for i := 0; i < 5; i++ {
		claimed, err := f.uc.CallNext(ctx, testShopID, fmt.Sprintf("prov-%d", i))
		require.NoError(t, err)
		assert.Equal(t, joined[i], claimed.ID)
		assert.Equal(t, domain.StatusInProgress, claimed.Status)
		require.NotNil(t, claimed.DispatchedAt)
	}

	_, err := f.uc.CallNext(ctx, testShopID, "prov-extra")
	assert.ErrorIs(t, err, domain.ErrNoCustomersWaiting)
}

func TestConcurrentCallNextClaimsDistinctEntries(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	const waiting = 20
	for i := 0; i < waiting; i++ {
		_, err := f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	claims := make([]*domain.QueueEntry, waiting)
	errs := make([]error, waiting)
	for i := 0; i < waiting; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claims[i], errs[i] = f.uc.CallNext(ctx, testShopID, fmt.Sprintf("prov-%d", i))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, waiting)
	for i := 0; i < waiting; i++ {
		require.NoError(t, errs[i])
		require.False(t, seen[claims[i].ID], "entry %s claimed twice", claims[i].ID)
		seen[claims[i].ID] = true
	}

	count, err := f.entries.CountWaiting(ctx, testShopID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCallNextAutoCompletesCurrentCustomer(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	first, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)
	_, err = f.uc.Join(ctx, testShopID, "cust-2", haircut(), "")
	require.NoError(t, err)

	claimed, err := f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, first.Entry.ID, claimed.ID)

	// Second call by the same provider finishes cust-1 and claims cust-2.
	next, err := f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-2", next.CustomerID)

	done, err := f.entries.GetByID(ctx, first.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	assert.Len(t, f.notifier.byType(domain.EventCustomerCompleted), 1)
	assert.Len(t, f.notifier.byType(domain.EventCustomerDispatched), 2)
}

func TestLeaveCancelsAndPreservesOrderOfOthers(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	var entries []*domain.RankedEntry
	for i := 0; i < 3; i++ {
		ranked, err := f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		require.NoError(t, err)
		entries = append(entries, ranked)
	}

	left, err := f.uc.Leave(ctx, entries[1].Entry.ID, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, left.Status)
	require.NotNil(t, left.CompletedAt)

	// Ranks recompute; cust-2 moves up, cust-0 keeps the head spot.
	queue, err := f.uc.ShopQueue(ctx, testShopID)
	require.NoError(t, err)
	require.Len(t, queue.Waiting, 2)
	assert.Equal(t, "cust-0", queue.Waiting[0].Entry.CustomerID)
	assert.Equal(t, 1, queue.Waiting[0].Rank)
	assert.Equal(t, "cust-2", queue.Waiting[1].Entry.CustomerID)
	assert.Equal(t, 2, queue.Waiting[1].Rank)

	// Sequences of the remaining entries are untouched.
	assert.Equal(t, entries[0].Entry.Sequence, queue.Waiting[0].Entry.Sequence)
	assert.Equal(t, entries[2].Entry.Sequence, queue.Waiting[1].Entry.Sequence)
}

func TestLeaveRequiresOwnership(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	ranked, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)

	_, err = f.uc.Leave(ctx, ranked.Entry.ID, "cust-2")
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.uc.Leave(ctx, "missing", "cust-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTerminalEntriesRejectFurtherTransitions(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	ranked, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)

	_, err = f.uc.Leave(ctx, ranked.Entry.ID, "cust-1")
	require.NoError(t, err)

	// Leaving again, or finishing a cancelled entry, must fail cleanly.
	_, err = f.uc.Leave(ctx, ranked.Entry.ID, "cust-1")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)

	stored, err := f.entries.GetByID(ctx, ranked.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, stored.Status)
}

func TestCompleteAndNoShowRequireAssignment(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	ranked, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)

	// Not dispatched yet: no provider assignment exists.
	_, err = f.uc.Complete(ctx, ranked.Entry.ID, "prov-1")
	assert.ErrorIs(t, err, domain.ErrNotAssigned)

	claimed, err := f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)

	_, err = f.uc.Complete(ctx, claimed.ID, "prov-2")
	assert.ErrorIs(t, err, domain.ErrNotAssigned)

	done, err := f.uc.Complete(ctx, claimed.ID, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)

	// Completing twice fails on the status guard.
	_, err = f.uc.Complete(ctx, claimed.ID, "prov-1")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestMarkNoShow(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	_, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)
	claimed, err := f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)

	marked, err := f.uc.MarkNoShow(ctx, claimed.ID, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNoShow, marked.Status)
	require.NotNil(t, marked.CompletedAt)

	assert.Len(t, f.notifier.byType(domain.EventCustomerNoShow), 1)

	// The customer may rejoin after a no-show.
	_, err = f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)
}

func TestStatusDerivesWaitEstimate(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.uc.Join(ctx, testShopID, fmt.Sprintf("cust-%d", i), haircut(), "")
		require.NoError(t, err)
	}

	status, err := f.uc.Status(ctx, testShopID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.WaitingCount)
	assert.Equal(t, 45, status.EstimatedWaitMinutes)
	assert.Empty(t, status.InProgress)

	_, err = f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)

	status, err = f.uc.Status(ctx, testShopID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.WaitingCount)
	assert.Equal(t, 30, status.EstimatedWaitMinutes)
	assert.Len(t, status.InProgress, 1)
}

func TestMyQueuesReportsRankAcrossShops(t *testing.T) {
	f := newEngine(t, defaultShop())
	other := defaultShop()
	other.ShopID = "shop-2"
	other.AverageServiceMinutes = 10
	f.shops.PutQueueConfig(other)
	ctx := context.Background()

	_, err := f.uc.Join(ctx, testShopID, "cust-a", haircut(), "")
	require.NoError(t, err)
	_, err = f.uc.Join(ctx, testShopID, "cust-b", haircut(), "")
	require.NoError(t, err)
	_, err = f.uc.Join(ctx, "shop-2", "cust-b", haircut(), "")
	require.NoError(t, err)

	mine, err := f.uc.MyQueues(ctx, "cust-b")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	byShop := map[string]*domain.RankedEntry{}
	for _, m := range mine {
		byShop[m.Entry.ShopID] = m
	}
	assert.Equal(t, 2, byShop[testShopID].Rank)
	assert.Equal(t, 30, byShop[testShopID].EtaMinutes)
	assert.Equal(t, 1, byShop["shop-2"].Rank)
	assert.Equal(t, 10, byShop["shop-2"].EtaMinutes)
}

func TestUpdateNotesOnlyWhileWaiting(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	ranked, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "fade please")
	require.NoError(t, err)
	require.NotNil(t, ranked.Entry.Notes)
	assert.Equal(t, "fade please", *ranked.Entry.Notes)

	updated, err := f.uc.UpdateNotes(ctx, ranked.Entry.ID, "cust-1", "actually a trim")
	require.NoError(t, err)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "actually a trim", *updated.Notes)

	_, err = f.uc.UpdateNotes(ctx, ranked.Entry.ID, "cust-2", "hijack")
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = f.uc.CallNext(ctx, testShopID, "prov-1")
	require.NoError(t, err)
	_, err = f.uc.UpdateNotes(ctx, ranked.Entry.ID, "cust-1", "too late")
	assert.ErrorIs(t, err, domain.ErrPreconditionFailed)
}

func TestJoinPublishesEvent(t *testing.T) {
	f := newEngine(t, defaultShop())
	ctx := context.Background()

	ranked, err := f.uc.Join(ctx, testShopID, "cust-1", haircut(), "")
	require.NoError(t, err)

	joined := f.notifier.byType(domain.EventCustomerJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, ranked.Entry.ID, joined[0].EntryID)
	assert.Equal(t, testShopID, joined[0].ShopID)
	assert.Equal(t, 1, joined[0].Rank)
	assert.Equal(t, 15, joined[0].EtaMinutes)
}
