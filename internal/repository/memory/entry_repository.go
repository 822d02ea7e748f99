package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trimline/trimline/internal/domain"
)

// entryRepository is a mutex-guarded in-memory EntryStore. It backs the
// "memory" store driver for local development and is the workhorse of
// the engine's concurrency tests. Every mutation holds the lock for the
// whole read-check-write, which gives the same conditional-update
// semantics as the Postgres store.
type entryRepository struct {
	mu      sync.Mutex
	entries map[string]*domain.QueueEntry
}

// NewEntryRepository creates an empty in-memory entry store.
func NewEntryRepository() domain.EntryStore {
	return &entryRepository{entries: make(map[string]*domain.QueueEntry)}
}

func (r *entryRepository) Insert(ctx context.Context, entry *domain.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ShopID == entry.ShopID && e.Sequence == entry.Sequence && e.IsActive() {
			return fmt.Errorf("%w: shop %s sequence %d", domain.ErrDuplicateSequence, entry.ShopID, entry.Sequence)
		}
	}

	cp := *entry
	r.entries[entry.ID] = &cp
	return nil
}

func (r *entryRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *entryRepository) ClaimNextWaiting(ctx context.Context, shopID, providerID string, at time.Time) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next *domain.QueueEntry
	for _, e := range r.entries {
		if e.ShopID != shopID || e.Status != domain.StatusWaiting {
			continue
		}
		if next == nil || e.Sequence < next.Sequence {
			next = e
		}
	}
	if next == nil {
		return nil, domain.ErrNoCustomersWaiting
	}

	next.Status = domain.StatusInProgress
	next.ProviderID = &providerID
	dispatched := at
	next.DispatchedAt = &dispatched

	cp := *next
	return &cp, nil
}

func (r *entryRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if entry.Status != fromStatus {
		return nil, domain.ErrPreconditionFailed
	}

	entry.Status = toStatus
	switch toStatus {
	case domain.StatusCompleted, domain.StatusCancelled, domain.StatusNoShow:
		stamp := at
		entry.CompletedAt = &stamp
	case domain.StatusInProgress:
		stamp := at
		entry.DispatchedAt = &stamp
	}

	cp := *entry
	return &cp, nil
}

func (r *entryRepository) UpdateNotes(ctx context.Context, id, notes string) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if entry.Status != domain.StatusWaiting {
		return nil, domain.ErrPreconditionFailed
	}

	entry.Notes = &notes
	cp := *entry
	return &cp, nil
}

func (r *entryRepository) ListWaiting(ctx context.Context, shopID string) ([]*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []*domain.QueueEntry{}
	for _, e := range r.entries {
		if e.ShopID == shopID && e.Status == domain.StatusWaiting {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })
	return entries, nil
}

func (r *entryRepository) CountWaiting(ctx context.Context, shopID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, e := range r.entries {
		if e.ShopID == shopID && e.Status == domain.StatusWaiting {
			count++
		}
	}
	return count, nil
}

func (r *entryRepository) ListInProgress(ctx context.Context, shopID string) ([]*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []*domain.QueueEntry{}
	for _, e := range r.entries {
		if e.ShopID == shopID && e.Status == domain.StatusInProgress {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		switch {
		case entries[i].DispatchedAt == nil:
			return false
		case entries[j].DispatchedAt == nil:
			return true
		default:
			return entries[i].DispatchedAt.Before(*entries[j].DispatchedAt)
		}
	})
	return entries, nil
}

func (r *entryRepository) GetActiveByCustomer(ctx context.Context, shopID, customerID string) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ShopID == shopID && e.CustomerID == customerID && e.IsActive() {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *entryRepository) GetInProgressByProvider(ctx context.Context, shopID, providerID string) (*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ShopID == shopID && e.Status == domain.StatusInProgress &&
			e.ProviderID != nil && *e.ProviderID == providerID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *entryRepository) ListActiveByCustomer(ctx context.Context, customerID string) ([]*domain.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []*domain.QueueEntry{}
	for _, e := range r.entries {
		if e.CustomerID == customerID && e.IsActive() {
			cp := *e
			entries = append(entries, &cp)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].JoinedAt.Before(entries[j].JoinedAt) })
	return entries, nil
}
