package domain

import (
	"context"
	"time"
)

// SequenceAllocator hands out per-shop arrival sequences. NextSequence
// must be a single atomic increment-and-fetch: two concurrent calls for
// the same shop must never return the same value. Gaps are acceptable,
// duplicates are not. Read-max-then-write implementations are
// disallowed because concurrent joins would compute the same value.
type SequenceAllocator interface {
	NextSequence(ctx context.Context, shopID string) (int64, error)
}

// EntryStore defines data access for queue entries. All mutations are
// conditional single-entry updates: a status guard that does not match
// the stored row fails the operation instead of corrupting state.
type EntryStore interface {
	// Insert persists a new entry. Returns ErrDuplicateSequence if the
	// (shop, sequence) pair already exists among active entries.
	Insert(ctx context.Context, entry *QueueEntry) error

	GetByID(ctx context.Context, id string) (*QueueEntry, error)

	// ClaimNextWaiting atomically selects the waiting entry with the
	// smallest sequence for the shop and transitions it to in_progress
	// for the provider, in one atomic operation. Concurrent claimants
	// must receive distinct entries. Returns ErrNoCustomersWaiting when
	// the shop has no waiting entries.
	ClaimNextWaiting(ctx context.Context, shopID, providerID string, at time.Time) (*QueueEntry, error)

	// UpdateStatus transitions the entry from fromStatus to toStatus,
	// stamping completedAt for terminal transitions. Fails with
	// ErrPreconditionFailed when the stored status is not fromStatus
	// (a lost race or an illegal repeat) and ErrNotFound when the entry
	// does not exist.
	UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (*QueueEntry, error)

	// UpdateNotes replaces the notes of a still-waiting entry. Notes
	// are immutable once dispatched.
	UpdateNotes(ctx context.Context, id, notes string) (*QueueEntry, error)

	// ListWaiting returns the shop's waiting entries ordered by
	// ascending sequence.
	ListWaiting(ctx context.Context, shopID string) ([]*QueueEntry, error)

	CountWaiting(ctx context.Context, shopID string) (int, error)

	// ListInProgress returns the shop's in-progress entries.
	ListInProgress(ctx context.Context, shopID string) ([]*QueueEntry, error)

	// GetActiveByCustomer returns the customer's waiting or in-progress
	// entry for the shop, or ErrNotFound.
	GetActiveByCustomer(ctx context.Context, shopID, customerID string) (*QueueEntry, error)

	// GetInProgressByProvider returns the provider's current
	// in-progress entry for the shop, or ErrNotFound.
	GetInProgressByProvider(ctx context.Context, shopID, providerID string) (*QueueEntry, error)

	// ListActiveByCustomer returns the customer's active entries across
	// all shops, ordered by join time.
	ListActiveByCustomer(ctx context.Context, customerID string) ([]*QueueEntry, error)
}

// RankedEntry pairs an entry with its derived position and wait
// estimate. Rank is the 1-based ordinal among the shop's waiting
// entries sorted by sequence, computed at read time.
type RankedEntry struct {
	Entry      *QueueEntry `json:"entry"`
	Rank       int         `json:"rank"`
	EtaMinutes int         `json:"eta_minutes"`
}

// QueueStatus is the read-only summary for a shop's queue.
type QueueStatus struct {
	ShopID               string        `json:"shop_id"`
	WaitingCount         int           `json:"waiting_count"`
	EstimatedWaitMinutes int           `json:"estimated_wait_minutes"`
	InProgress           []*QueueEntry `json:"in_progress"`
}

// ShopQueue is the provider-facing view of a shop's whole active queue.
type ShopQueue struct {
	ShopID     string         `json:"shop_id"`
	Waiting    []*RankedEntry `json:"waiting"`
	InProgress []*QueueEntry  `json:"in_progress"`
}

// ServiceRequest describes the service a joining customer asks for.
type ServiceRequest struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Duration int     `json:"duration"`
}

// QueueUsecase defines the engine's operation set, fronted by any
// transport.
type QueueUsecase interface {
	Join(ctx context.Context, shopID, customerID string, service ServiceRequest, notes string) (*RankedEntry, error)
	Leave(ctx context.Context, entryID, customerID string) (*QueueEntry, error)
	CallNext(ctx context.Context, shopID, providerID string) (*QueueEntry, error)
	Complete(ctx context.Context, entryID, providerID string) (*QueueEntry, error)
	MarkNoShow(ctx context.Context, entryID, providerID string) (*QueueEntry, error)
	Status(ctx context.Context, shopID string) (*QueueStatus, error)
	ShopQueue(ctx context.Context, shopID string) (*ShopQueue, error)
	MyQueues(ctx context.Context, customerID string) ([]*RankedEntry, error)
	UpdateNotes(ctx context.Context, entryID, customerID, notes string) (*QueueEntry, error)
}
