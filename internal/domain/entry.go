package domain

import (
	"errors"
	"time"
)

// QueueEntry represents one customer's membership in a shop's queue,
// from join until a terminal status. Entries are never deleted;
// terminal entries stay behind for history and reporting.
type QueueEntry struct {
	ID         string  `json:"id" db:"id"`
	ShopID     string  `json:"shop_id" db:"shop_id"`
	CustomerID string  `json:"customer_id" db:"customer_id"`
	ProviderID *string `json:"provider_id" db:"provider_id"`

	// Requested service (opaque to the engine beyond duration)
	ServiceName     string  `json:"service_name" db:"service_name"`
	ServicePrice    float64 `json:"service_price" db:"service_price"`
	ServiceDuration int     `json:"service_duration" db:"service_duration"`

	// Sequence is the sole ordering key: per-shop, strictly increasing,
	// assigned once at creation, never reused or mutated. Position in
	// the line is derived from it at read time, never stored.
	Sequence int64 `json:"sequence" db:"sequence"`

	Status string `json:"status" db:"status"`

	JoinedAt     time.Time  `json:"joined_at" db:"joined_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Notes *string `json:"notes,omitempty" db:"notes"`
}

// Entry statuses
const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Typed failures returned by the engine and stores. Handlers map these
// to HTTP codes with errors.Is; nothing else crosses the boundary.
var (
	ErrNotFound           = errors.New("entry not found")
	ErrShopNotFound       = errors.New("shop not found")
	ErrAlreadyQueued      = errors.New("customer already has an active entry for this shop")
	ErrQueueFull          = errors.New("queue is full")
	ErrNotAccepting       = errors.New("shop is not accepting new customers")
	ErrNoCustomersWaiting = errors.New("no customers waiting")
	ErrPreconditionFailed = errors.New("entry is not in the required status")
	ErrNotOwner           = errors.New("entry belongs to a different customer")
	ErrNotAssigned        = errors.New("entry is assigned to a different provider")
	ErrDuplicateSequence  = errors.New("duplicate sequence for shop")
	ErrContention         = errors.New("operation lost too many races, try again")
)

// IsActive reports whether the entry still occupies the queue.
func (e *QueueEntry) IsActive() bool {
	return e.Status == StatusWaiting || e.Status == StatusInProgress
}

// IsTerminal reports whether the entry has reached a final status.
func (e *QueueEntry) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusCancelled || e.Status == StatusNoShow
}

// CanTransition reports whether moving from the entry's current status
// to the target status is legal. The lifecycle is
// waiting -> in_progress -> completed, waiting -> cancelled,
// in_progress -> cancelled, in_progress -> no_show.
func (e *QueueEntry) CanTransition(target string) bool {
	switch e.Status {
	case StatusWaiting:
		return target == StatusInProgress || target == StatusCancelled
	case StatusInProgress:
		return target == StatusCompleted || target == StatusCancelled || target == StatusNoShow
	default:
		return false
	}
}

// IsValidStatus checks if the given status is a known entry status.
func IsValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}
