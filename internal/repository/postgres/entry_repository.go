package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/pkg/logger"
)

// uniqueViolation is the Postgres error code raised by the partial
// unique index on (shop_id, sequence).
const uniqueViolation = "23505"

const entryColumns = `
	id, shop_id, customer_id, provider_id,
	service_name, service_price, service_duration,
	sequence, status, joined_at, dispatched_at, completed_at, notes`

type entryRepository struct {
	db *sqlx.DB
}

// NewEntryRepository creates a new queue entry repository
func NewEntryRepository(db *sqlx.DB) domain.EntryStore {
	return &entryRepository{db: db}
}

// Insert persists a new waiting entry. The unique index on
// (shop_id, sequence) is the defensive backstop behind the allocator.
func (r *entryRepository) Insert(ctx context.Context, entry *domain.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, shop_id, customer_id, provider_id,
			service_name, service_price, service_duration,
			sequence, status, joined_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.ShopID, entry.CustomerID, entry.ProviderID,
		entry.ServiceName, entry.ServicePrice, entry.ServiceDuration,
		entry.Sequence, entry.Status, entry.JoinedAt, entry.Notes,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: shop %s sequence %d", domain.ErrDuplicateSequence, entry.ShopID, entry.Sequence)
		}
		logger.Error("Failed to insert queue entry",
			logger.String("entry_id", entry.ID),
			logger.String("shop_id", entry.ShopID),
			logger.ErrorField(err),
		)
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}

	return nil
}

// GetByID retrieves an entry by ID
func (r *entryRepository) GetByID(ctx context.Context, id string) (*domain.QueueEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM queue_entries WHERE id = $1`

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		logger.Error("Failed to get queue entry",
			logger.String("entry_id", id),
			logger.ErrorField(err),
		)
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return &entry, nil
}

// ClaimNextWaiting flips the lowest-sequence waiting entry of the shop
// to in_progress for the provider. The SKIP LOCKED subselect makes
// concurrent claimants pick distinct rows; the status guard in the
// outer UPDATE makes the transition itself conditional, so no entry can
// be claimed twice.
func (r *entryRepository) ClaimNextWaiting(ctx context.Context, shopID, providerID string, at time.Time) (*domain.QueueEntry, error) {
	query := `
		UPDATE queue_entries
		SET status = $3, provider_id = $2, dispatched_at = $4
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE shop_id = $1 AND status = $5
			ORDER BY sequence ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = $5
		RETURNING ` + entryColumns

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query,
		shopID, providerID, domain.StatusInProgress, at, domain.StatusWaiting,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoCustomersWaiting
		}
		logger.Error("Failed to claim next waiting entry",
			logger.String("shop_id", shopID),
			logger.String("provider_id", providerID),
			logger.ErrorField(err),
		)
		return nil, fmt.Errorf("failed to claim next waiting entry: %w", err)
	}

	return &entry, nil
}

// UpdateStatus performs the guarded transition fromStatus -> toStatus.
func (r *entryRepository) UpdateStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) (*domain.QueueEntry, error) {
	var (
		query string
		args  []interface{}
	)

	switch toStatus {
	case domain.StatusCompleted, domain.StatusCancelled, domain.StatusNoShow:
		query = `
			UPDATE queue_entries SET status = $3, completed_at = $4
			WHERE id = $1 AND status = $2
			RETURNING ` + entryColumns
		args = []interface{}{id, fromStatus, toStatus, at}
	case domain.StatusInProgress:
		query = `
			UPDATE queue_entries SET status = $3, dispatched_at = $4
			WHERE id = $1 AND status = $2
			RETURNING ` + entryColumns
		args = []interface{}{id, fromStatus, toStatus, at}
	default:
		return nil, fmt.Errorf("illegal target status %q", toStatus)
	}

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id)
		}
		logger.Error("Failed to update entry status",
			logger.String("entry_id", id),
			logger.String("to_status", toStatus),
			logger.ErrorField(err),
		)
		return nil, fmt.Errorf("failed to update entry status: %w", err)
	}

	return &entry, nil
}

// UpdateNotes replaces notes while the entry is still waiting.
func (r *entryRepository) UpdateNotes(ctx context.Context, id, notes string) (*domain.QueueEntry, error) {
	query := `
		UPDATE queue_entries SET notes = $2
		WHERE id = $1 AND status = $3
		RETURNING ` + entryColumns

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, id, notes, domain.StatusWaiting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missOrConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to update entry notes: %w", err)
	}

	return &entry, nil
}

// ListWaiting returns the shop's waiting entries in arrival order.
func (r *entryRepository) ListWaiting(ctx context.Context, shopID string) ([]*domain.QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE shop_id = $1 AND status = $2
		ORDER BY sequence ASC
	`

	entries := []*domain.QueueEntry{}
	err := r.db.SelectContext(ctx, &entries, query, shopID, domain.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}

	return entries, nil
}

// CountWaiting returns the live waiting count for the shop.
func (r *entryRepository) CountWaiting(ctx context.Context, shopID string) (int, error) {
	query := `SELECT COUNT(*) FROM queue_entries WHERE shop_id = $1 AND status = $2`

	var count int
	err := r.db.GetContext(ctx, &count, query, shopID, domain.StatusWaiting)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}

	return count, nil
}

// ListInProgress returns the shop's in-progress entries.
func (r *entryRepository) ListInProgress(ctx context.Context, shopID string) ([]*domain.QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE shop_id = $1 AND status = $2
		ORDER BY dispatched_at ASC
	`

	entries := []*domain.QueueEntry{}
	err := r.db.SelectContext(ctx, &entries, query, shopID, domain.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress entries: %w", err)
	}

	return entries, nil
}

// GetActiveByCustomer returns the customer's waiting or in-progress
// entry for the shop.
func (r *entryRepository) GetActiveByCustomer(ctx context.Context, shopID, customerID string) (*domain.QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE shop_id = $1 AND customer_id = $2 AND status IN ($3, $4)
		LIMIT 1
	`

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, shopID, customerID, domain.StatusWaiting, domain.StatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get active entry: %w", err)
	}

	return &entry, nil
}

// GetInProgressByProvider returns the provider's current in-progress
// entry for the shop.
func (r *entryRepository) GetInProgressByProvider(ctx context.Context, shopID, providerID string) (*domain.QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE shop_id = $1 AND provider_id = $2 AND status = $3
		LIMIT 1
	`

	var entry domain.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, shopID, providerID, domain.StatusInProgress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get in-progress entry: %w", err)
	}

	return &entry, nil
}

// ListActiveByCustomer returns the customer's active entries across shops.
func (r *entryRepository) ListActiveByCustomer(ctx context.Context, customerID string) ([]*domain.QueueEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM queue_entries
		WHERE customer_id = $1 AND status IN ($2, $3)
		ORDER BY joined_at ASC
	`

	entries := []*domain.QueueEntry{}
	err := r.db.SelectContext(ctx, &entries, query, customerID, domain.StatusWaiting, domain.StatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer entries: %w", err)
	}

	return entries, nil
}

// missOrConflict decides whether a zero-row conditional update means
// the entry is gone or its status moved under us.
func (r *entryRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM queue_entries WHERE id = $1)`, id)
	if err != nil {
		return fmt.Errorf("failed to check entry existence: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrPreconditionFailed
}
