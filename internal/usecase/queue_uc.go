package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/pkg/logger"
	"github.com/trimline/trimline/pkg/metrics"
	"github.com/trimline/trimline/pkg/utils"
)

// defaultClaimRetries bounds how often a lost conditional update is
// reattempted before surfacing ErrContention. A lost CAS means another
// concurrent operation won the race, so a retry against the now-current
// state is safe and idempotent in effect.
const defaultClaimRetries = 3

type queueUsecase struct {
	entries    domain.EntryStore
	sequences  domain.SequenceAllocator
	shops      domain.ShopConfigProvider
	notifier   domain.NotificationPort
	maxRetries int
}

// QueueUsecaseConfig defines runtime options for the queue engine.
type QueueUsecaseConfig struct {
	MaxClaimRetries int
}

// NewQueueUsecase creates the queue engine. The notifier may be nil;
// state changes then go unannounced but are still persisted.
func NewQueueUsecase(
	entries domain.EntryStore,
	sequences domain.SequenceAllocator,
	shops domain.ShopConfigProvider,
	notifier domain.NotificationPort,
	cfg QueueUsecaseConfig,
) domain.QueueUsecase {
	retries := cfg.MaxClaimRetries
	if retries <= 0 {
		retries = defaultClaimRetries
	}
	return &queueUsecase{
		entries:    entries,
		sequences:  sequences,
		shops:      shops,
		notifier:   notifier,
		maxRetries: retries,
	}
}

// Join creates a waiting entry at the back of the shop's queue.
func (uc *queueUsecase) Join(ctx context.Context, shopID, customerID string, service domain.ServiceRequest, notes string) (*domain.RankedEntry, error) {
	if shopID == "" || customerID == "" || strings.TrimSpace(service.Name) == "" {
		return nil, fmt.Errorf("missing required fields")
	}

	cfg, err := uc.shops.GetQueueConfig(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if !cfg.IsAccepting {
		return nil, domain.ErrNotAccepting
	}

	if _, err := uc.entries.GetActiveByCustomer(ctx, shopID, customerID); err == nil {
		return nil, domain.ErrAlreadyQueued
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check active entry: %w", err)
	}

	waiting, err := uc.entries.CountWaiting(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	if cfg.MaxQueueSize > 0 && waiting >= cfg.MaxQueueSize {
		return nil, domain.ErrQueueFull
	}

	seq, err := uc.sequences.NextSequence(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	entry := &domain.QueueEntry{
		ID:              utils.GenerateUUID(),
		ShopID:          shopID,
		CustomerID:      customerID,
		ServiceName:     service.Name,
		ServicePrice:    service.Price,
		ServiceDuration: service.Duration,
		Sequence:        seq,
		Status:          domain.StatusWaiting,
		JoinedAt:        time.Now(),
	}
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		entry.Notes = &trimmed
	}

	if err := uc.entries.Insert(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateSequence) {
			// The allocator contract makes this unreachable; if it
			// fires the counter state is corrupt and must be looked at.
			logger.Error("Sequence invariant violated on insert",
				logger.String("shop_id", shopID),
				logger.Int64("sequence", seq),
				logger.ErrorField(err),
			)
			metrics.RecordSequenceViolation(shopID)
		}
		return nil, err
	}

	rank, err := uc.rankOf(ctx, entry)
	if err != nil {
		// The entry is in; fall back to the pre-insert count for the
		// announcement rather than failing the join.
		logger.Warn("Failed to derive rank after join",
			logger.String("entry_id", entry.ID),
			logger.ErrorField(err),
		)
		rank = waiting + 1
	}
	eta := EstimatedWait(rank, cfg.AverageServiceMinutes)

	uc.publish(ctx, domain.QueueEvent{
		Type:       domain.EventCustomerJoined,
		ShopID:     shopID,
		EntryID:    entry.ID,
		CustomerID: customerID,
		Rank:       rank,
		EtaMinutes: eta,
		Timestamp:  time.Now(),
	})
	metrics.RecordJoin(shopID)

	logger.Info("Customer joined queue",
		logger.String("entry_id", entry.ID),
		logger.String("shop_id", shopID),
		logger.String("customer_id", customerID),
		logger.Int64("sequence", seq),
		logger.Int("rank", rank),
	)

	return &domain.RankedEntry{Entry: entry, Rank: rank, EtaMinutes: eta}, nil
}

// Leave cancels the customer's entry. Sequences of the remaining
// entries are untouched; positions recompute on the next read.
func (uc *queueUsecase) Leave(ctx context.Context, entryID, customerID string) (*domain.QueueEntry, error) {
	entry, err := uc.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.CustomerID != customerID {
		return nil, domain.ErrNotOwner
	}

	var updated *domain.QueueEntry
	for attempt := 0; ; attempt++ {
		if !entry.IsActive() {
			return nil, domain.ErrPreconditionFailed
		}
		updated, err = uc.entries.UpdateStatus(ctx, entryID, entry.Status, domain.StatusCancelled, time.Now())
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrPreconditionFailed) {
			return nil, err
		}
		if attempt+1 >= uc.maxRetries {
			metrics.RecordClaimRetryExhausted("leave")
			return nil, domain.ErrContention
		}
		metrics.RecordClaimRetry("leave")
		// Another operation moved the entry; reread and decide again.
		if entry, err = uc.entries.GetByID(ctx, entryID); err != nil {
			return nil, err
		}
	}

	uc.publish(ctx, domain.QueueEvent{
		Type:       domain.EventCustomerLeft,
		ShopID:     updated.ShopID,
		EntryID:    updated.ID,
		CustomerID: customerID,
		Timestamp:  time.Now(),
	})
	metrics.RecordLeave(updated.ShopID)

	logger.Info("Customer left queue",
		logger.String("entry_id", entryID),
		logger.String("shop_id", updated.ShopID),
	)

	return updated, nil
}

// CallNext finishes the provider's current customer, if any, then
// claims the earliest waiting entry for the shop.
func (uc *queueUsecase) CallNext(ctx context.Context, shopID, providerID string) (*domain.QueueEntry, error) {
	if _, err := uc.shops.GetQueueConfig(ctx, shopID); err != nil {
		return nil, err
	}

	// Calling next implicitly completes whoever the provider is serving.
	if current, err := uc.entries.GetInProgressByProvider(ctx, shopID, providerID); err == nil {
		finished, err := uc.entries.UpdateStatus(ctx, current.ID, domain.StatusInProgress, domain.StatusCompleted, time.Now())
		switch {
		case err == nil:
			uc.publish(ctx, domain.QueueEvent{
				Type:       domain.EventCustomerCompleted,
				ShopID:     shopID,
				EntryID:    finished.ID,
				CustomerID: finished.CustomerID,
				ProviderID: providerID,
				Timestamp:  time.Now(),
			})
			metrics.RecordCompletion(shopID, "completed")
		case errors.Is(err, domain.ErrPreconditionFailed):
			// Someone else transitioned it (cancel, no-show); the chair
			// is free either way.
		default:
			return nil, err
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var claimed *domain.QueueEntry
	var err error
	for attempt := 0; ; attempt++ {
		claimed, err = uc.entries.ClaimNextWaiting(ctx, shopID, providerID, time.Now())
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrNoCustomersWaiting) {
			metrics.RecordDispatch(shopID, "empty")
			return nil, err
		}
		if !errors.Is(err, domain.ErrContention) {
			return nil, err
		}
		if attempt+1 >= uc.maxRetries {
			metrics.RecordClaimRetryExhausted("call_next")
			return nil, domain.ErrContention
		}
		metrics.RecordClaimRetry("call_next")
	}

	uc.publish(ctx, domain.QueueEvent{
		Type:       domain.EventCustomerDispatched,
		ShopID:     shopID,
		EntryID:    claimed.ID,
		CustomerID: claimed.CustomerID,
		ProviderID: providerID,
		Timestamp:  time.Now(),
	})
	metrics.RecordDispatch(shopID, "claimed")

	logger.Info("Customer dispatched",
		logger.String("entry_id", claimed.ID),
		logger.String("shop_id", shopID),
		logger.String("provider_id", providerID),
		logger.Int64("sequence", claimed.Sequence),
	)

	return claimed, nil
}

// Complete finishes the provider's in-progress entry without claiming
// the next customer.
func (uc *queueUsecase) Complete(ctx context.Context, entryID, providerID string) (*domain.QueueEntry, error) {
	return uc.finish(ctx, entryID, providerID, domain.StatusCompleted, domain.EventCustomerCompleted)
}

// MarkNoShow flags the provider's in-progress entry as a no-show.
// Distinguished from completed for reporting; the customer is not
// re-enqueued.
func (uc *queueUsecase) MarkNoShow(ctx context.Context, entryID, providerID string) (*domain.QueueEntry, error) {
	return uc.finish(ctx, entryID, providerID, domain.StatusNoShow, domain.EventCustomerNoShow)
}

func (uc *queueUsecase) finish(ctx context.Context, entryID, providerID, target, eventType string) (*domain.QueueEntry, error) {
	entry, err := uc.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.ProviderID == nil || *entry.ProviderID != providerID {
		return nil, domain.ErrNotAssigned
	}

	updated, err := uc.entries.UpdateStatus(ctx, entryID, domain.StatusInProgress, target, time.Now())
	if err != nil {
		return nil, err
	}

	uc.publish(ctx, domain.QueueEvent{
		Type:       eventType,
		ShopID:     updated.ShopID,
		EntryID:    updated.ID,
		CustomerID: updated.CustomerID,
		ProviderID: providerID,
		Timestamp:  time.Now(),
	})
	metrics.RecordCompletion(updated.ShopID, target)

	logger.Info("Entry finished",
		logger.String("entry_id", entryID),
		logger.String("status", target),
		logger.String("provider_id", providerID),
	)

	return updated, nil
}

// Status summarizes the shop's queue: live waiting count, estimated
// wait derived from it, and who is currently being served.
func (uc *queueUsecase) Status(ctx context.Context, shopID string) (*domain.QueueStatus, error) {
	cfg, err := uc.shops.GetQueueConfig(ctx, shopID)
	if err != nil {
		return nil, err
	}

	waiting, err := uc.entries.CountWaiting(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	inProgress, err := uc.entries.ListInProgress(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress entries: %w", err)
	}

	metrics.SetQueueDepth(shopID, float64(waiting))

	return &domain.QueueStatus{
		ShopID:               shopID,
		WaitingCount:         waiting,
		EstimatedWaitMinutes: EstimatedWait(waiting, cfg.AverageServiceMinutes),
		InProgress:           inProgress,
	}, nil
}

// ShopQueue returns the provider view: the full waiting line with
// derived ranks plus current in-progress entries.
func (uc *queueUsecase) ShopQueue(ctx context.Context, shopID string) (*domain.ShopQueue, error) {
	cfg, err := uc.shops.GetQueueConfig(ctx, shopID)
	if err != nil {
		return nil, err
	}

	waiting, err := uc.entries.ListWaiting(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	inProgress, err := uc.entries.ListInProgress(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-progress entries: %w", err)
	}

	ranked := make([]*domain.RankedEntry, len(waiting))
	for i, entry := range waiting {
		ranked[i] = &domain.RankedEntry{
			Entry:      entry,
			Rank:       i + 1,
			EtaMinutes: EstimatedWait(i+1, cfg.AverageServiceMinutes),
		}
	}

	return &domain.ShopQueue{ShopID: shopID, Waiting: ranked, InProgress: inProgress}, nil
}

// MyQueues returns the customer's active entries across shops with
// derived ranks and wait estimates.
func (uc *queueUsecase) MyQueues(ctx context.Context, customerID string) ([]*domain.RankedEntry, error) {
	entries, err := uc.entries.ListActiveByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customer entries: %w", err)
	}

	result := make([]*domain.RankedEntry, 0, len(entries))
	for _, entry := range entries {
		ranked := &domain.RankedEntry{Entry: entry}
		if entry.Status == domain.StatusWaiting {
			rank, err := uc.rankOf(ctx, entry)
			if err != nil {
				return nil, err
			}
			cfg, err := uc.shops.GetQueueConfig(ctx, entry.ShopID)
			if err != nil {
				return nil, err
			}
			ranked.Rank = rank
			ranked.EtaMinutes = EstimatedWait(rank, cfg.AverageServiceMinutes)
		}
		result = append(result, ranked)
	}
	return result, nil
}

// UpdateNotes changes the entry's notes before dispatch.
func (uc *queueUsecase) UpdateNotes(ctx context.Context, entryID, customerID, notes string) (*domain.QueueEntry, error) {
	entry, err := uc.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.CustomerID != customerID {
		return nil, domain.ErrNotOwner
	}
	return uc.entries.UpdateNotes(ctx, entryID, notes)
}

// rankOf derives the entry's 1-based position among its shop's waiting
// entries by sequence order.
func (uc *queueUsecase) rankOf(ctx context.Context, entry *domain.QueueEntry) (int, error) {
	waiting, err := uc.entries.ListWaiting(ctx, entry.ShopID)
	if err != nil {
		return 0, err
	}
	for i, w := range waiting {
		if w.ID == entry.ID {
			return i + 1, nil
		}
	}
	return 0, domain.ErrNotFound
}

func (uc *queueUsecase) publish(ctx context.Context, event domain.QueueEvent) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.Publish(ctx, event); err != nil {
		// Best effort: the state change already happened.
		logger.Error("Failed to publish queue event",
			logger.String("event", event.Type),
			logger.String("shop_id", event.ShopID),
			logger.String("entry_id", event.EntryID),
			logger.ErrorField(err),
		)
		return
	}
	metrics.RecordEventPublished(event.Type)
}
