package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/pkg/logger"
)

const eventQueueKey = "queue:events"

type EventQueue struct {
	client  *redis.Client
	popWait time.Duration
}

// NewEventQueue creates a Redis-list event buffer. It serves both as
// the engine's notification port and as the worker's dequeue side.
func NewEventQueue(client *redis.Client, popWait time.Duration) *EventQueue {
	if popWait <= 0 {
		popWait = 5 * time.Second
	}
	return &EventQueue{client: client, popWait: popWait}
}

// Publish buffers the event for the broadcast worker.
func (q *EventQueue) Publish(ctx context.Context, event domain.QueueEvent) error {
	return q.EnqueueEvent(ctx, event)
}

// EnqueueEvent pushes the event onto the buffer.
func (q *EventQueue) EnqueueEvent(ctx context.Context, event domain.QueueEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal queue event: %w", err)
	}

	if err := q.client.LPush(ctx, eventQueueKey, payload).Err(); err != nil {
		logger.Error("Failed to enqueue queue event",
			logger.String("event", event.Type),
			logger.String("shop_id", event.ShopID),
			logger.ErrorField(err),
		)
		return fmt.Errorf("failed to enqueue queue event: %w", err)
	}

	return nil
}

// DequeueEvent blocks up to the configured wait for the next event.
// Returns (nil, nil) when the wait elapses with an empty buffer.
func (q *EventQueue) DequeueEvent(ctx context.Context) (*domain.QueueEvent, error) {
	result, err := q.client.BRPop(ctx, q.popWait, eventQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue queue event: %w", err)
	}

	// BRPOP returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(result))
	}

	var event domain.QueueEvent
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue event: %w", err)
	}

	return &event, nil
}

// EventQueueLength returns the number of buffered events.
func (q *EventQueue) EventQueueLength(ctx context.Context) (int64, error) {
	length, err := q.client.LLen(ctx, eventQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get event queue length: %w", err)
	}
	return length, nil
}
