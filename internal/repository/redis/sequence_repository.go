package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/trimline/trimline/internal/domain"
)

const sequenceKeyPrefix = "queue:seq:"

type sequenceAllocator struct {
	client *redis.Client
}

// NewSequenceAllocator creates a Redis-backed sequence allocator.
func NewSequenceAllocator(client *redis.Client) domain.SequenceAllocator {
	return &sequenceAllocator{client: client}
}

// NextSequence returns the next arrival sequence for the shop. INCR is
// a single atomic increment-and-fetch, so concurrent callers always get
// distinct values.
func (a *sequenceAllocator) NextSequence(ctx context.Context, shopID string) (int64, error) {
	seq, err := a.client.Incr(ctx, sequenceKeyPrefix+shopID).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence for shop %s: %w", shopID, err)
	}
	return seq, nil
}
