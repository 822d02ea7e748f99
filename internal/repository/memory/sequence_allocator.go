package memory

import (
	"context"
	"sync"

	"github.com/trimline/trimline/internal/domain"
)

// sequenceAllocator hands out per-shop sequences from in-process
// counters. Counters only ever move forward under the lock, so two
// concurrent calls for the same shop cannot observe the same value.
type sequenceAllocator struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewSequenceAllocator creates an in-memory sequence allocator.
func NewSequenceAllocator() domain.SequenceAllocator {
	return &sequenceAllocator{counters: make(map[string]int64)}
}

func (a *sequenceAllocator) NextSequence(ctx context.Context, shopID string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters[shopID]++
	return a.counters[shopID], nil
}
