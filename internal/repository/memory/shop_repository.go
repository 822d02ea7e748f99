package memory

import (
	"context"
	"sync"

	"github.com/trimline/trimline/internal/domain"
)

// shopRepository is an in-memory ShopConfigProvider. The memory driver
// seeds it from configuration; tests seed it directly.
type shopRepository struct {
	mu    sync.RWMutex
	shops map[string]domain.ShopQueueConfig
}

// NewShopRepository creates an empty in-memory shop config provider.
func NewShopRepository() *shopRepository {
	return &shopRepository{shops: make(map[string]domain.ShopQueueConfig)}
}

// PutQueueConfig registers or replaces a shop's queue configuration.
func (r *shopRepository) PutQueueConfig(cfg domain.ShopQueueConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shops[cfg.ShopID] = cfg
}

func (r *shopRepository) GetQueueConfig(ctx context.Context, shopID string) (*domain.ShopQueueConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.shops[shopID]
	if !ok {
		return nil, domain.ErrShopNotFound
	}
	cp := cfg
	return &cp, nil
}
