package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/trimline/trimline/internal/domain"
)

type shopRepository struct {
	db *sqlx.DB
}

// NewShopRepository creates a new shop config repository
func NewShopRepository(db *sqlx.DB) domain.ShopConfigProvider {
	return &shopRepository{db: db}
}

// GetQueueConfig loads the shop's queue configuration.
func (r *shopRepository) GetQueueConfig(ctx context.Context, shopID string) (*domain.ShopQueueConfig, error) {
	query := `
		SELECT shop_id, name, average_service_minutes, max_queue_size, is_accepting
		FROM shop_queue_configs
		WHERE shop_id = $1
	`

	var cfg domain.ShopQueueConfig
	err := r.db.GetContext(ctx, &cfg, query, shopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrShopNotFound
		}
		return nil, fmt.Errorf("failed to get shop queue config: %w", err)
	}

	return &cfg, nil
}
