package domain

import "context"

// ShopQueueConfig is the slice of shop configuration the engine reads.
// It is owned by whoever manages shops; the engine never writes it.
type ShopQueueConfig struct {
	ShopID                string `json:"shop_id" db:"shop_id"`
	Name                  string `json:"name" db:"name"`
	AverageServiceMinutes int    `json:"average_service_minutes" db:"average_service_minutes"`
	MaxQueueSize          int    `json:"max_queue_size" db:"max_queue_size"`
	IsAccepting           bool   `json:"is_accepting" db:"is_accepting"`
}

// ShopConfigProvider supplies queue configuration for a shop.
// Implementations return ErrShopNotFound for unknown shops.
type ShopConfigProvider interface {
	GetQueueConfig(ctx context.Context, shopID string) (*ShopQueueConfig, error)
}
