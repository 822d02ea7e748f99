package domain

import (
	"context"
	"time"
)

// Queue event types broadcast to shop subscribers after state changes.
const (
	EventCustomerJoined     = "customer_joined"
	EventCustomerLeft       = "customer_left"
	EventCustomerDispatched = "customer_dispatched"
	EventCustomerCompleted  = "customer_completed"
	EventCustomerNoShow     = "customer_no_show"
)

// QueueEvent is the payload shape delivered to the real-time transport.
// The event shapes are a stability boundary for external consumers;
// persisted entry layout is not.
type QueueEvent struct {
	Type       string    `json:"type"`
	ShopID     string    `json:"shop_id"`
	EntryID    string    `json:"entry_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	ProviderID string    `json:"provider_id,omitempty"`
	Rank       int       `json:"rank,omitempty"`
	EtaMinutes int       `json:"eta_minutes,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationPort is the outbound interface the engine calls after
// every state change. Delivery is best-effort: a publish failure is
// logged by the caller and never rolls back the state change.
type NotificationPort interface {
	Publish(ctx context.Context, event QueueEvent) error
}

// EventQueue buffers serialized queue events between the engine and
// the broadcast worker.
type EventQueue interface {
	EnqueueEvent(ctx context.Context, event QueueEvent) error
	DequeueEvent(ctx context.Context) (*QueueEvent, error)
	EventQueueLength(ctx context.Context) (int64, error)
}
