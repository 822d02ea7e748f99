package worker

import (
	"context"
	"errors"
	"time"

	"github.com/trimline/trimline/internal/domain"
	"github.com/trimline/trimline/internal/ws"
	"github.com/trimline/trimline/pkg/logger"
)

const errorBackoff = time.Second

// EventWorker drains the buffered queue events and hands them to the
// websocket hub for broadcast.
type EventWorker struct {
	queue domain.EventQueue
	hub   *ws.Hub
}

// NewEventWorker creates a new event broadcast worker
func NewEventWorker(queue domain.EventQueue, hub *ws.Hub) *EventWorker {
	return &EventWorker{queue: queue, hub: hub}
}

// Start runs the drain loop until the context is cancelled.
func (w *EventWorker) Start(ctx context.Context) {
	logger.Info("Event broadcast worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Event broadcast worker stopped")
			return
		default:
		}

		event, err := w.queue.DequeueEvent(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("Failed to dequeue queue event", logger.ErrorField(err))
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			continue
		}
		if event == nil {
			// Empty buffer, the blocking pop timed out.
			continue
		}

		w.hub.BroadcastEvent(*event)
	}
}
