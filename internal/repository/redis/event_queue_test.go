package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trimline/trimline/internal/domain"
)

func TestEventQueueRoundTrip(t *testing.T) {
	q := NewEventQueue(newTestClient(t), 100*time.Millisecond)
	ctx := context.Background()

	event := domain.QueueEvent{
		Type:       domain.EventCustomerJoined,
		ShopID:     "shop-1",
		EntryID:    "entry-1",
		CustomerID: "cust-1",
		Rank:       3,
		EtaMinutes: 45,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, q.Publish(ctx, event))

	length, err := q.EventQueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	got, err := q.DequeueEvent(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, event.Type, got.Type)
	assert.Equal(t, event.ShopID, got.ShopID)
	assert.Equal(t, event.EntryID, got.EntryID)
	assert.Equal(t, event.Rank, got.Rank)
	assert.Equal(t, event.EtaMinutes, got.EtaMinutes)

	length, err = q.EventQueueLength(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestEventQueueDeliversInPublishOrder(t *testing.T) {
	q := NewEventQueue(newTestClient(t), 100*time.Millisecond)
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, q.EnqueueEvent(ctx, domain.QueueEvent{
			Type:    domain.EventCustomerJoined,
			ShopID:  "shop-1",
			EntryID: id,
		}))
	}

	for _, want := range []string{"e1", "e2", "e3"} {
		got, err := q.DequeueEvent(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.EntryID)
	}
}

func TestDequeueEventTimesOutOnEmptyBuffer(t *testing.T) {
	q := NewEventQueue(newTestClient(t), 50*time.Millisecond)

	got, err := q.DequeueEvent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}
