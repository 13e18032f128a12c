package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"stock-ledger/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	key   string
	event interface{}
}

type fakeWriter struct {
	events []recordedEvent
}

func (w *fakeWriter) PublishEvent(_ context.Context, key string, event interface{}) error {
	w.events = append(w.events, recordedEvent{key: key, event: event})
	return nil
}

func TestEventPublisher_KeysByItem(t *testing.T) {
	w := &fakeWriter{}
	ep := NewEventPublisher(w)
	ctx := context.Background()

	require.NoError(t, ep.PublishStockMoved(ctx, &models.StockMovedEvent{Movement: models.StockMovement{ItemID: "a"}}))
	require.NoError(t, ep.PublishAlertRaised(ctx, &models.AlertEvent{Alert: models.StockAlert{ItemID: "b"}}))
	require.NoError(t, ep.PublishAlertResolved(ctx, &models.AlertEvent{Alert: models.StockAlert{ItemID: "b"}}))

	require.Len(t, w.events, 3)
	assert.Equal(t, "item-a", w.events[0].key)
	assert.Equal(t, "item-b", w.events[1].key)
	assert.Equal(t, "item-b", w.events[2].key)
}

func orderMessage(t *testing.T, eventType string) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(models.OrderStockEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: eventType, Timestamp: time.Now()},
		OrderID:   "order-1",
		Items:     []models.OrderItemData{{ItemID: "a", Quantity: 2}},
	})
	require.NoError(t, err)
	return kafka.Message{Value: payload}
}

func TestEventHandler_Routes(t *testing.T) {
	eh := NewEventHandler()
	var got []string
	record := func(ctx context.Context, e *models.OrderStockEvent) error {
		got = append(got, e.EventType)
		assert.Equal(t, "order-1", e.OrderID)
		require.Len(t, e.Items, 1)
		assert.Equal(t, int64(2), e.Items[0].Quantity)
		return nil
	}
	eh.OnOrderReserved(record)
	eh.OnOrderConfirmed(record)
	eh.OnOrderCancelled(record)
	eh.OnOrderReturned(record)

	ctx := context.Background()
	for _, typ := range []string{
		models.EventTypeOrderReserved,
		models.EventTypeOrderConfirmed,
		models.EventTypeOrderCancelled,
		models.EventTypeOrderReturned,
		"SOMETHING_ELSE",
	} {
		require.NoError(t, eh.HandleMessage(ctx, orderMessage(t, typ)))
	}
	assert.Equal(t, []string{
		models.EventTypeOrderReserved,
		models.EventTypeOrderConfirmed,
		models.EventTypeOrderCancelled,
		models.EventTypeOrderReturned,
	}, got)
}

func TestEventHandler_Errors(t *testing.T) {
	eh := NewEventHandler()
	boom := errors.New("boom")
	eh.OnOrderReserved(func(context.Context, *models.OrderStockEvent) error { return boom })

	err := eh.HandleMessage(context.Background(), orderMessage(t, models.EventTypeOrderReserved))
	assert.ErrorIs(t, err, boom)

	err = eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
