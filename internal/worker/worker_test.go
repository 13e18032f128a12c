package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"stock-ledger/internal/broker"
	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/service"
	"stock-ledger/internal/store"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceSource replays a fixed set of messages
type sliceSource struct {
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (s *sliceSource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, msg := range s.messages {
		s.errs = append(s.errs, handler(ctx, msg))
	}
	return nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func message(t *testing.T, id, eventType string, qty int64) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(models.OrderStockEvent{
		BaseEvent: models.BaseEvent{EventID: id, EventType: eventType, Timestamp: time.Now()},
		OrderID:   "order-7",
		Items:     []models.OrderItemData{{ItemID: "a", Quantity: qty}},
	})
	require.NoError(t, err)
	return kafka.Message{Key: []byte("order-7"), Value: payload}
}

func TestOrderWorker_AppliesOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	proc := ledger.NewProcessor(s, ledger.Options{})
	_, err := proc.CreateItem(ctx, ledger.NewItem{ID: "a", SKU: "A", InitialStock: 10})
	require.NoError(t, err)

	svc := service.NewInventoryService(proc,
		ledger.NewReorderAdvisor(s, ledger.DefaultReorderConfig()),
		ledger.NewReportAggregator(s, ledger.ReportConfig{}),
		nil)

	src := &sliceSource{messages: []kafka.Message{
		message(t, "e1", models.EventTypeOrderReserved, 4),
		message(t, "e1", models.EventTypeOrderReserved, 4),
		message(t, "e2", models.EventTypeOrderConfirmed, 4),
		message(t, "e3", models.EventTypeOrderReturned, 1),
	}}
	w := NewOrderWorker(src, service.NewOrderEventHandler(svc, s))

	require.NoError(t, w.Start(ctx))
	for _, err := range src.errs {
		assert.NoError(t, err)
	}

	item, err := proc.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(7), item.CurrentStock)
	assert.Equal(t, int64(0), item.ReservedStock)

	require.NoError(t, w.Stop())
	assert.True(t, src.closed)
}
