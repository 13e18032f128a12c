package service

import (
	"context"
	"testing"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderEvent(id, eventType string, lines ...models.OrderItemData) *models.OrderStockEvent {
	return &models.OrderStockEvent{
		BaseEvent: models.BaseEvent{EventID: id, EventType: eventType, Timestamp: time.Now()},
		OrderID:   "order-1",
		Items:     lines,
	}
}

func line(itemID string, qty int64) models.OrderItemData {
	return models.OrderItemData{ItemID: itemID, Quantity: qty}
}

func TestOrderEventHandler_ReserveConfirm(t *testing.T) {
	env := newTestEnv(t)
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)
	env.createItem(t, "b", 5, 0)

	require.NoError(t, h.HandleOrderReserved(ctx,
		orderEvent("e1", models.EventTypeOrderReserved, line("a", 3), line("b", 2))))
	assert.Equal(t, int64(3), env.item(t, "a").ReservedStock)
	assert.Equal(t, int64(2), env.item(t, "b").ReservedStock)

	require.NoError(t, h.HandleOrderConfirmed(ctx,
		orderEvent("e2", models.EventTypeOrderConfirmed, line("a", 3), line("b", 2))))

	a := env.item(t, "a")
	assert.Equal(t, int64(7), a.CurrentStock)
	assert.Equal(t, int64(0), a.ReservedStock)

	sales, err := env.svc.ListMovements(ctx, ledger.MovementFilter{Reference: "order-1"})
	require.NoError(t, err)
	require.Len(t, sales, 2)
	for _, m := range sales {
		assert.Equal(t, models.MovementOut, m.Type)
		assert.Equal(t, "order:order-1", m.PerformedBy)
	}
}

func TestOrderEventHandler_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)

	event := orderEvent("e1", models.EventTypeOrderReserved, line("a", 4))
	require.NoError(t, h.HandleOrderReserved(ctx, event))
	require.NoError(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(4), env.item(t, "a").ReservedStock)
}

func TestOrderEventHandler_ReserveCompensates(t *testing.T) {
	env := newTestEnv(t)
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)
	env.createItem(t, "b", 1, 0)

	event := orderEvent("e1", models.EventTypeOrderReserved, line("a", 3), line("b", 2))
	require.NoError(t, h.HandleOrderReserved(ctx, event))

	assert.Equal(t, int64(0), env.item(t, "a").ReservedStock)
	assert.Equal(t, int64(0), env.item(t, "b").ReservedStock)

	processed, err := env.store.IsEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestOrderEventHandler_CancelAndReturn(t *testing.T) {
	env := newTestEnv(t)
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)

	require.NoError(t, h.HandleOrderReserved(ctx, orderEvent("e1", models.EventTypeOrderReserved, line("a", 4))))
	require.NoError(t, h.HandleOrderCancelled(ctx, orderEvent("e2", models.EventTypeOrderCancelled, line("a", 4))))
	assert.Equal(t, int64(0), env.item(t, "a").ReservedStock)

	returned := orderEvent("e3", models.EventTypeOrderReturned, line("a", 2), line("missing", 1))
	returned.Reason = "damaged in transit"
	require.NoError(t, h.HandleOrderReturned(ctx, returned))

	a := env.item(t, "a")
	assert.Equal(t, int64(12), a.CurrentStock)

	ms, err := env.svc.ListMovements(ctx, ledger.MovementFilter{ItemID: "a", Type: models.MovementReturn})
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "damaged in transit", ms[0].Reason)
	assert.Equal(t, "order-1", ms[0].Reference)
}

func TestOrderEventHandler_TransientFailureIsRetried(t *testing.T) {
	env := newTestEnv(t)
	processed := &flakyProcessed{ProcessedEvents: env.store, failCheck: true}
	h := NewOrderEventHandler(env.svc, processed)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)

	event := orderEvent("e1", models.EventTypeOrderReserved, line("a", 4))
	assert.Error(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(0), env.item(t, "a").ReservedStock)

	processed.failCheck = false
	require.NoError(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(4), env.item(t, "a").ReservedStock)
}

func TestOrderEventHandler_ConfirmRedeliveryAppliesEachLineOnce(t *testing.T) {
	var flaky *flakyStore
	env := newTestEnvWith(t, func(s ledger.Store) ledger.Store {
		flaky = newFlakyStore(s)
		return flaky
	})
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)
	env.createItem(t, "b", 5, 0)

	require.NoError(t, h.HandleOrderReserved(ctx,
		orderEvent("e1", models.EventTypeOrderReserved, line("a", 3), line("b", 2))))
	other := orderEvent("e2", models.EventTypeOrderReserved, line("a", 3))
	other.OrderID = "order-2"
	require.NoError(t, h.HandleOrderReserved(ctx, other))

	confirm := orderEvent("e3", models.EventTypeOrderConfirmed, line("a", 3), line("b", 2))
	flaky.failSave("b", 0)
	require.Error(t, h.HandleOrderConfirmed(ctx, confirm))

	processed, err := env.store.IsEventProcessed(ctx, "e3")
	require.NoError(t, err)
	assert.False(t, processed)

	require.NoError(t, h.HandleOrderConfirmed(ctx, confirm))

	a := env.item(t, "a")
	assert.Equal(t, int64(7), a.CurrentStock)
	assert.Equal(t, int64(3), a.ReservedStock, "order-2 keeps its reservation")
	b := env.item(t, "b")
	assert.Equal(t, int64(3), b.CurrentStock)
	assert.Equal(t, int64(0), b.ReservedStock)

	sales, err := env.svc.ListMovements(ctx, ledger.MovementFilter{ItemID: "a", Type: models.MovementOut, Reference: "order-1"})
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestOrderEventHandler_ReserveRedeliveryResumes(t *testing.T) {
	var flaky *flakyStore
	env := newTestEnvWith(t, func(s ledger.Store) ledger.Store {
		flaky = newFlakyStore(s)
		return flaky
	})
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)
	env.createItem(t, "b", 5, 0)

	event := orderEvent("e1", models.EventTypeOrderReserved, line("a", 3), line("b", 2))
	flaky.failSave("b", 0)
	require.Error(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(3), env.item(t, "a").ReservedStock)
	assert.Equal(t, int64(0), env.item(t, "b").ReservedStock)

	require.NoError(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(3), env.item(t, "a").ReservedStock)
	assert.Equal(t, int64(2), env.item(t, "b").ReservedStock)
}

func TestOrderEventHandler_CompensationRedeliveryReleasesOnce(t *testing.T) {
	var flaky *flakyStore
	env := newTestEnvWith(t, func(s ledger.Store) ledger.Store {
		flaky = newFlakyStore(s)
		return flaky
	})
	h := NewOrderEventHandler(env.svc, env.store)
	ctx := context.Background()
	env.createItem(t, "a", 10, 0)
	env.createItem(t, "b", 10, 0)
	env.createItem(t, "c", 1, 0)
	require.NoError(t, h.HandleOrderReserved(ctx,
		orderEvent("e0", models.EventTypeOrderReserved, line("a", 2), line("b", 2))))

	event := orderEvent("e1", models.EventTypeOrderReserved, line("a", 3), line("b", 4), line("c", 5))
	// a is reserved, b is released, then releasing a fails
	flaky.failSave("a", 1)
	require.Error(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(5), env.item(t, "a").ReservedStock)
	assert.Equal(t, int64(2), env.item(t, "b").ReservedStock)

	require.NoError(t, h.HandleOrderReserved(ctx, event))
	assert.Equal(t, int64(2), env.item(t, "a").ReservedStock)
	assert.Equal(t, int64(2), env.item(t, "b").ReservedStock)
	assert.Equal(t, int64(0), env.item(t, "c").ReservedStock)

	processed, err := env.store.IsEventProcessed(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, processed)
}
