package ledger_test

import (
	"fmt"
	"testing"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() *ledger.AlertEngine {
	n := 0
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return ledger.NewAlertEngine(
		func() string { n++; return fmt.Sprintf("alert-%d", n) },
		func() time.Time { return now },
	)
}

func applyPlan(open []models.StockAlert, plan ledger.AlertPlan) []models.StockAlert {
	byID := make(map[string]int, len(open))
	out := append([]models.StockAlert(nil), open...)
	for i, a := range out {
		byID[a.ID] = i
	}
	for _, group := range [][]models.StockAlert{plan.Update, plan.Resolve} {
		for _, a := range group {
			out[byID[a.ID]] = a
		}
	}
	return append(out, plan.Create...)
}

func typesOf(alerts []models.StockAlert) []models.AlertType {
	out := make([]models.AlertType, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Type)
	}
	return out
}

func TestReconcile_DesiredSet(t *testing.T) {
	tests := []struct {
		name     string
		item     models.InventoryItem
		want     []models.AlertType
		priority map[models.AlertType]models.AlertPriority
	}{
		{
			name: "out of stock",
			item: models.InventoryItem{ID: "a", CurrentStock: 0, ReorderPoint: 5},
			want: []models.AlertType{models.AlertOutOfStock, models.AlertReorder},
			priority: map[models.AlertType]models.AlertPriority{
				models.AlertOutOfStock: models.PriorityCritical,
				models.AlertReorder:    models.PriorityMedium,
			},
		},
		{
			name:     "low stock above half",
			item:     models.InventoryItem{ID: "a", CurrentStock: 4, ReorderPoint: 5},
			want:     []models.AlertType{models.AlertLowStock, models.AlertReorder},
			priority: map[models.AlertType]models.AlertPriority{models.AlertLowStock: models.PriorityMedium},
		},
		{
			name:     "low stock at half",
			item:     models.InventoryItem{ID: "a", CurrentStock: 2, ReorderPoint: 4},
			want:     []models.AlertType{models.AlertLowStock, models.AlertReorder},
			priority: map[models.AlertType]models.AlertPriority{models.AlertLowStock: models.PriorityHigh},
		},
		{
			name: "healthy",
			item: models.InventoryItem{ID: "a", CurrentStock: 50, ReorderPoint: 5, MaxStockLevel: 100},
			want: []models.AlertType{},
		},
		{
			name:     "overstock",
			item:     models.InventoryItem{ID: "a", CurrentStock: 101, ReorderPoint: 5, MaxStockLevel: 100},
			want:     []models.AlertType{models.AlertOverstock},
			priority: map[models.AlertType]models.AlertPriority{models.AlertOverstock: models.PriorityLow},
		},
		{
			name: "no max means no overstock",
			item: models.InventoryItem{ID: "a", CurrentStock: 1000, ReorderPoint: 5},
			want: []models.AlertType{},
		},
		{
			name: "discontinued wants nothing",
			item: models.InventoryItem{ID: "a", CurrentStock: 0, ReorderPoint: 5, Discontinued: true},
			want: []models.AlertType{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := newEngine().Reconcile(tt.item, nil)
			assert.ElementsMatch(t, tt.want, typesOf(plan.Create))
			assert.Empty(t, plan.Update)
			assert.Empty(t, plan.Resolve)
			for _, a := range plan.Create {
				assert.Equal(t, models.AlertActive, a.Status)
				assert.Equal(t, tt.item.CurrentStock, a.CurrentStock)
				if p, ok := tt.priority[a.Type]; ok {
					assert.Equal(t, p, a.Priority, "priority of %s", a.Type)
				}
			}
		})
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	engine := newEngine()
	item := models.InventoryItem{ID: "a", CurrentStock: 3, ReorderPoint: 10, MaxStockLevel: 2}

	first := engine.Reconcile(item, nil)
	require.False(t, first.Empty())

	open := applyPlan(nil, first)
	second := engine.Reconcile(item, open)
	assert.True(t, second.Empty(), "second reconcile must be a no-op: %+v", second)
}

func TestReconcile_ResolvesClearedConditions(t *testing.T) {
	engine := newEngine()
	item := models.InventoryItem{ID: "a", CurrentStock: 0, ReorderPoint: 5}
	open := applyPlan(nil, engine.Reconcile(item, nil))

	item.CurrentStock = 3
	plan := engine.Reconcile(item, open)

	assert.Equal(t, []models.AlertType{models.AlertLowStock}, typesOf(plan.Create))
	assert.Equal(t, models.PriorityMedium, plan.Create[0].Priority)
	require.Len(t, plan.Resolve, 1)
	assert.Equal(t, models.AlertOutOfStock, plan.Resolve[0].Type)
	assert.Equal(t, models.AlertResolved, plan.Resolve[0].Status)
	assert.NotNil(t, plan.Resolve[0].ResolvedAt)
	require.Len(t, plan.Update, 1)
	assert.Equal(t, models.AlertReorder, plan.Update[0].Type)
	assert.Equal(t, int64(3), plan.Update[0].CurrentStock)
}

func TestReconcile_PriorityEscalates(t *testing.T) {
	engine := newEngine()
	item := models.InventoryItem{ID: "a", CurrentStock: 8, ReorderPoint: 10}
	open := applyPlan(nil, engine.Reconcile(item, nil))

	item.CurrentStock = 4
	plan := engine.Reconcile(item, open)
	assert.Empty(t, plan.Create)

	var low *models.StockAlert
	for i := range plan.Update {
		if plan.Update[i].Type == models.AlertLowStock {
			low = &plan.Update[i]
		}
	}
	require.NotNil(t, low)
	assert.Equal(t, models.PriorityHigh, low.Priority)
}

func TestReconcile_AcknowledgedCoversCondition(t *testing.T) {
	engine := newEngine()
	item := models.InventoryItem{ID: "a", CurrentStock: 0, ReorderPoint: 5}
	open := applyPlan(nil, engine.Reconcile(item, nil))

	for i := range open {
		acked, err := ledger.TransitionAlert(open[i], models.AlertAcknowledged, time.Now())
		require.NoError(t, err)
		open[i] = acked
	}

	assert.True(t, engine.Reconcile(item, open).Empty())

	item.CurrentStock = 20
	plan := engine.Reconcile(item, open)
	assert.Len(t, plan.Resolve, 2)
	assert.Empty(t, plan.Create)
}

func TestReconcile_ResolvedAlertIsNotReopened(t *testing.T) {
	engine := newEngine()
	item := models.InventoryItem{ID: "a", CurrentStock: 0, ReorderPoint: 0}
	open := applyPlan(nil, engine.Reconcile(item, nil))
	require.Len(t, open, 2)

	for i := range open {
		resolved, err := ledger.TransitionAlert(open[i], models.AlertResolved, time.Now())
		require.NoError(t, err)
		open[i] = resolved
	}

	plan := engine.Reconcile(item, open)
	assert.Len(t, plan.Create, 2, "condition still holds, fresh alerts expected")
	assert.Empty(t, plan.Update)
	for _, a := range plan.Create {
		assert.NotEqual(t, open[0].ID, a.ID)
		assert.NotEqual(t, open[1].ID, a.ID)
	}
}

func TestReconcile_DuplicateActiveAlerts(t *testing.T) {
	engine := newEngine()
	now := time.Now()
	item := models.InventoryItem{ID: "a", CurrentStock: 0}
	open := []models.StockAlert{
		{ID: "new", ItemID: "a", Type: models.AlertOutOfStock, Priority: models.PriorityCritical, Status: models.AlertActive, CreatedAt: now},
		{ID: "old", ItemID: "a", Type: models.AlertOutOfStock, Priority: models.PriorityCritical, Status: models.AlertActive, CreatedAt: now.Add(-time.Hour)},
	}

	plan := engine.Reconcile(item, open)
	require.Len(t, plan.Resolve, 1)
	assert.Equal(t, "new", plan.Resolve[0].ID)
}

func TestTransitionAlert(t *testing.T) {
	now := time.Now()
	active := models.StockAlert{ID: "x", Status: models.AlertActive}

	acked, err := ledger.TransitionAlert(active, models.AlertAcknowledged, now)
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, acked.Status)
	assert.NotNil(t, acked.AcknowledgedAt)

	_, err = ledger.TransitionAlert(acked, models.AlertAcknowledged, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidAlertTransition)

	resolved, err := ledger.TransitionAlert(acked, models.AlertResolved, now)
	require.NoError(t, err)
	assert.Equal(t, models.AlertResolved, resolved.Status)

	_, err = ledger.TransitionAlert(resolved, models.AlertResolved, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidAlertTransition)
	_, err = ledger.TransitionAlert(resolved, models.AlertActive, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidAlertTransition)
}
