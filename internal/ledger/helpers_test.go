package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/store"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	proc  *ledger.Processor
	store *store.MemoryStore
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore()
	c := newTestClock()
	return &fixture{
		proc:  ledger.NewProcessor(s, ledger.Options{Now: c.Now}),
		store: s,
		clock: c,
	}
}

func (f *fixture) create(t *testing.T, in ledger.NewItem) models.InventoryItem {
	t.Helper()
	if in.SKU == "" {
		in.SKU = "SKU-" + in.ID
	}
	res, err := f.proc.CreateItem(context.Background(), in)
	require.NoError(t, err)
	return res.Item
}

func (f *fixture) item(t *testing.T, id string) *models.InventoryItem {
	t.Helper()
	item, err := f.proc.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (f *fixture) movements(t *testing.T, id string) []models.StockMovement {
	t.Helper()
	ms, err := f.proc.ListMovements(context.Background(), ledger.MovementFilter{ItemID: id})
	require.NoError(t, err)
	return ms
}

func (f *fixture) openAlerts(t *testing.T, id string) map[models.AlertType]models.StockAlert {
	t.Helper()
	all, err := f.proc.ListAlerts(context.Background(), ledger.AlertFilter{ItemID: id})
	require.NoError(t, err)
	out := make(map[models.AlertType]models.StockAlert)
	for _, a := range all {
		if a.Status == models.AlertActive || a.Status == models.AlertAcknowledged {
			out[a.Type] = a
		}
	}
	return out
}

func requireInvariant(t *testing.T, item *models.InventoryItem) {
	t.Helper()
	require.Equal(t, item.CurrentStock-item.ReservedStock, item.AvailableStock)
	require.GreaterOrEqual(t, item.AvailableStock, int64(0))
	require.LessOrEqual(t, item.ReservedStock, item.CurrentStock)
}
