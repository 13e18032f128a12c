package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/store"

	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	moved    []*models.StockMovedEvent
	raised   []*models.AlertEvent
	resolved []*models.AlertEvent
	err      error
}

func (p *fakePublisher) PublishStockMoved(_ context.Context, e *models.StockMovedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moved = append(p.moved, e)
	return p.err
}

func (p *fakePublisher) PublishAlertRaised(_ context.Context, e *models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raised = append(p.raised, e)
	return p.err
}

func (p *fakePublisher) PublishAlertResolved(_ context.Context, e *models.AlertEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, e)
	return p.err
}

type testEnv struct {
	svc   *InventoryService
	store *store.MemoryStore
	pub   *fakePublisher
	now   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, func(s ledger.Store) ledger.Store { return s })
}

// newTestEnvWith lets the test wrap the store the processor writes through.
func newTestEnvWith(t *testing.T, wrap func(ledger.Store) ledger.Store) *testEnv {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	s := store.NewMemoryStore()
	ls := wrap(s)
	pub := &fakePublisher{}
	proc := ledger.NewProcessor(ls, ledger.Options{Now: clock})
	svc := NewInventoryService(proc,
		ledger.NewReorderAdvisor(ls, ledger.DefaultReorderConfig()),
		ledger.NewReportAggregator(ls, ledger.ReportConfig{}),
		pub)
	svc.now = clock
	return &testEnv{svc: svc, store: s, pub: pub, now: now}
}

func (e *testEnv) createItem(t *testing.T, id string, initial, reorderPoint int64) {
	t.Helper()
	_, err := e.svc.CreateItem(context.Background(), &CreateItemRequest{
		ID:              id,
		SKU:             "SKU-" + id,
		Name:            "Item " + id,
		InitialStock:    initial,
		ReorderPoint:    reorderPoint,
		ReorderQuantity: 10,
	})
	require.NoError(t, err)
}

func (e *testEnv) item(t *testing.T, id string) *models.InventoryItem {
	t.Helper()
	item, err := e.svc.GetItem(context.Background(), id)
	require.NoError(t, err)
	return item
}

type flakyProcessed struct {
	ProcessedEvents
	failCheck bool
}

func (f *flakyProcessed) IsEventProcessed(ctx context.Context, id string) (bool, error) {
	if f.failCheck {
		return false, errors.New("connection refused")
	}
	return f.ProcessedEvents.IsEventProcessed(ctx, id)
}

// flakyStore fails chosen SaveItem calls as a lost connection would.
type flakyStore struct {
	ledger.Store
	mu     sync.Mutex
	faults map[string]*saveFault
}

type saveFault struct {
	skip int
	fail bool
}

func newFlakyStore(s ledger.Store) *flakyStore {
	return &flakyStore{Store: s, faults: make(map[string]*saveFault)}
}

// failSave makes the save of itemID after skip successful saves fail once.
func (s *flakyStore) failSave(itemID string, skip int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[itemID] = &saveFault{skip: skip, fail: true}
}

func (s *flakyStore) takeFailure(itemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.faults[itemID]
	if f == nil || !f.fail {
		return false
	}
	if f.skip > 0 {
		f.skip--
		return false
	}
	f.fail = false
	return true
}

func (s *flakyStore) SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error {
	if s.takeFailure(item.ID) {
		return errors.New("connection reset")
	}
	return s.Store.SaveItem(ctx, item, expectedVersion)
}

func (s *flakyStore) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return s.Store.WithTx(ctx, func(tx ledger.Store) error {
		return fn(&flakyTx{Store: tx, parent: s})
	})
}

type flakyTx struct {
	ledger.Store
	parent *flakyStore
}

func (t *flakyTx) SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error {
	if t.parent.takeFailure(item.ID) {
		return errors.New("connection reset")
	}
	return t.Store.SaveItem(ctx, item, expectedVersion)
}
