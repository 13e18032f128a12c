package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
)

var errReadOnly = errors.New("store: write in read-only snapshot")

// MemoryStore keeps the ledger in process memory. Transactions are
// serialized and buffer their writes until fn returns without error.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]models.InventoryItem
	movements []models.StockMovement
	alerts    map[string]models.StockAlert
	processed map[string]models.ProcessedEvent
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:     make(map[string]models.InventoryItem),
		alerts:    make(map[string]models.StockAlert),
		processed: make(map[string]models.ProcessedEvent),
	}
}

func (s *MemoryStore) LoadItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(true).LoadItem(ctx, id)
}

func (s *MemoryStore) ListItems(ctx context.Context) ([]models.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(true).ListItems(ctx)
}

func (s *MemoryStore) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.CreateItem(ctx, item) })
}

func (s *MemoryStore) SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.SaveItem(ctx, item, expectedVersion) })
}

func (s *MemoryStore) AppendMovement(ctx context.Context, m *models.StockMovement) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.AppendMovement(ctx, m) })
}

func (s *MemoryStore) QueryMovements(ctx context.Context, f ledger.MovementFilter) ([]models.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(true).QueryMovements(ctx, f)
}

func (s *MemoryStore) SaveAlert(ctx context.Context, a *models.StockAlert) error {
	return s.WithTx(ctx, func(tx ledger.Store) error { return tx.SaveAlert(ctx, a) })
}

func (s *MemoryStore) GetAlert(ctx context.Context, id string) (*models.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(true).GetAlert(ctx, id)
}

func (s *MemoryStore) QueryAlerts(ctx context.Context, f ledger.AlertFilter) ([]models.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view(true).QueryAlerts(ctx, f)
}

// WithTx serializes fn against every other transaction and applies its
// buffered writes only if fn succeeds.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.view(false)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// ReadSnapshot holds the read lock for the duration of fn
func (s *MemoryStore) ReadSnapshot(ctx context.Context, fn func(snap ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.view(true))
}

// IsEventProcessed checks if an event was already handled
func (s *MemoryStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[eventID]
	return ok, nil
}

// MarkEventProcessed records a handled event
func (s *MemoryStore) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[eventID]; !ok {
		s.processed[eventID] = models.ProcessedEvent{EventID: eventID, EventType: eventType, ProcessedAt: time.Now().UTC()}
	}
	return nil
}

func (s *MemoryStore) view(readOnly bool) *memTx {
	return &memTx{
		s:        s,
		readOnly: readOnly,
		items:    make(map[string]models.InventoryItem),
		alerts:   make(map[string]models.StockAlert),
	}
}

// memTx overlays buffered writes on the committed state. The caller holds
// the store lock for its whole lifetime.
type memTx struct {
	s        *MemoryStore
	readOnly bool

	items     map[string]models.InventoryItem
	movements []models.StockMovement
	alerts    map[string]models.StockAlert
}

func (t *memTx) item(id string) (models.InventoryItem, bool) {
	if it, ok := t.items[id]; ok {
		return it, true
	}
	it, ok := t.s.items[id]
	return it, ok
}

func (t *memTx) alert(id string) (models.StockAlert, bool) {
	if a, ok := t.alerts[id]; ok {
		return a, true
	}
	a, ok := t.s.alerts[id]
	return a, ok
}

func (t *memTx) LoadItem(_ context.Context, id string) (*models.InventoryItem, error) {
	it, ok := t.item(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return &it, nil
}

func (t *memTx) ListItems(_ context.Context) ([]models.InventoryItem, error) {
	out := make([]models.InventoryItem, 0, len(t.s.items)+len(t.items))
	for id, it := range t.s.items {
		if staged, ok := t.items[id]; ok {
			it = staged
		}
		out = append(out, it)
	}
	for id, it := range t.items {
		if _, ok := t.s.items[id]; !ok {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CreateItem(_ context.Context, item *models.InventoryItem) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.item(item.ID); ok {
		return fmt.Errorf("%w: id %s", ledger.ErrDuplicateItem, item.ID)
	}
	items, _ := t.ListItems(context.Background())
	for _, it := range items {
		if it.SKU == item.SKU {
			return fmt.Errorf("%w: sku %s", ledger.ErrDuplicateItem, item.SKU)
		}
	}
	if item.Version == 0 {
		item.Version = 1
	}
	t.items[item.ID] = *item
	return nil
}

func (t *memTx) SaveItem(_ context.Context, item *models.InventoryItem, expectedVersion int64) error {
	if t.readOnly {
		return errReadOnly
	}
	current, ok := t.item(item.ID)
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, item.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: item %s at version %d, expected %d",
			ledger.ErrConcurrentModification, item.ID, current.Version, expectedVersion)
	}
	item.Version = expectedVersion + 1
	t.items[item.ID] = *item
	return nil
}

func (t *memTx) AppendMovement(_ context.Context, m *models.StockMovement) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, ok := t.item(m.ItemID); !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, m.ItemID)
	}
	t.movements = append(t.movements, *m)
	return nil
}

func (t *memTx) QueryMovements(_ context.Context, f ledger.MovementFilter) ([]models.StockMovement, error) {
	var out []models.StockMovement
	for _, src := range [][]models.StockMovement{t.s.movements, t.movements} {
		for _, m := range src {
			if matchMovement(m, f) {
				out = append(out, m)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matchMovement(m models.StockMovement, f ledger.MovementFilter) bool {
	switch {
	case f.ItemID != "" && m.ItemID != f.ItemID:
		return false
	case f.Type != "" && m.Type != f.Type:
		return false
	case f.Reference != "" && m.Reference != f.Reference:
		return false
	case f.From != nil && m.CreatedAt.Before(*f.From):
		return false
	case f.To != nil && m.CreatedAt.After(*f.To):
		return false
	}
	return true
}

func (t *memTx) SaveAlert(_ context.Context, a *models.StockAlert) error {
	if t.readOnly {
		return errReadOnly
	}
	t.alerts[a.ID] = *a
	return nil
}

func (t *memTx) GetAlert(_ context.Context, id string) (*models.StockAlert, error) {
	a, ok := t.alert(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAlertNotFound, id)
	}
	return &a, nil
}

func (t *memTx) QueryAlerts(_ context.Context, f ledger.AlertFilter) ([]models.StockAlert, error) {
	var out []models.StockAlert
	seen := make(map[string]bool)
	for _, src := range []map[string]models.StockAlert{t.alerts, t.s.alerts} {
		for id, a := range src {
			if seen[id] {
				continue
			}
			seen[id] = true
			if f.ItemID != "" && a.ItemID != f.ItemID {
				continue
			}
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// WithTx joins the enclosing transaction
func (t *memTx) WithTx(_ context.Context, fn func(tx ledger.Store) error) error {
	if t.readOnly {
		return errReadOnly
	}
	return fn(t)
}

func (t *memTx) ReadSnapshot(_ context.Context, fn func(snap ledger.Store) error) error {
	return fn(t)
}

func (t *memTx) commit() {
	for id, it := range t.items {
		t.s.items[id] = it
	}
	t.s.movements = append(t.s.movements, t.movements...)
	for id, a := range t.alerts {
		t.s.alerts[id] = a
	}
}
