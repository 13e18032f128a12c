package store

import (
	"context"
	"time"

	"stock-ledger/internal/ledger"
	"stock-ledger/internal/models"
	"stock-ledger/internal/redisclient"

	"go.uber.org/zap"
)

// ItemCache stores item snapshots outside the database
type ItemCache interface {
	GetItem(ctx context.Context, id string) (*redisclient.CachedItem, bool, error)
	SetItem(ctx context.Context, item models.InventoryItem, ttl time.Duration) (bool, error)
	InvalidateItem(ctx context.Context, id string, version int64, ttl time.Duration) (bool, error)
}

// CachedStore serves LoadItem from a read-through cache. A cached snapshot is
// used only while it is younger than maxAge. After commit, items written
// through this store are replaced with a version tombstone, so a reader that
// loaded the previous version cannot cache it again. Transactions and
// snapshots always go to the underlying store.
type CachedStore struct {
	ledger.Store
	cache  ItemCache
	maxAge time.Duration
	logger *zap.Logger
}

func NewCachedStore(inner ledger.Store, cache ItemCache, maxAge time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{Store: inner, cache: cache, maxAge: maxAge, logger: logger}
}

func (s *CachedStore) LoadItem(ctx context.Context, id string) (*models.InventoryItem, error) {
	cached, ok, err := s.cache.GetItem(ctx, id)
	if err != nil {
		s.logger.Warn("Item cache read failed", zap.String("item_id", id), zap.Error(err))
	}
	if ok && time.Since(cached.CachedAt) <= s.maxAge {
		item := cached.Item
		return &item, nil
	}

	item, err := s.Store.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.SetItem(ctx, *item, s.maxAge); err != nil {
		s.logger.Warn("Item cache write failed", zap.String("item_id", id), zap.Error(err))
	}
	return item, nil
}

func (s *CachedStore) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	if err := s.Store.CreateItem(ctx, item); err != nil {
		return err
	}
	s.invalidate(ctx, map[string]int64{item.ID: item.Version})
	return nil
}

func (s *CachedStore) SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error {
	if err := s.Store.SaveItem(ctx, item, expectedVersion); err != nil {
		return err
	}
	s.invalidate(ctx, map[string]int64{item.ID: item.Version})
	return nil
}

// WithTx runs fn on the underlying store and invalidates every item it wrote
// once the transaction has committed.
func (s *CachedStore) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	touched := make(map[string]int64)
	err := s.Store.WithTx(ctx, func(tx ledger.Store) error {
		return fn(&trackingTx{Store: tx, touched: touched})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, touched)
	return nil
}

// invalidate tombstones each item at its committed version
func (s *CachedStore) invalidate(ctx context.Context, versions map[string]int64) {
	for id, version := range versions {
		if _, err := s.cache.InvalidateItem(ctx, id, version, s.maxAge); err != nil {
			// entries expire after maxAge anyway
			s.logger.Warn("Item cache invalidation failed",
				zap.String("item_id", id),
				zap.Int64("version", version),
				zap.Error(err))
		}
	}
}

// trackingTx records the last version written per item inside a transaction
type trackingTx struct {
	ledger.Store
	touched map[string]int64
}

func (t *trackingTx) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	if err := t.Store.CreateItem(ctx, item); err != nil {
		return err
	}
	t.touched[item.ID] = item.Version
	return nil
}

func (t *trackingTx) SaveItem(ctx context.Context, item *models.InventoryItem, expectedVersion int64) error {
	if err := t.Store.SaveItem(ctx, item, expectedVersion); err != nil {
		return err
	}
	t.touched[item.ID] = item.Version
	return nil
}

func (t *trackingTx) WithTx(ctx context.Context, fn func(tx ledger.Store) error) error {
	return t.Store.WithTx(ctx, func(tx ledger.Store) error {
		return fn(&trackingTx{Store: tx, touched: t.touched})
	})
}
