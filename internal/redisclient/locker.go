package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stock-ledger/internal/ledger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker implements ledger.Locker with Redis SET NX locks so that several
// service instances serialize writes per item.
type Locker struct {
	client     *Client
	ttl        time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewLocker(client *Client, ttl time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{client: client, ttl: ttl, retryDelay: 20 * time.Millisecond, logger: logger}
}

// Lock acquires the locks for ids in sorted order, waiting until ctx is done.
func (l *Locker) Lock(ctx context.Context, ids ...string) (func(), error) {
	keys := ledger.SortedUnique(ids)
	token := uuid.New().String()

	held := make([]string, 0, len(keys))
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if ok, err := l.client.ReleaseLock(ctx, "item:"+held[i], token); err != nil || !ok {
				l.logger.Warn("Failed to release item lock",
					zap.String("item_id", held[i]), zap.Bool("owned", ok), zap.Error(err))
			}
		}
	}

	for _, id := range keys {
		if err := l.acquire(ctx, id, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Locker) acquire(ctx context.Context, id, token string) error {
	ticker := time.NewTicker(l.retryDelay)
	defer ticker.Stop()

	for {
		ok, err := l.client.AcquireLock(ctx, "item:"+id, token, l.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire lock for item %s: %w", id, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("lock for item %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
