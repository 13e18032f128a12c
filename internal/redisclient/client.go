package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stock-ledger/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/set_item.lua
var setItemScript string

//go:embed scripts/invalidate_item.lua
var invalidateItemScript string

type Client struct {
	rdb              *redis.Client
	releaseScript    *redis.Script
	setItemScript    *redis.Script
	invalidateScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewClientFromRedis(rdb), nil
}

// NewClientFromRedis wraps an existing connection
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:              rdb,
		releaseScript:    redis.NewScript(releaseLockScript),
		setItemScript:    redis.NewScript(setItemScript),
		invalidateScript: redis.NewScript(invalidateItemScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func itemKey(id string) string {
	return fmt.Sprintf("inventory:item:%s", id)
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// CachedItem is an item snapshot as stored in the cache
type CachedItem struct {
	Item     models.InventoryItem `json:"item"`
	CachedAt time.Time            `json:"cached_at"`
}

// GetItem returns the cached snapshot of an item. ok is false on a miss.
func (c *Client) GetItem(ctx context.Context, id string) (entry *CachedItem, ok bool, err error) {
	payload, err := c.rdb.HGet(ctx, itemKey(id), "payload").Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached CachedItem
	if err := json.Unmarshal([]byte(payload), &cached); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached item %s: %w", id, err)
	}
	return &cached, true, nil
}

// SetItem caches item unless a newer version is already cached
func (c *Client) SetItem(ctx context.Context, item models.InventoryItem, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(CachedItem{Item: item, CachedAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}

	result, err := c.setItemScript.Run(ctx, c.rdb, []string{itemKey(item.ID)},
		item.Version, string(payload), ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("set item script failed: %w", err)
	}

	stored, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return stored == 1, nil
}

// InvalidateItem replaces the cached snapshot with a tombstone carrying the
// committed version. SetItem refuses anything older than the tombstone until
// it expires after ttl.
func (c *Client) InvalidateItem(ctx context.Context, id string, version int64, ttl time.Duration) (bool, error) {
	result, err := c.invalidateScript.Run(ctx, c.rdb, []string{itemKey(id)}, version, ttl.Milliseconds()).Result()
	if err != nil {
		return false, fmt.Errorf("invalidate item script failed: %w", err)
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return applied == 1, nil
}

// AcquireLock acquires a distributed lock owned by token
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	result, err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey(key)}, token).Result()
	if err != nil {
		return false, fmt.Errorf("release lock script failed: %w", err)
	}

	released, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return released == 1, nil
}
