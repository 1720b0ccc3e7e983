package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"delivery-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
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

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// cachedAsset is the wire form of a listing entry. FileAsset hides its
// storage key from API JSON, but the cache needs it back intact.
type cachedAsset struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	StorageKey  string `json:"storage_key"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// GetListing returns the cached file listing for an order, or nil on a
// cache miss. Listings carry storage keys, never presigned URLs, so a
// cache hit still gets fresh full-TTL URLs.
func (c *Client) GetListing(ctx context.Context, orderID int64) ([]models.FileAsset, error) {
	key := fmt.Sprintf("listing:%d", orderID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}

	var cached []cachedAsset
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	assets := make([]models.FileAsset, len(cached))
	for i, a := range cached {
		assets[i] = models.FileAsset{
			ID:          a.ID,
			ProductID:   a.ProductID,
			StorageKey:  a.StorageKey,
			Name:        a.Name,
			Size:        a.Size,
			ContentType: a.ContentType,
		}
	}
	return assets, nil
}

// SetListing caches the file listing for an order. The TTL is short;
// file-asset changes are picked up when the entry rolls over.
func (c *Client) SetListing(ctx context.Context, orderID int64, assets []models.FileAsset, ttl time.Duration) error {
	cached := make([]cachedAsset, len(assets))
	for i, a := range assets {
		cached[i] = cachedAsset{
			ID:          a.ID,
			ProductID:   a.ProductID,
			StorageKey:  a.StorageKey,
			Name:        a.Name,
			Size:        a.Size,
			ContentType: a.ContentType,
		}
	}

	raw, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}

	return c.rdb.Set(ctx, fmt.Sprintf("listing:%d", orderID), raw, ttl).Err()
}

// IncrRedemption bumps the redemption counter for a token. Analytics
// only; the count never gates token validity.
func (c *Client) IncrRedemption(ctx context.Context, tokenID int64) (int64, error) {
	return c.rdb.Incr(ctx, fmt.Sprintf("redemptions:%d", tokenID)).Result()
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
