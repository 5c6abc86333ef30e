package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"

	"github.com/redis/go-redis/v9"
)

const listKeyPrefix = "tasks:list:"

// ListPage is the cached shape of one list result page.
type ListPage struct {
	Total int64      `json:"total"`
	Items []dom.Task `json:"items"`
}

// TaskCache caches per-owner task list pages in Redis. Keys carry the full
// query shape, so invalidation works by owner prefix.
type TaskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskCache returns a new TaskCache.
func NewTaskCache(rdb *redis.Client, ttl time.Duration) *TaskCache {
	return &TaskCache{rdb: rdb, ttl: ttl}
}

// ListKey builds the cache key for an owner's list query. The query part must
// already encode page, limit, filters and sort.
func ListKey(ownerID int64, query string) string {
	return listKeyPrefix + strconv.FormatInt(ownerID, 10) + ":" + query
}

// GetList returns the cached page or nil on miss.
func (c *TaskCache) GetList(ctx context.Context, key string) (*ListPage, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var page ListPage
	if err := json.Unmarshal(b, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetList stores the page under key.
func (c *TaskCache) SetList(ctx context.Context, key string, page ListPage) error {
	b, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}

// InvalidateOwner removes every cached list page for the owner.
func (c *TaskCache) InvalidateOwner(ctx context.Context, ownerID int64) error {
	pattern := listKeyPrefix + strconv.FormatInt(ownerID, 10) + ":*"
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
