package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Seednode/sippy/deck"
)

// Cache wraps a Catalog with a Redis read-through cache of each category's
// task list. Redis failures fall back to the wrapped catalog.
type Cache struct {
	base  Catalog
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper. A ttl of zero disables writes to Redis.
func NewCache(base Catalog, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("catalog.NewCache: base catalog is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) TasksByCategory(ctx context.Context, cat deck.Category) ([]deck.Task, error) {
	if err := checkCategory(cat); err != nil {
		return nil, err
	}

	if tasks, ok := c.load(ctx, cat); ok {
		return tasks, nil
	}

	tasks, err := c.base.TasksByCategory(ctx, cat)
	if err != nil {
		return nil, err
	}

	c.store(ctx, cat, tasks)

	return tasks, nil
}

// RandomTask picks from the cached list rather than asking the backend.
func (c *Cache) RandomTask(ctx context.Context, cat deck.Category) (deck.Task, error) {
	tasks, err := c.TasksByCategory(ctx, cat)
	if err != nil {
		return deck.Task{}, err
	}
	return pick(tasks, cat)
}

// Invalidate drops the cached lists for the given categories, or for every
// category when none are given.
func (c *Cache) Invalidate(ctx context.Context, cats ...deck.Category) error {
	if c.redis == nil {
		return nil
	}
	if len(cats) == 0 {
		cats = deck.Categories
	}

	keys := make([]string, 0, len(cats))
	for _, cat := range cats {
		keys = append(keys, tasksCacheKey(cat))
	}

	return c.redis.Del(ctx, keys...).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	if p, ok := c.base.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *Cache) load(ctx context.Context, cat deck.Category) ([]deck.Task, bool) {
	if c.redis == nil {
		return nil, false
	}

	key := tasksCacheKey(cat)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).WithField("key", key).Debug("task cache read failed")
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}

	var tasks []deck.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}

	return tasks, true
}

func (c *Cache) store(ctx context.Context, cat deck.Category, tasks []deck.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}

	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, tasksCacheKey(cat), data, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("category", cat).Debug("task cache write failed")
	}
}

func tasksCacheKey(c deck.Category) string {
	return "sippy:tasks:" + string(c)
}
