package games

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps games as JSON values that expire after ttl without a
// write. A ttl of zero keeps them forever.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisStore{redis: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, g Game) (Game, error) {
	g = withID(g)

	data, err := json.Marshal(g)
	if err != nil {
		return Game{}, err
	}

	ok, err := s.redis.SetNX(ctx, gameKey(g.ID), data, s.ttl).Result()
	if err != nil {
		return Game{}, fmt.Errorf("storing game: %w", err)
	}
	if !ok {
		return Game{}, ErrExists
	}

	return g, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Game, error) {
	return decodeGame(s.redis.Get(ctx, gameKey(id)).Bytes())
}

func (s *RedisStore) Save(ctx context.Context, g Game) error {
	if g.ID == "" {
		return ErrNotFound
	}

	data, err := json.Marshal(g)
	if err != nil {
		return err
	}

	return s.redis.Set(ctx, gameKey(g.ID), data, s.ttl).Err()
}

// Update applies u under WATCH, so concurrent writers retry instead of
// overwriting each other.
func (s *RedisStore) Update(ctx context.Context, id string, u Update) (Game, error) {
	key := gameKey(id)

	var updated Game
	txf := func(tx *redis.Tx) error {
		g, err := decodeGame(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}

		updated = u.Apply(g)

		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})

		return err
	}

	for range 5 {
		err := s.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Game{}, err
		}
		return updated, nil
	}

	return Game{}, fmt.Errorf("updating game %s: too much contention", id)
}

func decodeGame(data []byte, err error) (Game, error) {
	if errors.Is(err, redis.Nil) {
		return Game{}, ErrNotFound
	}
	if err != nil {
		return Game{}, fmt.Errorf("loading game: %w", err)
	}

	var g Game
	if err := json.Unmarshal(data, &g); err != nil {
		return Game{}, fmt.Errorf("decoding game: %w", err)
	}

	return g, nil
}

func gameKey(id string) string {
	return "sippy:game:" + id
}
