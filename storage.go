package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Seednode/sippy/catalog"
	"github.com/Seednode/sippy/games"
)

// Backends holds the task catalog and game store selected by Config, along
// with what is needed to check and close them.
type Backends struct {
	Catalog catalog.Catalog
	Games   games.Store

	checks  map[string]func(context.Context) error
	closers []func() error
}

func openBackends(ctx context.Context, cfg *Config) (*Backends, error) {
	b := &Backends{
		checks: make(map[string]func(context.Context) error),
	}

	cat, store, err := b.openCatalog(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.Catalog = cat
	b.Games = games.NewMemoryStore()

	var cache *catalog.Cache

	if cfg.redisURL != "" {
		rdb, err := openRedis(ctx, cfg.redisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rdb.Close)

		cache = catalog.NewCache(cat, rdb, cfg.cacheTTL)
		b.Catalog = cache
		b.Games = games.NewRedisStore(rdb, cfg.sessionTimeout)

		logf(cfg, "STORE: Connected to redis")
	}

	if store != nil && cfg.seed {
		n, err := seedCatalog(ctx, cfg, store)
		if err != nil {
			b.Close()
			return nil, err
		}

		// Seeded rows are invisible behind decks cached before they existed.
		if n > 0 && cache != nil {
			if err := cache.Invalidate(ctx); err != nil {
				b.Close()
				return nil, fmt.Errorf("invalidating task cache: %w", err)
			}
		}
	}

	if p, ok := b.Catalog.(catalog.Pinger); ok {
		b.checks["catalog"] = p.Ping
	}

	return b, nil
}

func (b *Backends) openCatalog(ctx context.Context, cfg *Config) (catalog.Catalog, *catalog.SQLStore, error) {
	var (
		dialect catalog.Dialect
		dsn     string
	)

	switch cfg.catalog {
	case catalogSQLite:
		dialect, dsn = catalog.SQLite, cfg.databasePath
	case catalogPostgres:
		dialect, dsn = catalog.Postgres, cfg.databaseURL
	default:
		logf(cfg, "STORE: Using built-in task catalog")
		return catalog.Builtin(), nil, nil
	}

	db, err := catalog.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to %s: %w", dialect, err)
	}
	b.closers = append(b.closers, db.Close)

	if err := catalog.Migrate(db, dialect); err != nil {
		return nil, nil, err
	}

	store := catalog.NewSQLStore(db, dialect)

	logf(cfg, "STORE: Using %s task catalog", dialect)

	return store, store, nil
}

func seedCatalog(ctx context.Context, cfg *Config, store *catalog.SQLStore) (int, error) {
	n, err := catalog.Seed(ctx, store, catalog.Builtin().All())
	if err != nil {
		return 0, fmt.Errorf("seeding tasks: %w", err)
	}
	if n > 0 {
		logf(cfg, "STORE: Seeded %d tasks", n)
	}
	return n, nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return rdb, nil
}

// Check runs every health check and returns the failures by name.
func (b *Backends) Check(ctx context.Context) map[string]error {
	failed := make(map[string]error)
	for name, check := range b.checks {
		if err := check(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, err)
		}
	}
	b.closers = nil

	return errors.Join(errs...)
}
