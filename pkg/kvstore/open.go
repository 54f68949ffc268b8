package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/psicometria/bat7-api/pkg/config"
	"github.com/psicometria/bat7-api/pkg/database"
)

// Open builds the backend selected by cfg.Driver. The returned close function
// releases resources owned by the backend and is never nil.
func Open(ctx context.Context, cfg config.KVConfig, rdb *redis.Client, logger *zap.Logger) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case "", config.KVDriverMemory:
		return NewMemoryBackend(), noop, nil
	case config.KVDriverRedis:
		if rdb == nil {
			return nil, noop, fmt.Errorf("kv driver redis requires REDIS_ENABLED=true")
		}
		return NewRedisBackend(rdb, cfg.Channel, logger), noop, nil
	case config.KVDriverSQLite:
		db, err := database.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		backend, err := NewSQLiteBackend(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return backend, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown kv driver %q", cfg.Driver)
	}
}
