package storage

import (
	"context"
	"fmt"

	"pellicule/internal/cache"
	"pellicule/internal/config"
	"pellicule/internal/database"
	"pellicule/internal/observability"
)

// Open builds the Store selected by cfg.StorageDriver. The returned close function
// releases any connection the store holds.
func Open(ctx context.Context, cfg *config.Config, l *observability.Logger) (Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageDriver {
	case config.StorageMemory:
		return NewMemoryStore(), noop, nil
	case config.StorageFile:
		fs, err := NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case config.StorageRedis:
		rdb, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis storage: %w", err)
		}
		return NewRedisStore(rdb, cfg.Env), rdb.Close, nil
	case config.StorageSQLite, config.StoragePostgres:
		db, err := database.Connect(cfg.StorageDriver, cfg.DatabaseDSN, l)
		if err != nil {
			return nil, nil, fmt.Errorf("open sql storage: %w", err)
		}
		store := NewSQLStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return store, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
