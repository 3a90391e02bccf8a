package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Jihanvall/rfm-app/internal/store"
)

// initStore opens the configured backend and applies its migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "rfm.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	case "redis":
		st, err = store.NewRedis(ctx, cfg.Store.DatabaseURL, cfg.Store.KeyPrefix)
	case "s3":
		st, err = store.NewS3(ctx, cfg.Store.S3)
	case "memory":
		st = store.NewMemory()
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// runStoreOf returns st's run history, or nil for artifact-only backends.
func runStoreOf(st store.Store) store.RunStore {
	if rs, ok := st.(store.RunStore); ok {
		return rs
	}
	return nil
}
