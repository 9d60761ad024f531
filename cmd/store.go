package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover-cli/internal/config"
	"github.com/sells-group/landcover-cli/internal/db"
	"github.com/sells-group/landcover-cli/internal/store"
)

// initStore opens the configured result store and ensures its schema.
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Driver {
	case "sqlite":
		dsn := c.DatabaseURL
		if dsn == "" {
			dsn = "landcover.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.DatabaseURL, &db.PoolConfig{MaxConns: c.MaxConns})
	case "":
		return nil, eris.New("no result store configured (set store.driver or LANDCOVER_STORE_DRIVER)")
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
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
