package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/mayuresh141/urbanhcf/internal/db"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open creates the ResultStore for driver and applies its migration.
func Open(ctx context.Context, driver, url string, poolCfg *db.PoolConfig) (ResultStore, error) {
	var (
		s   ResultStore
		err error
	)
	switch driver {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite, "":
		s, err = NewSQLite(url)
	case DriverPostgres:
		s, err = NewPostgres(ctx, url, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
