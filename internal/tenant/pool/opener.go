// opener.go builds the production Opener.  Steps:
//
//  1. Derive the physical database name from the pool key.
//  2. Render a DSN from shared host/credentials plus that name.
//  3. Open a small sqlx pool and ping it.
//
// An open failure (database missing, credentials rejected) surfaces as a
// ConnectionError from Pool.Get; nothing here retries.
package pool

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/topsteel/erp-core/internal/config"
	"github.com/topsteel/erp-core/internal/database"
	"github.com/topsteel/erp-core/internal/tenant"
)

// NewOpener returns an Opener bound to the shared database config.  Pool
// sizes default small so one busy tenant cannot starve the server.
func NewOpener(dbcfg config.Database, pcfg config.Pool) Opener {
	maxOpen := pcfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 5
	}
	maxIdle := pcfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = 2
	}

	return func(ctx context.Context, key string) (*sqlx.DB, error) {
		dsn := database.BuildDSN(dbcfg, tenant.DatabaseName(key))
		return database.OpenWithOptions(ctx, dsn, database.Options{
			MaxOpenConns:    maxOpen,
			MaxIdleConns:    maxIdle,
			ConnMaxLifetime: 30 * time.Minute,
		})
	}
}
