package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/client-risk-service/internal/audit"
	"github.com/sells-group/client-risk-service/internal/risk"
	"github.com/sells-group/client-risk-service/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "risk.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initService wires the risk service with an audit recorder matching the
// store driver.
func initService(st store.Store) *risk.Service {
	var rec audit.Recorder = audit.Nop{}
	switch s := st.(type) {
	case *store.PostgresStore:
		rec = audit.NewPostgresRecorder(s.Pool())
	case *store.SQLiteStore:
		rec = audit.NewSQLiteRecorder(s.DB())
	}

	var limiter *rate.Limiter
	if cfg.Risk.BulkRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Risk.BulkRatePerSec), 1)
	}

	return risk.New(st, rec, risk.Options{
		ActivityLookback: time.Duration(cfg.Risk.ActivityLookbackDays) * 24 * time.Hour,
		DefaultOrgID:     cfg.Risk.DefaultOrgID,
		BatchConcurrency: cfg.Batch.MaxConcurrentClients,
		BulkLimiter:      limiter,
	})
}
