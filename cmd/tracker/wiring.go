package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/tracker/internal/api"
	"example.com/tracker/internal/auth"
	"example.com/tracker/internal/config"
	"example.com/tracker/internal/domain"
	"example.com/tracker/internal/persistence/postgres"
	"example.com/tracker/internal/persistence/sqlite"
)

// backend is an opened store. pool is nil for the sqlite driver.
type backend struct {
	store domain.Store
	pool  *pgxpool.Pool
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config, migrate bool) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		return &backend{store: store, close: func() { _ = store.Close() }}, nil
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		if migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		return &backend{store: postgres.NewStore(pool), pool: pool, close: pool.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (b *backend) requirePool() (*pgxpool.Pool, error) {
	if b.pool == nil {
		return nil, fmt.Errorf("the outbox requires the %s store driver", config.DriverPostgres)
	}
	return b.pool, nil
}

func buildServices(cfg *config.Config, store domain.Store) (*domain.Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return domain.NewServices(store,
		domain.WithLocation(loc),
		domain.WithDefaultEventDuration(cfg.DefaultEventDuration),
	), nil
}

func buildHandler(cfg *config.Config, services *domain.Services) http.Handler {
	opts := []api.Option{api.WithLogger(log.New(os.Stderr, "[api] ", log.LstdFlags))}
	if cfg.AuthDisabled {
		opts = append(opts, api.WithoutAuth())
	}

	mux := http.NewServeMux()
	api.NewHandler(services, opts...).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if !cfg.AuthDisabled {
		handler = auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}).Wrap(handler)
	}
	handler = api.CORS(cfg.CORSOrigin)(handler)
	return api.RequestLogger(log.New(os.Stderr, "[http] ", log.LstdFlags))(handler)
}
