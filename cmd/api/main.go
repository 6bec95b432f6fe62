package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/centinel/internal/artifacts"
	"github.com/geocoder89/centinel/internal/auth"
	"github.com/geocoder89/centinel/internal/cache"
	"github.com/geocoder89/centinel/internal/config"
	"github.com/geocoder89/centinel/internal/db"
	"github.com/geocoder89/centinel/internal/geo"
	httpx "github.com/geocoder89/centinel/internal/http"
	"github.com/geocoder89/centinel/internal/http/handlers"
	"github.com/geocoder89/centinel/internal/observability"
	"github.com/geocoder89/centinel/internal/redisclient"
	"github.com/geocoder89/centinel/internal/repo/memory"
	"github.com/geocoder89/centinel/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "centinel"

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

type identityStore interface {
	auth.ClientStore
	db.RoleAssigner
}

func main() {
	// Load the config set up
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("centinel exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, version, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	readyChecks := map[string]handlers.Pinger{}

	// identity store
	var identities identityStore

	switch cfg.IdentityStore {
	case "memory":
		log.Warn("identity store is in memory; registrations are lost on restart")
		identities = memory.NewClientsRepo()
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DBURL, db.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		mctx, cancel := config.WithTimeout(10 * time.Second)
		err = db.Migrate(mctx, pool)
		cancel()
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		identities = postgres.NewClientsRepo(pool, prom)
		readyChecks["postgres"] = pool.Ping
	default:
		return fmt.Errorf("unknown IDENTITY_STORE %q", cfg.IdentityStore)
	}

	// results listing cache
	var resultsCache cache.ResultsCache

	switch cfg.ResultsCache {
	case "none":
		resultsCache = cache.Noop{}
	case "memory":
		resultsCache = cache.New(cfg.ResultsCacheTTL)
	case "redis":
		rc, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rc.Close()

		resultsCache = cache.NewRedisCache(rc.Raw(), cfg.ResultsCacheTTL)
		readyChecks["redis"] = rc.Ping
	default:
		return fmt.Errorf("unknown RESULTS_CACHE %q", cfg.ResultsCache)
	}

	store, err := artifacts.New(artifacts.Options{
		ResultsDir:     cfg.ResultsDir,
		ExperimentsDir: cfg.ExperimentsDir,
		ExperimentExt:  cfg.ExperimentExt,
		Cache:          resultsCache,
		Logger:         log,
		Prom:           prom,
	})
	if err != nil {
		return err
	}

	resolver := geo.Open(cfg.GeoIPDBPath, log, prom)
	defer resolver.Close()

	gateway := auth.NewGateway(identities, store, resolver, log, prom)

	sctx, cancel := config.WithTimeout(10 * time.Second)
	err = db.EnsureAdminClient(sctx, gateway, identities, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("bootstrap admin client: %w", err)
	}

	router := httpx.NewRouter(httpx.Deps{
		Config:      cfg,
		Log:         log,
		Gateway:     gateway,
		Store:       store,
		Resolver:    resolver,
		Prom:        prom,
		Gatherer:    reg,
		ReadyChecks: readyChecks,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "identity_store", cfg.IdentityStore,
			"results_cache", cfg.ResultsCache, "geolocation", resolver.Enabled())

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-stop:
	}

	log.Info("server shutting down")

	ctxTimeout, cancelShutdown := config.WithTimeout(10 * time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxTimeout); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
