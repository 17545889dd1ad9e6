package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	deployer "github.com/kattsoftware/phassets-amazon-s3-deployer"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/bus"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/cache"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/db"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/pkg/telemetry"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/services/api"
	"github.com/kattsoftware/phassets-amazon-s3-deployer/services/ledger"
)

const defaultCacheBucket = "phassets-deploy-cache"

func main() {
	if err := run("deployd"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, logger, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()

	cfg, err := loadDeployerConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lookupCache, closeCache, err := buildCache()
	if err != nil {
		return fmt.Errorf("build cache: %w", err)
	}
	defer closeCache()

	var opts []deployer.Option
	var eventBus *bus.Bus
	if natsURL := os.Getenv("PHASSETS_NATS_URL"); natsURL != "" {
		eventBus, err = bus.New(natsURL)
		if err != nil {
			return fmt.Errorf("connect bus: %w", err)
		}
		defer eventBus.Close()
		opts = append(opts, deployer.WithEvents(eventBus))
	}

	d, err := deployer.Activate(ctx, cfg, lookupCache, opts...)
	if err != nil {
		return fmt.Errorf("activate deployer: %w", err)
	}
	logger.Printf("INFO deployer ready for bucket %s (trigger %s)", d.Bucket(), d.Trigger())

	pool, err := openLedger(ctx, eventBus, logger)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	server, err := api.New(d, pool, logger, api.Config{
		AssetRoot: getEnv("PHASSETS_ASSET_ROOT", "."),
	})
	if err != nil {
		return fmt.Errorf("create api: %w", err)
	}

	routes, err := server.Routes()
	if err != nil {
		return fmt.Errorf("create routes: %w", err)
	}

	httpServer := &http.Server{
		Addr:    getEnv("DEPLOYD_ADDR", ":8080"),
		Handler: middleware(routes),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: http shutdown error: %v\n", serviceName, err)
		}
	}()

	logger.Printf("INFO http listening on %s", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loadDeployerConfig reads the YAML config file named by PHASSETS_CONFIG,
// with PHASSETS_<SECTION>_<KEY> environment variables taking precedence.
func loadDeployerConfig() (deployer.Config, error) {
	layers := deployer.Layered{deployer.EnvConfig{Prefix: "PHASSETS_"}}

	if path := os.Getenv("PHASSETS_CONFIG"); path != "" {
		file, err := deployer.LoadConfigFile(path)
		if err != nil {
			return deployer.Config{}, err
		}
		layers = append(layers, file)
	}

	return deployer.ParseConfig(layers, getEnv("PHASSETS_SECTION", deployer.DefaultSection))
}

// buildCache prefers the shared NATS KV bucket and falls back to an
// in-process cache when no cache endpoint is configured.
func buildCache() (deployer.Cache, func(), error) {
	natsURL := os.Getenv("PHASSETS_CACHE_NATS_URL")
	if natsURL == "" {
		return cache.NewMemory(), func() {}, nil
	}

	kv, err := cache.NewKV(natsURL, getEnv("PHASSETS_CACHE_BUCKET", defaultCacheBucket), deployer.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return kv, kv.Close, nil
}

// openLedger connects the deployment ledger when PHASSETS_DB_DSN is set.
// The ledger needs the event bus; without one the DSN is rejected rather
// than silently recording nothing.
func openLedger(ctx context.Context, eventBus *bus.Bus, logger *log.Logger) (*pgxpool.Pool, error) {
	dsn := os.Getenv("PHASSETS_DB_DSN")
	if dsn == "" {
		return nil, nil
	}
	if eventBus == nil {
		return nil, errors.New("PHASSETS_DB_DSN requires PHASSETS_NATS_URL for the ledger consumer")
	}

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if getEnvBool("PHASSETS_DB_MIGRATE", true) {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate ledger db: %w", err)
		}
	}

	orm, err := db.OpenORM(dsn)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open ledger orm: %w", err)
	}

	recorder, err := ledger.NewRecorder(orm, eventBus)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := recorder.Start(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("start ledger recorder: %w", err)
	}
	logger.Printf("INFO ledger recorder subscribed")

	return pool, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
