package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/repowatch/repowatch/core"
	"github.com/repowatch/repowatch/githubevents"
	"github.com/repowatch/repowatch/httpapi"
	"github.com/repowatch/repowatch/migrations"
	sqlstore "github.com/repowatch/repowatch/store/sql"
	"github.com/repowatch/repowatch/webhooks"
)

func main() {
	configPath := flag.String("config", "config/app.yaml", "path to the YAML config file")
	flag.Parse()

	_, logger := glog.Resolve("repowatch", nil, nil)

	ctx := context.Background()

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		logger.Fatal("configuration load failed", "error", err.Error())
	}

	client, migrationDialect, err := openPersistence(cfg.Database)
	if err != nil {
		logger.Fatal("database open failed", "error", err.Error())
	}
	defer client.Close()

	if _, err := migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect)); err != nil {
		logger.Fatal("migration registration failed", "error", err.Error())
	}
	if err := client.Migrate(ctx); err != nil {
		logger.Fatal("migration apply failed", "error", err.Error())
	}

	factory, err := sqlstore.NewStoreFactoryFromPersistence(client,
		sqlstore.WithListLimits(cfg.Events.DefaultLimit, cfg.Events.MaxLimit))
	if err != nil {
		logger.Fatal("store factory init failed", "error", err.Error())
	}

	cacheService, err := repositorycache.NewCacheService(repositorycache.DefaultConfig())
	if err != nil {
		logger.Fatal("cache service init failed", "error", err.Error())
	}
	store, err := factory.CachedEventStore(cacheService)
	if err != nil {
		logger.Fatal("event store init failed", "error", err.Error())
	}

	metrics := httpapi.NewMetrics()
	parser := githubevents.NewParser(githubevents.WithLogger(logger))
	processor := webhooks.NewProcessor(
		webhooks.SignatureVerifier{Secret: cfg.Webhook.Secret},
		parser,
		store,
		webhooks.WithLogger(logger),
		webhooks.WithMetricsRecorder(metrics),
	)

	api, err := httpapi.NewServer(cfg, processor, store,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(metrics))
	if err != nil {
		logger.Fatal("http server init failed", "error", err.Error())
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("http server listening",
			"addr", cfg.Server.Addr,
			"driver", cfg.Database.Driver,
			"signature_verification", cfg.Webhook.Secret != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", "error", err.Error())
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func loadConfig(ctx context.Context, path string) (core.Config, error) {
	defaults := core.DefaultConfig()

	provider := core.NewCfgxConfigProvider(core.YAMLFileLoader{Path: path, Optional: true})
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return core.Config{}, err
	}

	return core.GoOptionsResolver{}.Resolve(defaults, loaded, runtimeOverrides())
}

// runtimeOverrides builds the highest-precedence config layer from the
// environment variables deployments conventionally set.
func runtimeOverrides() core.Config {
	var runtime core.Config
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		runtime.Server.Addr = ":" + port
	}
	if addr := strings.TrimSpace(os.Getenv("ADDR")); addr != "" {
		runtime.Server.Addr = addr
	}
	if secret := os.Getenv("WEBHOOK_SECRET"); secret != "" {
		runtime.Webhook.Secret = secret
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		runtime.Database.DSN = dsn
	}
	if driver := strings.TrimSpace(os.Getenv("DATABASE_DRIVER")); driver != "" {
		runtime.Database.Driver = driver
	}
	return runtime
}

func openPersistence(cfg core.DatabaseConfig) (*persistence.Client, string, error) {
	var (
		dialect          schema.Dialect
		migrationDialect string
	)
	switch cfg.Driver {
	case "sqlite3":
		dialect = sqlitedialect.New()
		migrationDialect = migrations.DialectSQLite
	case "postgres":
		dialect = pgdialect.New()
		migrationDialect = migrations.DialectPostgres
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("persistence client: %w", err)
	}
	return client, migrationDialect, nil
}
