package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/Phavyajai/webhook-transaction-processor/core"
	"github.com/Phavyajai/webhook-transaction-processor/migrations"
	"github.com/Phavyajai/webhook-transaction-processor/server"
	"github.com/Phavyajai/webhook-transaction-processor/settlement"
	sqlstore "github.com/Phavyajai/webhook-transaction-processor/store/sql"
)

type runtimeConfig struct {
	dbDriver string
	dbDSN    string
	httpAddr string
	debug    bool
}

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "txprocessor" }

// envRawConfigLoader surfaces TXPROC_* settlement knobs through the cfgx
// provider path, so env values layer between defaults and runtime overrides.
type envRawConfigLoader struct{}

func (envRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	raw := map[string]any{}
	if name := strings.TrimSpace(os.Getenv("TXPROC_SERVICE_NAME")); name != "" {
		raw["service_name"] = name
	}

	settlementValues := map[string]any{}
	if value := strings.TrimSpace(os.Getenv("TXPROC_SETTLEMENT_DELAY")); value != "" {
		delay, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("txprocessor: invalid TXPROC_SETTLEMENT_DELAY %q: %w", value, err)
		}
		settlementValues["delay"] = delay
	}
	if value := strings.TrimSpace(os.Getenv("TXPROC_SETTLEMENT_WORKERS")); value != "" {
		workers, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("txprocessor: invalid TXPROC_SETTLEMENT_WORKERS %q: %w", value, err)
		}
		settlementValues["workers"] = workers
	}
	if value := strings.TrimSpace(os.Getenv("TXPROC_SETTLEMENT_QUEUE_CAPACITY")); value != "" {
		capacity, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("txprocessor: invalid TXPROC_SETTLEMENT_QUEUE_CAPACITY %q: %w", value, err)
		}
		settlementValues["queue_capacity"] = capacity
	}
	if len(settlementValues) > 0 {
		raw["settlement"] = settlementValues
	}
	return raw, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("txprocessor: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadRuntimeConfig()

	client, err := openPersistence(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("txprocessor: close persistence: %v", err)
		}
	}()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}
	store := factory.TransactionStore()

	configProvider := core.NewCfgxConfigProvider(envRawConfigLoader{})
	loadedConfig, err := configProvider.Load(ctx, core.DefaultConfig())
	if err != nil {
		return err
	}

	queue := settlement.NewMemoryQueue(loadedConfig.Settlement.QueueCapacity)
	defer queue.Close()

	service, err := core.NewService(core.Config{},
		core.WithTransactionStore(store),
		core.WithSettlementEnqueuer(queue),
		core.WithConfigProvider(configProvider),
	)
	if err != nil {
		return err
	}
	serviceConfig := service.Config()

	worker, err := settlement.NewWorker(store, queue, settlement.WorkerConfig{
		Delay:   serviceConfig.Settlement.Delay,
		Workers: serviceConfig.Settlement.Workers,
	})
	if err != nil {
		return err
	}

	httpServer, err := server.New(service)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- worker.Run(ctx)
	}()
	go func() {
		errCh <- httpServer.Run(ctx, cfg.httpAddr)
	}()

	log.Printf("txprocessor: listening on %s (driver=%s, settlement delay=%s, workers=%d)",
		cfg.httpAddr, cfg.dbDriver, serviceConfig.Settlement.Delay, serviceConfig.Settlement.Workers)

	if err := awaitShutdown(ctx, stop, errCh); err != nil {
		return err
	}
	log.Printf("txprocessor: shutdown complete")
	return nil
}

// awaitShutdown blocks until the worker or the HTTP server exits, or until
// the signal context is cancelled, then drains the remaining goroutine. A
// failure that happens before any shutdown signal, such as a bind error at
// startup, propagates; exits caused by the shutdown itself do not.
func awaitShutdown(ctx context.Context, stop context.CancelFunc, errCh chan error) error {
	select {
	case err := <-errCh:
		interrupted := ctx.Err() != nil
		stop()
		<-errCh
		if err != nil && !interrupted {
			return err
		}
	case <-ctx.Done():
		stop()
		<-errCh
		<-errCh
	}
	return nil
}

func loadRuntimeConfig() runtimeConfig {
	cfg := runtimeConfig{
		dbDriver: "sqlite3",
		dbDSN:    "file:txprocessor.db?_foreign_keys=on",
		httpAddr: ":8000",
	}
	if value := strings.TrimSpace(os.Getenv("TXPROC_DB_DRIVER")); value != "" {
		cfg.dbDriver = value
	}
	if value := strings.TrimSpace(os.Getenv("TXPROC_DB_DSN")); value != "" {
		cfg.dbDSN = value
	}
	if value := strings.TrimSpace(os.Getenv("TXPROC_HTTP_ADDR")); value != "" {
		cfg.httpAddr = value
	}
	if value := strings.TrimSpace(os.Getenv("TXPROC_DEBUG")); value != "" {
		cfg.debug = value == "1" || strings.EqualFold(value, "true")
	}
	return cfg
}

func openPersistence(ctx context.Context, cfg runtimeConfig) (*persistence.Client, error) {
	var dialect schema.Dialect
	var migrationDialect string
	switch cfg.dbDriver {
	case "sqlite3", "sqlite":
		cfg.dbDriver = "sqlite3"
		dialect = sqlitedialect.New()
		migrationDialect = migrations.DialectSQLite
	case "postgres", "pg":
		cfg.dbDriver = "postgres"
		dialect = pgdialect.New()
		migrationDialect = migrations.DialectPostgres
	default:
		return nil, fmt.Errorf("txprocessor: unsupported db driver %q", cfg.dbDriver)
	}

	sqlDB, err := sql.Open(cfg.dbDriver, cfg.dbDSN)
	if err != nil {
		return nil, fmt.Errorf("txprocessor: open database: %w", err)
	}
	if cfg.dbDriver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{
		driver: cfg.dbDriver,
		server: cfg.dbDSN,
		debug:  cfg.debug,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("txprocessor: new persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("txprocessor: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("txprocessor: migrate: %w", err)
	}
	return client, nil
}
