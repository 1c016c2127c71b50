package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Statement dates are shown in the configured zone.

	"github.com/ardanlabs/conf/v3"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres stdlib driver, used for migrations.
	"github.com/redis/go-redis/v9"
	"github.com/rschio/paytrack/internal/core/account"
	"github.com/rschio/paytrack/internal/core/account/store/accountdb"
	"github.com/rschio/paytrack/internal/core/account/store/accountmem"
	"github.com/rschio/paytrack/internal/core/document"
	"github.com/rschio/paytrack/internal/core/ledger"
	"github.com/rschio/paytrack/internal/core/ledger/store/ledgerdb"
	"github.com/rschio/paytrack/internal/core/ledger/store/ledgermem"
	"github.com/rschio/paytrack/internal/data/dbschema"
	db "github.com/rschio/paytrack/internal/data/dbsql/pgx"
	"github.com/rschio/paytrack/internal/data/lock"
	"github.com/rschio/paytrack/internal/handlers"
	"github.com/rschio/paytrack/internal/logger"
	"github.com/rschio/paytrack/internal/trace"
	"go.opentelemetry.io/otel"
)

var build = "develop"

const (
	storagePostgres = "postgres"
	storageMemory   = "memory"
)

func main() {
	log := logger.New(os.Stdout, slog.LevelInfo, "PAYTRACK")

	if err := run(log); err != nil {
		log.Error("startup", "ERROR", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx := context.Background()

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Env string `conf:"default:DEV"`
		Log struct {
			Level string `conf:"default:INFO"`
		}
		Web struct {
			Port            int           `conf:"default:5000"`
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:60s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			CORSOrigins     []string      `conf:"default:http://localhost:3000;http://localhost:5173"`
			AuthRateLimit   int           `conf:"default:20"`
		}
		Storage struct {
			Mode string `conf:"default:postgres,help:postgres or memory"`
		}
		DB struct {
			User         string `conf:"default:postgres"`
			Password     string `conf:"default:postgres,mask"`
			Host         string `conf:"default:localhost:5432"`
			Name         string `conf:"default:postgres"`
			MaxOpenConns int    `conf:"default:0"`
			DisableTLS   bool   `conf:"default:true"`
			Seed         bool   `conf:"default:false"`
		}
		Redis struct {
			Addr       string        `conf:"help:empty keeps locks in process"`
			Password   string        `conf:"mask"`
			DB         int           `conf:"default:0"`
			LockExpiry time.Duration `conf:"default:8s"`
		}
		Tempo struct {
			Exporter    string  `conf:"default:discard,help:otlp stdout or discard"`
			Endpoint    string  `conf:"default:localhost:4317"`
			Probability float64 `conf:"default:0.05"`
		}
		Ledger struct {
			RecentWindow time.Duration `conf:"default:0s,help:zero counts every transaction"`
		}
		Auth struct {
			BcryptCost int `conf:"default:10"`
		}
		Documents struct {
			Dir          string        `conf:"default:reports"`
			GotenbergURL string        `conf:"help:empty disables pdf generation"`
			Timeout      time.Duration `conf:"default:30s"`
			Keep         int           `conf:"default:1"`
			Location     string        `conf:"default:Europe/Istanbul"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "customer debt ledger",
		},
	}

	const prefix = "PAYTRACK"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	log = logger.New(os.Stdout, logger.ParseLevel(cfg.Log.Level), "PAYTRACK")

	// =========================================================================
	// App Starting

	log.Info("starting service", "version", build)
	defer log.Info("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Info("startup", "config", out)

	// =========================================================================
	// Tracing Support

	log.Info("startup", "status", "initializing tracing support", "exporter", cfg.Tempo.Exporter)

	traceProvider, err := trace.NewProvider(ctx, trace.Config{
		Env:            cfg.Env,
		Endpoint:       cfg.Tempo.Endpoint,
		Service:        "paytrack",
		Exporter:       cfg.Tempo.Exporter,
		SampleFraction: cfg.Tempo.Probability,
	})
	if err != nil {
		return fmt.Errorf("starting tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		traceProvider.Shutdown(ctx)
	}()
	otel.SetTracerProvider(traceProvider)

	tracer := traceProvider.Tracer("service")

	// =========================================================================
	// Storage Support

	var (
		accountStore account.Store
		ledgerStore  ledger.Store
		dbReady      func(ctx context.Context) error
	)

	switch cfg.Storage.Mode {
	case storageMemory:
		log.Info("startup", "status", "using in memory storage, nothing survives a restart")
		accountStore = accountmem.NewStore()
		ledgerStore = ledgermem.NewStore()

	case storagePostgres:
		log.Info("startup", "status", "initializing database support", "host", cfg.DB.Host)

		dbCfg := db.Config{
			User:         cfg.DB.User,
			Password:     cfg.DB.Password,
			Host:         cfg.DB.Host,
			Name:         cfg.DB.Name,
			MaxOpenConns: cfg.DB.MaxOpenConns,
			DisableTLS:   cfg.DB.DisableTLS,
		}
		database, err := db.Open(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("connecting to db: %w", err)
		}
		defer func() {
			log.Info("shutdown", "status", "stopping database support", "host", cfg.DB.Host)
			database.Close()
		}()

		ctxWithTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.StatusCheck(ctxWithTimeout, database); err != nil {
			return fmt.Errorf("database not health: %w", err)
		}

		if err := migrate(ctx, dbCfg, cfg.DB.Seed); err != nil {
			return err
		}

		accountStore = accountdb.NewStore(log, database)
		ledgerStore = ledgerdb.NewStore(log, database)
		dbReady = func(ctx context.Context) error {
			return db.StatusCheck(ctx, database)
		}

	default:
		return fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}

	// =========================================================================
	// Lock Support

	var locker ledger.Locker = lock.NewLocal()

	if cfg.Redis.Addr != "" {
		log.Info("startup", "status", "initializing redis locks", "addr", cfg.Redis.Addr)

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctxWithTimeout).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}

		locker = lock.NewRedis(log, rdb, lock.RedisConfig{Expiry: cfg.Redis.LockExpiry})
	}

	// =========================================================================
	// Core Support

	accounts, err := account.NewCore(log, accountStore, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("account core: %w", err)
	}

	ledgerCore := ledger.NewCore(log, ledgerStore, locker, ledger.WithRecentWindow(cfg.Ledger.RecentWindow))

	loc, err := time.LoadLocation(cfg.Documents.Location)
	if err != nil {
		return fmt.Errorf("loading documents location: %w", err)
	}

	var renderer document.Renderer
	if cfg.Documents.GotenbergURL != "" {
		g := document.NewGotenberg(cfg.Documents.GotenbergURL, cfg.Documents.Timeout)

		ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := g.Ping(ctxWithTimeout); err != nil {
			log.Warn("startup", "status", "gotenberg not reachable, pdf generation will fail until it is", "ERROR", err)
		}
		renderer = g
	} else {
		log.Info("startup", "status", "pdf generation disabled")
	}

	documents := document.NewCore(log, ledgerCore, renderer, document.Config{
		Root:          cfg.Documents.Dir,
		Keep:          cfg.Documents.Keep,
		Location:      loc,
		RenderTimeout: cfg.Documents.Timeout,
	})

	ready := func(ctx context.Context) error {
		if dbReady != nil {
			if err := dbReady(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if err := documents.Ping(ctx); err != nil {
			return fmt.Errorf("gotenberg: %w", err)
		}
		return nil
	}

	// =========================================================================
	// Start API Service

	log.Info("startup", "status", "initializing PAYTRACK API support")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	mux := handlers.APIMux(handlers.Config{
		Log:           log,
		Tracer:        tracer,
		Server:        handlers.NewServer(log, accounts, ledgerCore, documents, ready),
		CORSOrigins:   cfg.Web.CORSOrigins,
		AuthRateLimit: cfg.Web.AuthRateLimit,
	})

	api := http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Info("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Info("shutdown", "status", "shutdown complete", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// migrate brings the schema up to date over a database/sql connection,
// which is what darwin speaks.
func migrate(ctx context.Context, cfg db.Config, seed bool) error {
	cfg.MaxOpenConns = 0 // pool setting, unknown to the stdlib driver.

	stdDB, err := sql.Open("pgx", db.ConnString(cfg))
	if err != nil {
		return fmt.Errorf("failed to open DB for migration: %w", err)
	}
	defer stdDB.Close()

	if err := dbschema.Migrate(stdDB); err != nil {
		return fmt.Errorf("migrating error: %w", err)
	}

	if seed {
		if err := dbschema.Seed(ctx, stdDB); err != nil {
			return fmt.Errorf("seeding error: %w", err)
		}
	}

	return nil
}
