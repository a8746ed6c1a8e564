package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/example/bank-ledger/internal/api"
	"github.com/example/bank-ledger/internal/coa"
	"github.com/example/bank-ledger/internal/config"
	"github.com/example/bank-ledger/internal/ledger"
	"github.com/example/bank-ledger/internal/mapping"
	"github.com/example/bank-ledger/internal/promote"
	"github.com/example/bank-ledger/internal/reconcile"
	"github.com/example/bank-ledger/internal/security"
	"github.com/example/bank-ledger/internal/session"
	"github.com/example/bank-ledger/internal/staging"
	"github.com/example/bank-ledger/pkg/audit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		os.Exit(1)
	}

	for name, ensure := range map[string]func(context.Context, *pgxpool.Pool) error{
		"ledger":    ledger.EnsureSchema,
		"session":   session.EnsureSchema,
		"mapping":   mapping.EnsureSchema,
		"reconcile": reconcile.EnsureSchema,
	} {
		if err := ensure(ctx, pool); err != nil {
			logger.Error("failed to ensure schema", "schema", name, "error", err)
			os.Exit(1)
		}
	}

	stagingDB, err := sql.Open("sqlite3", cfg.StagingDBPath)
	if err != nil {
		logger.Error("failed to open staging database", "path", cfg.StagingDBPath, "error", err)
		os.Exit(1)
	}
	defer stagingDB.Close()

	stagingStore := staging.NewStore(stagingDB)
	if err := stagingStore.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure staging schema", "error", err)
		os.Exit(1)
	}

	chartPath := getenv("COA_FILE", "chart_of_accounts.json")
	accounts, err := coa.LoadFile(chartPath)
	if err != nil {
		logger.Error("failed to load chart of accounts", "path", chartPath, "error", err)
		os.Exit(1)
	}

	var rateLimiter *security.RedisTokenBucket
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		rateLimiter = &security.RedisTokenBucket{
			Redis:      redisClient,
			Prefix:     "ledgerd",
			Capacity:   20,
			RefillRate: 10,
		}
	}

	adminAllowlist, err := security.ParseCIDRAllowlist(strings.Split(getenv("ADMIN_IP_ALLOWLIST", ""), ","))
	if err != nil {
		logger.Error("invalid ADMIN_IP_ALLOWLIST", "error", err)
		os.Exit(1)
	}

	sessions := session.NewPostgresStore(pool)
	rules := mapping.NewPostgresRuleStore(pool)
	ledgerStore := ledger.NewPostgresStore(pool)
	reconStore := reconcile.NewPostgresStore(pool)
	auditor := audit.NewChainLogger()

	router, err := api.NewRouter(api.Dependencies{
		Logger:          logger,
		Sessions:        sessions,
		Accounts:        accounts,
		Mapper:          mapping.NewEngine(rules, sessions, accounts, logger),
		Rules:           rules,
		StagingBuilder:  staging.NewBuilder(stagingStore, sessions, accounts, cfg.Currency, logger),
		Staging:         stagingStore,
		Promoter:        promote.NewPromoter(ledgerStore, stagingStore, sessions, auditor, logger),
		Balances:        ledgerStore,
		Reconciliations: reconcile.NewService(reconStore, ledgerStore, nil, logger),
		ReconStore:      reconStore,
		Adjustments:     reconcile.NewAdjustmentBuilder(reconStore, ledgerStore, accounts, cfg.Currency, logger),
		Auditor:         auditor,
		RateLimiter:     rateLimiter,
		AdminAllowlist:  adminAllowlist,
		MaxImportRows:   cfg.MaxImportRows,
	})
	if err != nil {
		logger.Error("failed to build router", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("ledgerd listening", "addr", cfg.ListenAddr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
