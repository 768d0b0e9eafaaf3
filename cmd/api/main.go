package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradie-marketplace/config"
	httpHandler "tradie-marketplace/internal/adapter/http/handler"
	memStorage "tradie-marketplace/internal/adapter/storage/memory"
	pgStorage "tradie-marketplace/internal/adapter/storage/postgres"
	redisStorage "tradie-marketplace/internal/adapter/storage/redis"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/internal/service"
	"tradie-marketplace/pkg/keylock"
	"tradie-marketplace/pkg/logger"
	"tradie-marketplace/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// storage is the set of persistence adapters for the selected driver.
type storage struct {
	wallets       ports.WalletRepository
	ledger        ports.LedgerRepository
	requests      ports.ServiceRequestRepository
	quotes        ports.QuoteRepository
	unlocks       ports.UnlockRepository
	intelligence  ports.IntelligenceRepository
	profiles      ports.ProfileRepository
	receipts      ports.ReceiptRepository
	audit         ports.AuditRepository
	notifications ports.NotificationLogRepository
	transactor    ports.DBTransactor
	health        ports.HealthChecker
	close         func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		store := memStorage.NewStore()
		return &storage{
			wallets:       memStorage.NewWalletRepo(store),
			ledger:        memStorage.NewLedgerRepo(store),
			requests:      memStorage.NewRequestRepo(store),
			quotes:        memStorage.NewQuoteRepo(store),
			unlocks:       memStorage.NewUnlockRepo(store),
			intelligence:  memStorage.NewIntelligenceRepo(store),
			profiles:      memStorage.NewProfileRepo(store),
			receipts:      memStorage.NewReceiptRepo(store),
			audit:         memStorage.NewAuditRepo(store),
			notifications: memStorage.NewNotificationLogRepo(store),
			transactor:    store,
			health:        store,
			close:         func() {},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().Msg("Database schema applied")
	}
	return &storage{
		wallets:       pgStorage.NewWalletRepo(pool),
		ledger:        pgStorage.NewLedgerRepo(pool),
		requests:      pgStorage.NewRequestRepo(pool),
		quotes:        pgStorage.NewQuoteRepo(pool),
		unlocks:       pgStorage.NewUnlockRepo(pool),
		intelligence:  pgStorage.NewIntelligenceRepo(pool),
		profiles:      pgStorage.NewProfileRepo(pool),
		receipts:      pgStorage.NewReceiptRepo(pool),
		audit:         pgStorage.NewAuditRepo(pool),
		notifications: pgStorage.NewNotificationLogRepo(pool),
		transactor:    pgStorage.NewTransactor(pool, cfg.Marketplace.OperationTimeout),
		health:        pgStorage.NewHealthCheck(pool),
		close:         pool.Close,
	}, nil
}

func main() {
	cfg, err := config.Load(os.Getenv("TML_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting Tradie Marketplace")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	healthCheckers := []ports.HealthChecker{store.health}

	// Redis is optional; without it recharge replays read the receipt table,
	// intelligence reads hit the store, and rate limiting is off.
	var (
		receiptCache   ports.ReceiptCache
		intelCache     ports.IntelligenceCache
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		receiptCache = redisStorage.NewReceiptCache(rdb)
		intelCache = redisStorage.NewIntelligenceCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		log.Info().Msg("Redis connected")
	}

	var m *metrics.Manager
	if cfg.Metrics.Enabled {
		m = metrics.NewManager()
	}

	locks := keylock.New()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(store.audit, log)
	notifier := service.NewNotificationService(cfg.Notify, &http.Client{Timeout: cfg.Notify.Timeout}, store.notifications, m, log)

	walletSvc := service.NewWalletService(store.wallets, store.ledger, store.transactor, locks, m, cfg.Marketplace, log)
	intelSvc := service.NewIntelligenceService(store.quotes, store.intelligence, intelCache, cfg.Marketplace.IntelligenceCacheTTL, m, log)
	ratingSvc := service.NewRatingService(store.profiles, store.transactor, locks, cfg.Marketplace, log)
	lifecycleSvc := service.NewLifecycleService(service.LifecycleDeps{
		Requests:     store.requests,
		Quotes:       store.quotes,
		Unlocks:      store.unlocks,
		Receipts:     store.receipts,
		ReceiptCache: receiptCache,
		Transactor:   store.transactor,
		Wallet:       walletSvc,
		Intelligence: intelSvc,
		Ratings:      ratingSvc,
		Notifier:     notifier,
		Audit:        auditSvc,
		Locks:        locks,
		Metrics:      m,
	}, cfg.Marketplace, log)
	reconcileSvc := service.NewReconciliationService(store.unlocks, store.wallets, store.transactor, auditSvc, m, cfg.Marketplace.ReconcileTimeout, log)

	go reconcileSvc.Run(ctx, cfg.Marketplace.ReconcileInterval)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Lifecycle:      lifecycleSvc,
		Wallet:         walletSvc,
		Ratings:        ratingSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		Metrics:        m,
		MetricsPath:    cfg.Metrics.Path,
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight notifications and audit writes finish before the store closes.
	notifier.Wait()
	auditSvc.Wait()

	log.Info().Msg("Server exited")
}
