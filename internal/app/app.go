package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/castcle/wallet-engine/internal/api"
	"github.com/castcle/wallet-engine/internal/api/middleware"
	"github.com/castcle/wallet-engine/internal/config"
	"github.com/castcle/wallet-engine/internal/db"
	"github.com/castcle/wallet-engine/internal/idempotency"
	"github.com/castcle/wallet-engine/internal/observability"
	"github.com/castcle/wallet-engine/internal/queue"
	"github.com/castcle/wallet-engine/internal/repository"
	"github.com/castcle/wallet-engine/internal/service"
	"github.com/castcle/wallet-engine/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and the background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	store := service.NewStore(repository.NewStore(pool))

	verifyQueue := queue.New(redisClient, "verify", cfg.QueueMaxAttempts)
	payoutQueue := queue.NewPayoutQueue(redisClient)

	transactionSvc := service.NewTransactionService(store, payoutQueue)
	campaignSvc := service.NewCampaignService(store)
	auditSvc := service.NewAuditService(store)
	reconciliationSvc := service.NewReconciliationService(store)

	intakeWorker := worker.NewIntakeWorker(store.Queries(), verifyQueue).
		WithInterval(cfg.IntakeInterval).
		WithBatchSize(cfg.IntakeBatchSize).
		WithStaleAfter(cfg.IntakeStaleAfter)
	stopIntake := intakeWorker.Run(ctx)

	stopVerifiers := make([]func(), 0, cfg.VerifierCount)
	for i := 0; i < cfg.VerifierCount; i++ {
		v := worker.NewVerifierWorker(verifyQueue, transactionSvc, auditSvc)
		stopVerifiers = append(stopVerifiers, v.Run(ctx))
	}

	reconciliationWorker := worker.NewReconciliationWorker(reconciliationSvc).
		WithInterval(cfg.ReconciliationInterval)
	stopReconciliation := reconciliationWorker.Run(ctx)

	logger.Info("workers started",
		zap.Duration("intake_interval", cfg.IntakeInterval),
		zap.Int32("intake_batch", cfg.IntakeBatchSize),
		zap.Int("verifiers", cfg.VerifierCount))

	router := api.NewRouter(cfg, logger, pool, redisClient, idemStore, transactionSvc, campaignSvc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopIntake()
	for _, stop := range stopVerifiers {
		stop()
	}
	stopReconciliation()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
