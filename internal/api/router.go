package api

import (
	"github.com/castcle/wallet-engine/internal/api/handler"
	"github.com/castcle/wallet-engine/internal/api/middleware"
	"github.com/castcle/wallet-engine/internal/api/spec"
	"github.com/castcle/wallet-engine/internal/config"
	"github.com/castcle/wallet-engine/internal/idempotency"
	"github.com/castcle/wallet-engine/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Router wires the HTTP surface: public health and spec endpoints, the
// authenticated wallet and campaign routes, and the admin campaign routes.
type Router struct {
	cfg          *config.Config
	logger       *zap.Logger
	db           *pgxpool.Pool
	redis        redis.Cmdable
	idemStore    *idempotency.Store
	transactions *service.TransactionService
	campaigns    *service.CampaignService
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *pgxpool.Pool,
	redisClient redis.Cmdable,
	idemStore *idempotency.Store,
	transactions *service.TransactionService,
	campaigns *service.CampaignService,
) *Router {
	return &Router{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		idemStore:    idemStore,
		transactions: transactions,
		campaigns:    campaigns,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	walletHandler := handler.NewWalletHandler(api.transactions)
	campaignHandler := handler.NewCampaignHandler(api.campaigns)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz/live", healthHandler.Live)
		r.Get("/healthz/ready", healthHandler.Ready)
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
	})
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/wallet/{ownerId}/balance", walletHandler.GetBalance)
		r.Get("/v1/wallet/transactions/{id}", walletHandler.GetTransaction)

		idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)
		r.With(idem).Post("/v1/wallet/transfers", walletHandler.CreateTransfer)
		r.With(idem).Post("/v1/wallet/withdrawals", walletHandler.CreateWithdraw)

		r.Post("/v1/campaigns/verify-mobile/claims", campaignHandler.ClaimMobileVerification)
		r.Post("/v1/campaigns/referral/claims", campaignHandler.ClaimFriendReferral)

		// Admin surface
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/v1/campaigns", campaignHandler.CreateCampaign)
			r.Get("/v1/campaigns/{id}", campaignHandler.GetCampaign)
		})
	})

	return r
}
