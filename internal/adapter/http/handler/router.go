package handler

import (
	"tradie-marketplace/internal/adapter/http/middleware"
	redisStore "tradie-marketplace/internal/adapter/storage/redis"
	"tradie-marketplace/internal/core/domain"
	"tradie-marketplace/internal/core/ports"
	"tradie-marketplace/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Lifecycle      ports.LifecycleService
	Wallet         ports.WalletService
	Ratings        ports.RatingService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Manager // nil = no /metrics route
	MetricsPath    string
	AuditSvc       ports.AuditService // nil = denial auditing disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.Metrics.Handler()))
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	customer := middleware.RequireRole(domain.RoleCustomer)
	tradie := middleware.RequireRole(domain.RoleTradie)

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	requestHandler := NewRequestHandler(deps.Lifecycle)
	requests := v1.Group("/requests")
	{
		requests.POST("", customer, rl(middleware.GroupRequests), requestHandler.Create)
		requests.GET("/:id", rl(middleware.GroupRead), requestHandler.Get)
		requests.POST("/:id/unlock", tradie, rl(middleware.GroupUnlock), requestHandler.Unlock)
		requests.POST("/:id/quotes", tradie, rl(middleware.GroupQuotes), requestHandler.SubmitQuote)
		requests.GET("/:id/quotes", rl(middleware.GroupRead), requestHandler.ListQuotes)
		requests.GET("/:id/intelligence", rl(middleware.GroupRead), requestHandler.Intelligence)
		requests.POST("/:id/complete", customer, rl(middleware.GroupRequests), requestHandler.Complete)
		requests.POST("/:id/cancel", customer, rl(middleware.GroupRequests), requestHandler.Cancel)
	}

	quoteHandler := NewQuoteHandler(deps.Lifecycle)
	v1.POST("/quotes/:id/accept", customer, rl(middleware.GroupRequests), quoteHandler.Accept)

	walletHandler := NewWalletHandler(deps.Wallet, deps.Lifecycle)
	wallet := v1.Group("/wallet", tradie)
	{
		wallet.GET("", rl(middleware.GroupRead), walletHandler.GetBalance)
		wallet.GET("/transactions", rl(middleware.GroupRead), walletHandler.ListTransactions)
		wallet.POST("/recharge", rl(middleware.GroupRecharge), walletHandler.Recharge)
	}

	profileHandler := NewProfileHandler(deps.Ratings)
	v1.GET("/tradies/:id/profile", rl(middleware.GroupRead), profileHandler.Get)

	return r
}
