// Package api serves the credit service over HTTP.
package api

import (
	"context"
	"time"

	"careerkit-credits/internal/common/auth"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/observability"
	"careerkit-credits/internal/credits/billing"
	"careerkit-credits/internal/credits/gate"
	"careerkit-credits/internal/credits/resolver"
	"careerkit-credits/internal/generation"
	"careerkit-credits/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BalanceResolver interface {
	Resolve(ctx context.Context, identifier string) (*resolver.Result, error)
}

type Consumer interface {
	Consume(ctx context.Context, req gate.Request) (*gate.Result, error)
}

type HistoryReader interface {
	List(ctx context.Context, userKey string, limit int) ([]models.UsageEvent, error)
}

type HistorySearch interface {
	History(ctx context.Context, userKey string, size int) ([]models.UsageEvent, error)
}

type UserStore interface {
	UpsertUser(ctx context.Context, authUserID, email string) (*models.User, error)
}

type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (*billing.WebhookResult, error)
}

// Dependencies wires the router. Search, Obs and Ready may be nil.
type Dependencies struct {
	Resolver       BalanceResolver
	Gate           Consumer
	Ledger         HistoryReader
	Search         HistorySearch
	Users          UserStore
	Generator      Generator
	Webhooks       WebhookProcessor
	Verifier       auth.TokenVerifier
	Auth           auth.MiddlewareConfig
	Obs            *observability.Observability
	Ready          func(ctx context.Context) error
	AllowedOrigins []string
	HistoryLimit   int
	Logger         logger.Logger
}

type Server struct {
	deps   Dependencies
	logger logger.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 50
	}
	s := &Server{deps: deps, logger: deps.Logger.WithFields(map[string]interface{}{"component": "api"})}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))
	router.Use(requestMetrics(deps.Obs))

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/api/plans", s.plans)
	router.POST("/api/webhooks/stripe", s.stripeWebhook)

	protected := router.Group("/api")
	protected.Use(auth.Middleware(deps.Verifier, deps.Auth, s.logger))
	protected.Use(s.resolveUser)
	protected.GET("/credits/balance", s.balance)
	protected.POST("/credits/consume", s.consume)
	protected.GET("/credits/history", s.history)
	protected.POST("/generate/:feature", s.generate)

	return router
}
