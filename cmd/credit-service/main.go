// cmd/credit-service/main.go
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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"careerkit-credits/internal/api"
	"careerkit-credits/internal/common/auth"
	awsclient "careerkit-credits/internal/common/aws"
	"careerkit-credits/internal/common/camunda"
	"careerkit-credits/internal/common/config"
	"careerkit-credits/internal/common/database"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/internal/common/observability"
	"careerkit-credits/internal/credits/billing"
	"careerkit-credits/internal/credits/gate"
	"careerkit-credits/internal/credits/ledger"
	"careerkit-credits/internal/credits/resolver"
	"careerkit-credits/internal/generation"
	"careerkit-credits/internal/notify"
	"careerkit-credits/pkg/catalog"
	"careerkit-credits/pkg/registry"

	cc "careerkit-credits/internal/workers/credits/consume-credits"
	rb "careerkit-credits/internal/workers/credits/resolve-balance"
	gc "careerkit-credits/internal/workers/generation/generate-content"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}
	_ = bootLog.Sync()

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("starting credit service", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	ctx := context.Background()

	obs, err := observability.New(cfg.App.Name, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	var tracing *observability.Tracing
	if cfg.Tracing.Enabled {
		tracing, err = observability.NewTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			zapLog.Fatal("tracing init failed", zap.Error(err))
		}
	}

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Database.Postgres.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			zapLog.Fatal("postgres migration failed", zap.Error(err))
		}
	}
	log.Info("PostgreSQL connected", nil)

	// --- Redis (balance cache, optional) ---
	var redisClient *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			redisClient = database.NewRedis(cfg.Database.Redis)
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Redis connected", nil)
	}

	// --- Elasticsearch (usage history, optional) ---
	var search *ledger.SearchIndex
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := esClient.EnsureUsageIndex(ctx, cfg.Database.Elasticsearch.UsageIndex); err != nil {
			zapLog.Fatal("usage index setup failed", zap.Error(err))
		}
		search = ledger.NewSearchIndex(esClient.Client, cfg.Database.Elasticsearch.UsageIndex)
		log.Info("Elasticsearch connected", map[string]interface{}{"index": cfg.Database.Elasticsearch.UsageIndex})
	}

	// --- Billing & credits ---
	prices, err := catalog.NewPriceTable(cfg.Billing.PriceIDs, cfg.Billing.FallbackPlan)
	if err != nil {
		zapLog.Fatal("invalid price table", zap.Error(err))
	}

	subs := billing.NewSubscriptionStore(pg.DB)
	store := ledger.NewPostgresStore(pg.DB)

	var provider *billing.StripeProvider
	if cfg.Billing.StripeSecretKey != "" {
		provider = billing.NewStripeProvider(cfg.Billing.StripeSecretKey)
	} else {
		log.Warn("stripe secret key not set, subscription lookups use stored records only", nil)
	}

	var cache *resolver.Cache
	if redisClient != nil {
		cache = resolver.NewCache(redisClient.Client, config.GetDuration(cfg.Credits.CacheTTL))
	}

	resOpts := resolver.Options{
		Subscriptions:   subs,
		Prices:          prices,
		Ledger:          store,
		Cache:           cache,
		FreeTierCredits: cfg.Credits.FreeTierCredits,
		FailOpen:        cfg.Credits.FailOpen,
		Logger:          log,
	}
	if provider != nil {
		resOpts.Provider = provider
	}
	res := resolver.New(resOpts)

	notifier, err := buildNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notification setup failed", zap.Error(err))
	}

	var indexer gate.EventIndexer
	if search != nil {
		indexer = search
	}
	creditGate := gate.New(res, store, indexer, notifier, log).WithPlanEnforcement(cfg.Credits.EnforcePlanFeatures)

	webhookOpts := billing.WebhookOptions{
		Secret:   cfg.Billing.StripeWebhookSecret,
		Repo:     subs,
		Prices:   prices,
		Cache:    res,
		Notifier: notifier,
		Logger:   log,
	}
	if provider != nil {
		webhookOpts.Fetcher = provider
	}
	webhooks := billing.NewWebhookProcessor(webhookOpts)

	generator := generation.New(generation.Config{
		BaseURL:     cfg.APIs.GenAI.BaseURL,
		APIKey:      cfg.APIs.GenAI.APIKey,
		Model:       cfg.APIs.GenAI.Model,
		Timeout:     config.GetDuration(cfg.APIs.GenAI.Timeout),
		MaxRetries:  cfg.APIs.GenAI.MaxRetries,
		MaxTokens:   cfg.APIs.GenAI.MaxTokens,
		Temperature: cfg.APIs.GenAI.Temperature,
	}, log)

	// --- Zeebe workers (optional) ---
	var zeebe *camunda.Client
	var workers *camunda.Workers
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}

		reg, err := registry.LoadRegistry(cfg.Registry.Path)
		if err != nil {
			log.Warn("activity registry not loaded, job variables are not schema checked", map[string]interface{}{"error": err.Error()})
		}
		activity := func(taskType string) *registry.Activity {
			if reg == nil {
				return nil
			}
			a, _ := reg.ByTaskType(taskType)
			return a
		}

		workers = camunda.NewWorkers(zeebe.GetClient(), log)

		wcfg := config.GetWorkerConfig(cfg, rb.TaskType)
		workers.Start(rb.TaskType, wcfg, rb.NewHandler(rb.LoadConfig(wcfg), res, activity(rb.TaskType), log))

		wcfg = config.GetWorkerConfig(cfg, cc.TaskType)
		workers.Start(cc.TaskType, wcfg, cc.NewHandler(cc.LoadConfig(wcfg), creditGate, activity(cc.TaskType), log))

		wcfg = config.GetWorkerConfig(cfg, gc.TaskType)
		workers.Start(gc.TaskType, wcfg, gc.NewHandler(gc.LoadConfig(wcfg), generator, activity(gc.TaskType), log))

		log.Info("workers registered", map[string]interface{}{"count": workers.Count()})
	}

	// --- HTTP API ---
	var verifier auth.TokenVerifier
	if !cfg.Auth.Disabled {
		v, err := auth.NewVerifier(cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.JWKSURL)
		if err != nil {
			zapLog.Fatal("auth verifier setup failed", zap.Error(err))
		}
		verifier = v
	} else {
		log.Warn("authentication disabled, all requests run as the local dev user", nil)
	}

	deps := api.Dependencies{
		Resolver:       res,
		Gate:           creditGate,
		Ledger:         store,
		Users:          subs,
		Generator:      generator,
		Webhooks:       webhooks,
		Verifier:       verifier,
		Auth:           auth.MiddlewareConfig{Disabled: cfg.Auth.Disabled},
		Obs:            obs,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HistoryLimit:   cfg.Credits.HistoryLimit,
		Logger:         log,
		Ready: func(ctx context.Context) error {
			if err := pg.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(ctx); err != nil {
					return err
				}
			}
			if zeebe != nil {
				return zeebe.HealthCheck(ctx)
			}
			return nil
		},
	}
	if search != nil {
		deps.Search = search
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if workers != nil {
		workers.Close()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			log.Error("error closing Zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error("observability shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	log.Info("credit service stopped", nil)
}

func buildNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (notify.Notifier, error) {
	if !cfg.Email.Enabled && !cfg.Events.Enabled {
		return notify.NoOp{}, nil
	}

	var email interface {
		SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) (string, error)
	}
	var events interface {
		PublishEvent(ctx context.Context, eventName string, payload interface{}) (string, error)
	}

	if cfg.Email.Enabled {
		c, err := awsclient.NewSESClient(ctx, cfg.AWS.Region, cfg.Email.FromEmail)
		if err != nil {
			return nil, fmt.Errorf("ses: %w", err)
		}
		email = c
	}
	if cfg.Events.Enabled {
		c, err := awsclient.NewSNSClient(ctx, cfg.AWS.Region, cfg.Events.TopicARN)
		if err != nil {
			return nil, fmt.Errorf("sns: %w", err)
		}
		events = c
	}
	return notify.NewAWSNotifier(email, events, log), nil
}
