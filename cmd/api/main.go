package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/saffron-market/api/internal/handlers"
	"github.com/saffron-market/api/internal/payments"
	"github.com/saffron-market/api/internal/platform/auth"
	"github.com/saffron-market/api/internal/platform/config"
	pfirestore "github.com/saffron-market/api/internal/platform/firestore"
	"github.com/saffron-market/api/internal/platform/jobs"
	"github.com/saffron-market/api/internal/platform/observability"
	"github.com/saffron-market/api/internal/platform/secrets"
	"github.com/saffron-market/api/internal/services"

	firestoreRepo "github.com/saffron-market/api/internal/repositories/firestore"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := loadConfig(ctx, logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}

	registry, err := buildPaymentRegistry(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment providers", zap.Error(err))
	}
	gateway, err := registry.Resolve(cfg.Gateway.Provider)
	if err != nil {
		logger.Fatal("failed to resolve payment provider", zap.Error(err))
	}

	tokenCodec, err := auth.NewTokenCodec(cfg.Auth.TokenSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("failed to initialise token codec", zap.Error(err))
	}
	authn := auth.NewMiddleware(tokenCodec)

	var eventPublisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Events.Enabled() {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		eventPublisher, err = jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.Events.Topic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		logger.Info("order event publishing enabled", zap.String("topic", cfg.Events.Topic))
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	ordersLogger := logger.Named("orders")
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      orderRepo,
		Users:       userRepo,
		Gateway:     gateway,
		Pricing:     services.NewPricingCalculator(services.DefaultShippingFee),
		CallbackURL: cfg.Gateway.CallbackURL,
		Events:      eventPublisher,
		Logger:      zapEventLogger(ordersLogger),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	userService, err := services.NewUserService(services.UserServiceDeps{
		Users:  userRepo,
		Tokens: tokenCodec,
	})
	if err != nil {
		logger.Fatal("failed to initialise user service", zap.Error(err))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(userService).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(orderService, authn).Routes),
		handlers.WithPaymentRoutes(handlers.NewPaymentHandlers(orderService).Routes),
		handlers.WithAdminRoutes(handlers.NewAdminHandlers(orderService, authn).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("saffron-market api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// loadConfig wires a Secret Manager fetcher into configuration loading so
// secret:// references resolve at startup. The fetcher is only constructed
// when a project is available; otherwise plain env values are used.
func loadConfig(ctx context.Context, logger *zap.Logger) (config.Config, error) {
	projectID := strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID"))
	}
	if projectID == "" {
		return config.Load(ctx)
	}

	fetcher, err := secrets.NewFetcher(ctx, projectID, secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		logger.Warn("secret fetcher unavailable; secret references will not resolve", zap.Error(err))
		return config.Load(ctx)
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	return config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
}

func buildPaymentRegistry(cfg config.Config, logger *zap.Logger) (*payments.Registry, error) {
	providers := make(map[string]payments.Provider, 2)

	if strings.TrimSpace(cfg.Gateway.MerchantID) != "" {
		gateway, err := payments.NewGatewayProvider(payments.GatewayProviderConfig{
			MerchantID:  cfg.Gateway.MerchantID,
			RequestURL:  cfg.Gateway.RequestURL,
			VerifyURL:   cfg.Gateway.VerifyURL,
			StartPayURL: cfg.Gateway.StartPayURL,
			Timeout:     cfg.Gateway.Timeout,
			Logger:      zapEventLogger(logger.Named("gateway")),
		})
		if err != nil {
			return nil, err
		}
		providers["gateway"] = gateway
	}

	if strings.TrimSpace(cfg.Gateway.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Gateway.StripeAPIKey,
			Logger: zapEventLogger(logger.Named("stripe")),
		})
		if err != nil {
			return nil, err
		}
		providers["stripe"] = stripe
	}

	registry, err := payments.NewRegistry(providers)
	if err != nil {
		return nil, err
	}
	if err := registry.SetDefault(cfg.Gateway.Provider); err != nil {
		return nil, err
	}
	return registry, nil
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug(event, zFields...)
	}
}
