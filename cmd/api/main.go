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
	"google.golang.org/api/iterator"

	"github.com/sellerdesk/api/internal/di"
	"github.com/sellerdesk/api/internal/handlers"
	"github.com/sellerdesk/api/internal/messaging"
	"github.com/sellerdesk/api/internal/platform/config"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
	"github.com/sellerdesk/api/internal/platform/idempotency"
	"github.com/sellerdesk/api/internal/platform/jobs"
	"github.com/sellerdesk/api/internal/platform/observability"
	"github.com/sellerdesk/api/internal/platform/secrets"
	fsrepo "github.com/sellerdesk/api/internal/repositories/firestore"
	"github.com/sellerdesk/api/internal/services"
	"github.com/sellerdesk/api/internal/shipping"
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

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID"))),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)),
	)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := fsrepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	publisher, stopPublisher, err := newOrderEventPublisher(ctx, logger, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	defer stopPublisher()

	carriers, err := newCarrierGateway(logger, cfg.Carriers)
	if err != nil {
		logger.Fatal("failed to initialise carrier gateway", zap.Error(err))
	}

	messages, err := newMessageSender(logger, cfg.Messaging)
	if err != nil {
		logger.Fatal("failed to initialise message sender", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, di.ContainerDeps{
		Events:   publisher,
		Carriers: carriers,
		Messages: messages,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(buildVersion()),
		handlers.WithHealthEnvironment(cfg.Environment),
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
			defer cancel()
			iter := firestoreClient.Collections(checkCtx)
			if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		),
		handlers.WithAPIMiddlewares(
			handlers.StoreScopeMiddleware(),
			handlers.RateLimitMiddleware(cfg.RateLimits.PerMinute),
			idempotency.Middleware(
				idempotency.NewFirestoreStore(firestoreClient),
				idempotency.WithLogger(idempotency.Logger(di.EventLogger(logger.Named("idempotency")))),
			),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(container.Services.Orders).Routes),
		handlers.WithAutomationRoutes(handlers.NewAutomationHandlers(container.Services.Automations).Routes),
		handlers.WithStatsRoutes(handlers.NewStatsHandlers(container.Services.Stats).Routes),
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
		serverLogger.Info("sellerdesk api listening")
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

// newOrderEventPublisher connects the lifecycle topic. Publishing is optional:
// an empty topic name leaves orders working without downstream events.
func newOrderEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.PubSubConfig) (services.OrderEventPublisher, func(), error) {
	noop := func() {}
	if strings.TrimSpace(cfg.OrderEventsTopic) == "" {
		logger.Info("order event publishing disabled; no topic configured")
		return nil, noop, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, noop, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.OrderEventsTopic)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}

	stop := func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
	return publisher, stop, nil
}

// newCarrierGateway registers every carrier with configured credentials.
// Stores without carrier credentials still run; delivery automations for
// them fail per run and are surfaced in the automation summary.
func newCarrierGateway(logger *zap.Logger, cfg config.CarrierConfig) (services.CarrierGateway, error) {
	providers := make(map[string]shipping.CarrierProvider)

	if strings.TrimSpace(cfg.Sendit.PublicKey) != "" && strings.TrimSpace(cfg.Sendit.SecretKey) != "" {
		provider, err := shipping.NewSenditProvider(shipping.SenditProviderConfig{
			BaseURL:   cfg.Sendit.BaseURL,
			PublicKey: cfg.Sendit.PublicKey,
			SecretKey: cfg.Sendit.SecretKey,
			Logger:    shipping.SenditLogger(di.EventLogger(logger.Named("sendit"))),
		})
		if err != nil {
			return nil, fmt.Errorf("sendit provider: %w", err)
		}
		providers["sendit"] = provider
	}

	if strings.TrimSpace(cfg.Olivraison.APIKey) != "" {
		provider, err := shipping.NewOlivraisonProvider(shipping.OlivraisonProviderConfig{
			BaseURL: cfg.Olivraison.BaseURL,
			APIKey:  cfg.Olivraison.APIKey,
			Logger:  shipping.OlivraisonLogger(di.EventLogger(logger.Named("olivraison"))),
		})
		if err != nil {
			return nil, fmt.Errorf("olivraison provider: %w", err)
		}
		providers["olivraison"] = provider
	}

	if len(providers) == 0 {
		logger.Info("no carrier credentials configured; delivery automations disabled")
		return nil, nil
	}
	return shipping.NewManager(providers)
}

func newMessageSender(logger *zap.Logger, cfg config.MessagingConfig) (services.MessageSender, error) {
	if strings.TrimSpace(cfg.DefaultCountryCode) == "" {
		logger.Info("no messaging country code configured; whatsapp automations disabled")
		return nil, nil
	}
	return messaging.NewWhatsAppSender(messaging.WhatsAppSenderConfig{
		CountryCode: cfg.DefaultCountryCode,
		Logger:      messaging.WhatsAppLogger(di.EventLogger(logger.Named("whatsapp"))),
	})
}

func buildVersion() string {
	if version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION")); version != "" {
		return version
	}
	return "dev"
}
