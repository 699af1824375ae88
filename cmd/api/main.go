package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/supportdesk/helpdesk-bridge/internal/api/http"
	"github.com/supportdesk/helpdesk-bridge/internal/api/http/handlers"
	"github.com/supportdesk/helpdesk-bridge/internal/auth"
	"github.com/supportdesk/helpdesk-bridge/internal/config"
	"github.com/supportdesk/helpdesk-bridge/internal/events"
	"github.com/supportdesk/helpdesk-bridge/internal/observability"
	"github.com/supportdesk/helpdesk-bridge/internal/persistence"
	"github.com/supportdesk/helpdesk-bridge/internal/repository"
	"github.com/supportdesk/helpdesk-bridge/internal/service"
	"github.com/supportdesk/helpdesk-bridge/internal/vk"
	"github.com/supportdesk/helpdesk-bridge/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	tagRepo := repository.NewTagRepository(pool)
	groupRepo := repository.NewGroupRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)

	identityCache := vk.NewRedisIdentityCache(redis.Client, cfg.VK.IdentityCacheTTL(), logger)
	vkClient := vk.NewClient(cfg.VK, identityCache, logger)

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		TagRepo:     tagRepo,
		GroupRepo:   groupRepo,
		Resolver:    vkClient,
		Sender:      vkClient,
		Allocator:   service.NewTicketIDAllocator(ticketRepo),
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	authService := service.NewAuthService(cfg.Auth, staffRepo)
	notificationService := service.NewNotificationService(dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), staffRepo)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthDeps := map[string]handlers.Pinger{"redis": redis}
	if pool != nil {
		healthDeps["postgres"] = pool
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(healthDeps),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Webhook:        handlers.NewWebhookHandler(groupRepo, ticketService, cfg.VK, metrics, logger),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Tags:           handlers.NewTagsHandler(tagRepo),
		Staff:          handlers.NewStaffHandler(authService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
