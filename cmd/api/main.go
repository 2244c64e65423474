package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-sync/internal/api/http"
	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sync/internal/batch"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/jira"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/persistence"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
	"github.com/spec-kit/ticket-sync/internal/translate"
	"github.com/spec-kit/ticket-sync/internal/worker"
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

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	syncRecordRepo := repository.NewSyncRecordRepository(pool)
	mappingRepo := repository.NewMappingRepository(pool)
	taxonomyRepo := repository.NewTaxonomyRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)
	companyRepo := repository.NewCompanyRepository(pool)

	trackerClient, err := jira.NewClient(cfg.Jira, logger)
	if err != nil {
		logger.Fatal("failed to create tracker client", zap.Error(err))
	}

	mappingStore := service.NewMappingStore(service.MappingStoreDependencies{
		MappingRepo:    mappingRepo,
		TaxonomyRepo:   taxonomyRepo,
		Cache:          redis.Handle(),
		Logger:         logger,
		DefaultProduct: cfg.Jira.DefaultProduct,
	})
	translator := translate.NewTranslator(mappingStore, translate.Config{
		ProjectKey:       cfg.Jira.ProjectKey,
		FeatureField:     cfg.Jira.FeatureField,
		IssueTypeDefect:  cfg.Jira.IssueTypeDefect,
		IssueTypeRequest: cfg.Jira.IssueTypeRequest,
		TicketIDField:    cfg.Jira.TicketIDField,
		CompanyField:     cfg.Jira.CompanyField,
	})
	ledger := service.NewLedger(ticketRepo, syncRecordRepo, logger)

	reconciler := service.NewInboundReconciler(service.InboundReconcilerDependencies{
		Translator: translator,
		Mappings:   mappingStore,
		Ledger:     ledger,
		Tickets:    ticketRepo,
		Profiles:   profileRepo,
		History:    historyRepo,
		Comments:   commentRepo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	publisher := service.NewOutboundPublisher(service.OutboundPublisherDependencies{
		Translator: translator,
		Client:     trackerClient,
		Tickets:    ticketRepo,
		Taxonomy:   taxonomyRepo,
		Companies:  companyRepo,
		Mappings:   mappingStore,
		Ledger:     ledger,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	refresher := service.NewRefresher(trackerClient, reconciler, logger)
	executor := batch.NewExecutor(ticketRepo, cfg.Batch, logger)

	auditService := service.NewAuditService(dispatcher, redis.Handle(), logger)
	worker.StartAuditWorker(auditService)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Webhook: handlers.NewWebhookHandler(reconciler),
		Mapping: handlers.NewMappingHandler(mappingStore, syncRecordRepo, auditService),
		Sync:    handlers.NewSyncHandler(publisher, refresher, executor, cfg.Batch.MaxScriptBytes),
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
