package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quotes/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-quotes/internal/app"
	jobmetrics "github.com/odyssey-erp/odyssey-quotes/internal/jobs"
	"github.com/odyssey-erp/odyssey-quotes/internal/observability"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
	saleshttp "github.com/odyssey-erp/odyssey-quotes/internal/sales/http"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/offline"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/versioning"
	"github.com/odyssey-erp/odyssey-quotes/internal/shared"
	"github.com/odyssey-erp/odyssey-quotes/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		os.Exit(runCommand(ctx, cfg, logger, os.Args[1:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	quotationRepo := quotations.NewRepository(dbpool)
	quotationService := quotations.NewService(quotationRepo, logger)

	packageRepo := packages.NewRepository(dbpool)
	packageBuilder := packages.NewBuilder(packages.Config{InitialExcluded: cfg.PricingInitialExcluded})
	packageService := packages.NewService(packageRepo, packageBuilder, logger)

	store := versioning.NewPostgresStore(quotationRepo, packageRepo)
	workspace := versioning.NewWorkspace()
	saga := versioning.NewSaga(store, workspace, versioning.Config{AbortInFlight: cfg.SagaAbortInFlight}, logger)
	coordinator := versioning.NewCoordinator(saga, workspace, versioning.Hooks{
		Locker:   cache.NewLocker(redisClient),
		LockTTL:  cfg.SaveLockTTL,
		Auditor:  auditLogger,
		Observer: metrics,
		FollowUp: jobClient,
	}, logger)
	restorer := versioning.NewRestorer(coordinator, logger)

	draftCache := offline.NewRedisCache(redisClient, cfg.CacheTTL)
	reconciler := offline.NewReconciler(draftCache, quotationService, logger)

	quotationHandler := saleshttp.NewHandler(logger, quotationService, packageService, coordinator, restorer, reconciler).
		WithIdempotency(idempotencyStore)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		QuotationHandler: quotationHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runCommand dispatches the operational subcommands:
//
//	odyssey jobs trigger verify --base COT-2501-0001 --prior <id> [--created <id>]
//	odyssey jobs trigger integrity [--prefix COT-2501]
//	odyssey jobs stats [--queue critical]
//	odyssey quotations check [--prefix COT-2501] [--json]
func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch args[0] {
	case "jobs":
		jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
		if err != nil {
			logger.Error("init jobs cli", slog.Any("error", err))
			return 1
		}
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		return jobsCLI.Command(ctx, args[1:], os.Stdout, os.Stderr)
	case "quotations":
		if len(args) < 2 || args[1] != "check" {
			_, _ = os.Stderr.WriteString("usage: odyssey quotations check [--prefix P] [--json]\n")
			return 2
		}
		fs := flag.NewFlagSet("quotations check", flag.ContinueOnError)
		prefix := fs.String("prefix", "", "base number prefix")
		asJSON := fs.Bool("json", false, "print a JSON summary")
		if err := fs.Parse(args[2:]); err != nil {
			return 2
		}
		dbpool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
			return 1
		}
		defer dbpool.Close()
		scanner := jobs.NewIntegrityScanJob(quotations.NewRepository(dbpool), logger, jobmetrics.NewMetrics(nil))
		return cli.IntegrityCommand(ctx, scanner, cli.IntegrityOptions{Prefix: *prefix, JSONOutput: *asJSON})
	default:
		_, _ = os.Stderr.WriteString("usage: odyssey [jobs|quotations] ...\n")
		return 2
	}
}
