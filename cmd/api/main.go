package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/riverguard/parametric-api/internal/chain"
	"github.com/riverguard/parametric-api/internal/config"
	claimHandler "github.com/riverguard/parametric-api/internal/handler/claim"
	healthHandler "github.com/riverguard/parametric-api/internal/handler/health"
	notificationHandler "github.com/riverguard/parametric-api/internal/handler/notification"
	policyHandler "github.com/riverguard/parametric-api/internal/handler/policy"
	readingHandler "github.com/riverguard/parametric-api/internal/handler/reading"
	"github.com/riverguard/parametric-api/internal/middleware"
	"github.com/riverguard/parametric-api/internal/repository/postgres"
	"github.com/riverguard/parametric-api/internal/router"
	claimService "github.com/riverguard/parametric-api/internal/service/claim"
	ledgerService "github.com/riverguard/parametric-api/internal/service/ledger"
	notificationService "github.com/riverguard/parametric-api/internal/service/notification"
	policyService "github.com/riverguard/parametric-api/internal/service/policy"
	thresholdService "github.com/riverguard/parametric-api/internal/service/threshold"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	policyRepo := postgres.NewPolicyRepository(base)
	readingRepo := postgres.NewReadingRepository(base)
	thresholdRepo := postgres.NewThresholdRepository(base)
	ledgerRepo := postgres.NewLedgerRepository(base)
	claimRepo := postgres.NewClaimRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	jobQueue := queue.NewPostgres(db)
	appMetrics := metrics.New("riverguard")

	chainClient := chain.NewClient(chain.Config{
		Endpoint:        cfg.Chain.Endpoint,
		RegistryAddress: cfg.Chain.RegistryAddress,
		SignerKey:       cfg.Chain.SignerKey,
		Timeout:         cfg.Chain.Timeout(),
	})

	ledgerSvc := ledgerService.NewService(ledgerRepo, appLogger)
	thresholdSvc := thresholdService.NewService(thresholdRepo, readingRepo, chainClient)
	policySvc := policyService.NewService(policyRepo, jobQueue)
	claimSvc := claimService.NewService(
		claimRepo, policyRepo, ledgerRepo, &base,
		chainClient, jobQueue, appMetrics, appLogger,
	)
	notificationSvc := notificationService.NewService(notificationRepo, jobQueue, appMetrics, appLogger)

	// Create the pool row if this is a fresh database; funding comes
	// later through the operator endpoint.
	if err := ledgerSvc.Initialize(context.Background(), 0); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize claims ledger")
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	r := router.NewRouter(
		authMiddleware,
		healthHandler.NewHandler(db, jobQueue),
		claimHandler.NewHandler(claimSvc, ledgerSvc),
		policyHandler.NewHandler(policySvc),
		readingHandler.NewHandler(readingRepo, thresholdSvc),
		notificationHandler.NewHandler(notificationSvc),
		router.Config{
			RateLimit:  rate.Limit(cfg.Server.RateLimitRPS),
			RateBurst:  cfg.Server.RateLimitRPS * 2,
			CORSConfig: middleware.DefaultCORSConfig(),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.Timeout(),
		WriteTimeout: cfg.Server.Timeout(),
	}

	go func() {
		appLogger.Info("starting api server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down api server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited")
}
