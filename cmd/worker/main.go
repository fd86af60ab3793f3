package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/riverguard/parametric-api/internal/chain"
	"github.com/riverguard/parametric-api/internal/config"
	"github.com/riverguard/parametric-api/internal/model"
	"github.com/riverguard/parametric-api/internal/notifier"
	"github.com/riverguard/parametric-api/internal/repository/postgres"
	"github.com/riverguard/parametric-api/internal/service/ingestor"
	notificationService "github.com/riverguard/parametric-api/internal/service/notification"
	thresholdService "github.com/riverguard/parametric-api/internal/service/threshold"
	"github.com/riverguard/parametric-api/internal/station"
	"github.com/riverguard/parametric-api/pkg/logger"
	"github.com/riverguard/parametric-api/pkg/metrics"
	"github.com/riverguard/parametric-api/pkg/messaging/redis"
	"github.com/riverguard/parametric-api/pkg/queue"
	"github.com/riverguard/parametric-api/pkg/worker"
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
	readingRepo := postgres.NewReadingRepository(base)
	thresholdRepo := postgres.NewThresholdRepository(base)
	notificationRepo := postgres.NewNotificationRepository(base)

	jobQueue := queue.NewPostgres(db)
	appMetrics := metrics.New("riverguard_worker")

	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &appLogger.ZL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	chainClient := chain.NewClient(chain.Config{
		Endpoint:        cfg.Chain.Endpoint,
		RegistryAddress: cfg.Chain.RegistryAddress,
		SignerKey:       cfg.Chain.SignerKey,
		Timeout:         cfg.Chain.Timeout(),
	})

	stationSource := station.NewClient(station.Config{
		BaseURL: cfg.Station.BaseURL,
		Timeout: cfg.Station.Timeout(),
	})

	senders := notifier.NewRegistry()
	senders.Register(model.ChannelEmail, notifier.NewEmailSender(notifier.SMTPConfig{
		Host:     cfg.Notifier.SMTP.Host,
		Port:     cfg.Notifier.SMTP.Port,
		Username: cfg.Notifier.SMTP.Username,
		Password: cfg.Notifier.SMTP.Password,
		From:     cfg.Notifier.SMTP.From,
	}))
	senders.Register(model.ChannelSMS, notifier.NewSMSSender(notifier.SMSConfig{
		GatewayURL: cfg.Notifier.SMS.GatewayURL,
		APIKey:     cfg.Notifier.SMS.APIKey,
		SenderID:   cfg.Notifier.SMS.SenderID,
	}))
	senders.Register(model.ChannelPush, notifier.NewPushSender(notifier.PushConfig{
		GatewayURL: cfg.Notifier.Push.GatewayURL,
		APIKey:     cfg.Notifier.Push.APIKey,
	}))
	senders.Register(model.ChannelInApp, notifier.NewInAppSender(notificationRepo, broker))
	senders.Register(model.ChannelWebhook, notifier.NewWebhookSender(notificationRepo, notifier.WebhookConfig{
		Timeout: time.Duration(cfg.Notifier.Webhook.TimeoutSeconds) * time.Second,
	}))

	notificationSvc := notificationService.NewService(notificationRepo, jobQueue, appMetrics, appLogger)
	thresholdSvc := thresholdService.NewService(thresholdRepo, readingRepo, chainClient)

	alertUserID, err := uuid.Parse(cfg.Ingestor.AlertUserID)
	if err != nil && cfg.Ingestor.AlertUserID != "" {
		log.Fatal().Err(err).Msg("invalid ingestor alert user id")
	}

	ingestorSvc := ingestor.NewService(
		ingestor.Config{
			Interval:    cfg.Ingestor.Interval(),
			Stations:    cfg.Ingestor.Stations,
			AlertUserID: alertUserID,
		},
		stationSource, chainClient, readingRepo, thresholdSvc,
		jobQueue, appMetrics, appLogger,
	)

	triggerProcessor := worker.NewTriggerProcessor(jobQueue, notificationSvc, worker.TriggerProcessorConfig{
		Concurrency:  cfg.Workers.TriggerConcurrency,
		BatchSize:    cfg.Workers.BatchSize,
		PollInterval: cfg.Workers.PollInterval(),
	}, appLogger, appMetrics)

	notificationProcessor := worker.NewNotificationProcessor(jobQueue, notificationRepo, senders, worker.NotificationProcessorConfig{
		Concurrency:  cfg.Workers.NotificationConcurrency,
		BatchSize:    cfg.Workers.BatchSize,
		PollInterval: cfg.Workers.PollInterval(),
	}, appLogger, appMetrics)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		ingestorSvc.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		triggerProcessor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		notificationProcessor.Start(ctx)
	}()

	// Janitor: settled jobs stay queryable for a while, then go. Also
	// samples the pending-job gauge.
	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeAfter := time.Duration(cfg.Workers.PurgeAfterHours) * time.Hour
		if purgeAfter <= 0 {
			purgeAfter = 24 * time.Hour
		}
		purgeTicker := time.NewTicker(time.Hour)
		defer purgeTicker.Stop()
		depthTicker := time.NewTicker(30 * time.Second)
		defer depthTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-depthTicker.C:
				depth, err := jobQueue.PendingCount(ctx)
				if err != nil {
					continue
				}
				appMetrics.QueueDepth.Set(float64(depth))
			case <-purgeTicker.C:
				purged, err := jobQueue.PurgeDone(ctx, time.Now().Add(-purgeAfter))
				if err != nil {
					appLogger.Error(err, "failed to purge settled jobs")
					continue
				}
				if purged > 0 {
					appLogger.Info("purged settled jobs", "count", purged)
				}
			}
		}
	}()

	appLogger.Info("worker started",
		"stations", len(cfg.Ingestor.Stations),
		"trigger_concurrency", cfg.Workers.TriggerConcurrency,
		"notification_concurrency", cfg.Workers.NotificationConcurrency)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down worker, draining in-flight jobs")
	cancel()
	wg.Wait()
	appLogger.Info("worker exited")
}
