package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/anomaly"
	"github.com/septivank/youtilitics-worker/internal/config"
	"github.com/septivank/youtilitics-worker/internal/db"
	"github.com/septivank/youtilitics-worker/internal/logging"
	"github.com/septivank/youtilitics-worker/internal/mq"
	"github.com/septivank/youtilitics-worker/internal/repository"
	"github.com/septivank/youtilitics-worker/internal/service"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}

// startCoordinator runs the poll loop for the lifetime of the application
// and waits for in-flight backfills on stop
func startCoordinator(lc fx.Lifecycle, coordinator *service.Coordinator, logger *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				coordinator.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			waited := make(chan struct{})
			go func() {
				<-done
				coordinator.Wait()
				close(waited)
			}()

			select {
			case <-waited:
				logger.Info("coordinator stopped gracefully")
				return nil
			case <-stopCtx.Done():
				logger.Warn("timed out waiting for backfills to finish")
				return stopCtx.Err()
			}
		},
	})
}

// startRefreshConsumer lets operators trigger a poll cycle through the
// control exchange
func startRefreshConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	coordinator *service.Coordinator,
) (*mq.Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.RefreshQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.ControlExchange,
		RoutingKey:    cfg.RabbitMQ.RefreshRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       coordinator.HandleRefreshRequest,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting refresh consumer",
				zap.String("queue", cfg.RabbitMQ.RefreshQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("refresh consumer stopped")
			return nil
		},
	})

	return consumer, nil
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}

// ProvidePublisher creates the sample event publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.SampleExchange, logger)
}

// ProvideAPIClient creates the authenticated Youtilitics API client
func ProvideAPIClient(cfg *config.Config, logger *zap.Logger) *youtilitics.Client {
	httpClient := youtilitics.NewHTTPClient(context.Background(), cfg.Youtilitics)
	return youtilitics.NewClient(cfg.Youtilitics.APIURL, httpClient, logger)
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideCoordinator creates the poll coordinator
func ProvideCoordinator(
	client *youtilitics.Client,
	repo *repository.Repository,
	publisher *mq.Publisher,
	detector *anomaly.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *service.Coordinator {
	return service.NewCoordinator(client, repo, publisher, detector, cfg, logger)
}
