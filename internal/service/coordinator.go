package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/septivank/youtilitics-worker/internal/anomaly"
	"github.com/septivank/youtilitics-worker/internal/config"
	"github.com/septivank/youtilitics-worker/internal/logging"
	"github.com/septivank/youtilitics-worker/internal/mq"
	"github.com/septivank/youtilitics-worker/internal/reconciler"
	"github.com/septivank/youtilitics-worker/internal/youtilitics"
)

// API is the slice of the Youtilitics client the coordinator needs
type API interface {
	reconciler.Source
	FetchAccounts(ctx context.Context) ([]youtilitics.Account, error)
	FetchServiceTypes(ctx context.Context) (youtilitics.ServiceType, error)
}

// Coordinator runs poll cycles: it discovers services, starts a reconciler
// pair per service and refreshes the ones already running.
type Coordinator struct {
	api       API
	store     StateStore
	publisher SamplePublisher
	detector  *anomaly.Detector
	cfg       *config.Config
	logger    *zap.Logger

	// cycleMu serializes poll cycles
	cycleMu  sync.Mutex
	entities map[string]reconciler.Reconciler

	backfills errgroup.Group
	pending   sync.WaitGroup
	inflightM sync.Mutex
	inflight  map[string]bool
}

// NewCoordinator creates a new coordinator
func NewCoordinator(
	api API,
	store StateStore,
	publisher SamplePublisher,
	detector *anomaly.Detector,
	cfg *config.Config,
	logger *zap.Logger,
) *Coordinator {
	c := &Coordinator{
		api:       api,
		store:     store,
		publisher: publisher,
		detector:  detector,
		cfg:       cfg,
		logger:    logger,
		entities:  make(map[string]reconciler.Reconciler),
		inflight:  make(map[string]bool),
	}
	if cfg.Polling.BackfillConcurrency > 0 {
		c.backfills.SetLimit(cfg.Polling.BackfillConcurrency)
	}
	return c
}

// Run polls once immediately, then on every tick until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("coordinator started", zap.Duration("interval", c.cfg.Polling.Interval))

	if err := c.Refresh(ctx); err != nil {
		c.logger.Error("initial refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.cfg.Polling.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping")
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh runs one poll cycle. A failure to list accounts or service types
// fails the cycle; a failing entity is logged and the cycle moves on.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	cycleLogger := logging.WithCycleID(c.logger, uuid.NewString())
	started := time.Now()

	accounts, err := c.api.FetchAccounts(ctx)
	if err != nil {
		return fmt.Errorf("error communicating with API: %w", err)
	}
	types, err := c.api.FetchServiceTypes(ctx)
	if err != nil {
		return fmt.Errorf("error communicating with API: %w", err)
	}

	sensors := ResolveSensors(accounts, types, cycleLogger)

	var added, refreshed, failed int
	for _, sensor := range sensors {
		entityLogger := logging.WithEntity(cycleLogger, sensor.Key, sensor.ServiceID)

		if rec, ok := c.entities[sensor.Key]; ok {
			if err := rec.Refresh(ctx); err != nil {
				entityLogger.Error("entity refresh failed", zap.Error(err))
				failed++
				continue
			}
			if !rec.State().Backfilled {
				c.schedule(ctx, rec, rec.Backfill, entityLogger)
			}
			refreshed++
			continue
		}

		rec := reconciler.New(sensor, c.api, c.host(sensor, entityLogger), reconciler.Options{
			Stride:   c.cfg.Polling.BackfillStride,
			Detector: c.detector,
			Logger:   cycleLogger,
		})
		task, err := rec.Start(ctx)
		if err != nil {
			entityLogger.Error("entity start failed", zap.Error(err))
			failed++
			continue
		}
		c.entities[sensor.Key] = rec
		c.schedule(ctx, rec, task, entityLogger)
		added++
	}

	cycleLogger.Info("refresh cycle completed",
		zap.Int("accounts", len(accounts)),
		zap.Int("entities_added", added),
		zap.Int("entities_refreshed", refreshed),
		zap.Int("entities_failed", failed),
		zap.Duration("duration", time.Since(started)),
	)
	return nil
}

// HandleRefreshRequest runs a poll cycle for a refresh request delivered
// over the control queue
func (c *Coordinator) HandleRefreshRequest(ctx context.Context, body []byte) error {
	var req mq.RefreshRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("failed to unmarshal refresh request: %w", err)
	}

	c.logger.Info("refresh requested",
		zap.String("request_id", req.RequestID),
		zap.String("requested_by", req.RequestedBy),
	)
	return c.Refresh(ctx)
}

// Entity returns the reconciler registered under key
func (c *Coordinator) Entity(key string) (reconciler.Reconciler, bool) {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	rec, ok := c.entities[key]
	return rec, ok
}

// Wait blocks until all scheduled backfills have finished
func (c *Coordinator) Wait() {
	c.pending.Wait()
	_ = c.backfills.Wait()
}

func (c *Coordinator) host(sensor reconciler.Sensor, logger *zap.Logger) reconciler.Host {
	return &entityHost{
		key:        sensor.Key,
		store:      c.store,
		publisher:  c.publisher,
		routingKey: c.cfg.RabbitMQ.SampleRoutingKey,
		logger:     logger,
	}
}

// schedule runs a backfill in the background unless one is already running
// for the entity. Failures are logged; the entity stays un-backfilled and is
// retried on a later cycle.
func (c *Coordinator) schedule(ctx context.Context, rec reconciler.Reconciler, task reconciler.Task, logger *zap.Logger) {
	if task == nil {
		return
	}
	key := rec.Sensor().Key

	c.inflightM.Lock()
	if c.inflight[key] {
		c.inflightM.Unlock()
		return
	}
	c.inflight[key] = true
	c.inflightM.Unlock()

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.backfills.Go(func() error {
			defer func() {
				c.inflightM.Lock()
				delete(c.inflight, key)
				c.inflightM.Unlock()
			}()

			if err := task(ctx); err != nil {
				logger.Error("history backfill failed", zap.Error(err))
				return nil
			}
			logger.Info("history backfill completed")
			return nil
		})
	}()
}
