// Package scheduler собирает процесс фоновых задач: выдачу сигналов,
// воркеры активации, удаление просроченных сигналов и пополнение энергии.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/signal-engine/internal/cache"
	"github.com/magabrotheeeer/signal-engine/internal/config"
	"github.com/magabrotheeeer/signal-engine/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
	"github.com/magabrotheeeer/signal-engine/internal/services/activation"
	"github.com/magabrotheeeer/signal-engine/internal/services/admission"
	"github.com/magabrotheeeer/signal-engine/internal/services/energy"
	"github.com/magabrotheeeer/signal-engine/internal/services/notifier"
	"github.com/magabrotheeeer/signal-engine/internal/services/reaper"
	"github.com/magabrotheeeer/signal-engine/internal/settings"
	"github.com/magabrotheeeer/signal-engine/internal/storage/repository"
)

// App представляет приложение планировщика.
type App struct {
	cfg        config.Scheduler
	admission  *admission.Service
	activation *activation.Service
	reaper     *reaper.Service
	energy     *energy.Service

	metricsServer *http.Server
	db            *repository.Storage
	cache         *cache.Cache
	conn          *amqp.Connection
	ch            *amqp.Channel
	logger        *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(ctx, db)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения планировщика.
// Воркеры активации живут в ctx и прерываются при его отмене.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("cache not initialized: %w", err)
	}

	provider := settings.New(db, cacheRedis, logger)
	notify := notifier.New(ch)

	activationService := activation.New(ctx, db, db, provider, notify, cfg.ActivationPollInterval, logger)
	admissionService := admission.New(db, db, provider, notify, activationService, loc, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	return &App{
		cfg:        cfg.Scheduler,
		admission:  admissionService,
		activation: activationService,
		reaper:     reaper.New(db, provider, logger),
		energy:     energy.New(db, db, provider, logger),
		metricsServer: &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		db:     db,
		cache:  cacheRedis,
		conn:   conn,
		ch:     ch,
		logger: logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run запускает периодические задачи и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		a.admission.Run(ctx, a.cfg.AdmissionInterval)
	}()
	go func() {
		defer wg.Done()
		a.reaper.Run(ctx, a.cfg.ReaperInterval)
	}()
	go func() {
		defer wg.Done()
		a.energy.Run(ctx)
	}()

	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metricsServer.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", sl.Err(err))
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutting down scheduler service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}

	wg.Wait()
	a.activation.Wait()

	closeResources(a.ch, a.conn, a.logger)
	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close cache", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}
