// Package signalapi собирает HTTP API мини-приложения: состояние,
// подтверждение и история сигналов.
package signalapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/signal-engine/internal/cache"
	"github.com/magabrotheeeer/signal-engine/internal/config"
	"github.com/magabrotheeeer/signal-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/signal-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/migrations"
	"github.com/magabrotheeeer/signal-engine/internal/services/redemption"
	"github.com/magabrotheeeer/signal-engine/internal/settings"
	"github.com/magabrotheeeer/signal-engine/internal/storage/repository"
)

// Лимит на подтверждение сигнала: одна попытка в секунду с запасом в три.
const (
	claimRPS   = 1
	claimBurst = 3
)

// App — HTTP сервер API.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New подключает хранилище и кэш, применяет миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	provider := settings.New(db, cacheRedis, logger)
	redemptionService := redemption.New(db, provider, cacheRedis, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Deps{
		Redemption: redemptionService,
		Tokens:     jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL),
		Users:      db,
		DB:         db.DB,
		Limiter:    middlewarectx.NewUserLimiter(claimRPS, claimBurst),
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  cacheRedis,
	}, nil
}

// Run обслуживает запросы до отмены ctx и затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		runErr = a.server.Shutdown(timeoutCtx)
	}

	if err := a.cache.Close(); err != nil {
		a.logger.Error("failed to close cache", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return runErr
}
