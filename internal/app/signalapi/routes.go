package signalapi

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	// Регистрация swagger-описания API.
	_ "github.com/magabrotheeeer/signal-engine/docs"
	"github.com/magabrotheeeer/signal-engine/internal/http/handlers/health"
	"github.com/magabrotheeeer/signal-engine/internal/http/handlers/signal/claim"
	"github.com/magabrotheeeer/signal-engine/internal/http/handlers/signal/clearrequest"
	"github.com/magabrotheeeer/signal-engine/internal/http/handlers/signal/list"
	"github.com/magabrotheeeer/signal-engine/internal/http/handlers/signal/status"
	"github.com/magabrotheeeer/signal-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
	"github.com/magabrotheeeer/signal-engine/internal/services/redemption"
)

// Deps — зависимости маршрутов.
type Deps struct {
	Redemption *redemption.Service
	Tokens     middlewarectx.TokenParser
	Users      middlewarectx.UserGetter
	DB         health.Pinger
	Limiter    *middlewarectx.UserLimiter
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		metrics.HTTPMiddleware,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(logger, deps.DB).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(deps.Tokens, logger))
			r.Use(middlewarectx.AccessMiddleware(logger, deps.Users))

			r.Get("/signals", list.New(logger, deps.Redemption).ServeHTTP)
			r.Get("/signals/status", status.New(logger, deps.Redemption).ServeHTTP)
			r.Post("/signals/clear-request", clearrequest.New(logger, deps.Redemption).ServeHTTP)

			r.With(middlewarectx.RateLimitMiddleware(logger, deps.Limiter)).
				Post("/signals/claim/{id}", claim.New(logger, deps.Redemption).ServeHTTP)
		})
	})

	r.Handle("/metrics", metrics.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
