// Package claim содержит обработчик подтверждения активного сигнала.
package claim

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/signal-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/signal-engine/internal/http/response"
	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

// Service подтверждает сигнал.
type Service interface {
	Claim(ctx context.Context, userID, signalID int64) (*models.Signal, error)
}

// Handler обрабатывает POST /signals/claim/{id}.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Подтвердить сигнал
// @Description Переводит активный сигнал пользователя в completed и списывает одну единицу энергии.
// @Tags Signals
// @Produce json
// @Param id path int true "ID сигнала"
// @Success 200 {object} models.Signal
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 402 {object} response.ErrorResponse "Недостаточно энергии"
// @Failure 404 {object} response.ErrorResponse "Сигнал не найден или недоступен"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /signals/claim/{id} [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.signal.claim"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	signalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || signalID <= 0 {
		log.Warn("invalid signal id", slog.String("id", chi.URLParam(r, "id")))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signal id"))
		return
	}

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	sig, err := h.service.Claim(r.Context(), userID, signalID)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrSignalNotFound), errors.Is(err, models.ErrUserNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error(models.ErrSignalNotFound.Error()))
		return
	case errors.Is(err, models.ErrInsufficientEnergy):
		render.Status(r, http.StatusPaymentRequired)
		render.JSON(w, r, response.Error(models.ErrInsufficientEnergy.Error()))
		return
	default:
		log.Error("failed to claim signal", sl.UserID(userID), sl.SignalID(signalID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not claim signal"))
		return
	}

	log.Info("signal claimed", sl.UserID(userID), sl.SignalID(signalID))
	render.JSON(w, r, sig)
}
