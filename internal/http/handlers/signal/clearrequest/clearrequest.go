// Package clearrequest содержит обработчик сброса зависшей заявки на сигнал.
package clearrequest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/magabrotheeeer/signal-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/signal-engine/internal/http/response"
	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

// MessageCleared — ответ на успешный сброс.
const MessageCleared = "Signal request cleared"

// Service удаляет pending сигнал пользователя.
type Service interface {
	ClearRequest(ctx context.Context, userID int64) error
}

// Handler обрабатывает POST /signals/clear-request.
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
// @Summary Сбросить заявку на сигнал
// @Description Удаляет ожидающий активации сигнал пользователя. Повторный вызов безопасен.
// @Tags Signals
// @Produce json
// @Success 200 {object} response.MessageResponse
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /signals/clear-request [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.signal.clearrequest"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	if err := h.service.ClearRequest(r.Context(), userID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error(models.ErrUserNotFound.Error()))
			return
		}
		log.Error("failed to clear signal request", sl.UserID(userID), sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not clear signal request"))
		return
	}

	render.JSON(w, r, response.MessageResponse{Message: MessageCleared})
}
