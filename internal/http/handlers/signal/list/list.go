// Package list содержит обработчик истории сигналов.
package list

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/magabrotheeeer/signal-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/signal-engine/internal/http/response"
	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

const defaultLimit = 20

// Service возвращает сигналы по фильтру.
type Service interface {
	List(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error)
}

// Handler обрабатывает GET /signals.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary История сигналов
// @Description Возвращает активные и подтверждённые сигналы, новые первыми. Администратор видит сигналы всех пользователей и может отфильтровать по user_id и username.
// @Tags Signals
// @Produce json
// @Param limit query int false "Размер страницы (1..100)" default(20)
// @Param offset query int false "Смещение" default(0)
// @Param status query string false "Статус" Enums(active, completed)
// @Param id query int false "Идентификатор сигнала"
// @Param multiplier query number false "Множитель"
// @Param amount query int false "Сумма"
// @Param user_id query int false "Пользователь (только для администратора)"
// @Param username query string false "Подстрока имени пользователя (только для администратора)"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры запроса"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /signals [get]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.signal.list"
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

	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultLimit)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid limit"))
		return
	}
	offset, err := intParam(q.Get("offset"), 0)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid offset"))
		return
	}

	filter := models.SignalFilter{
		Status: q.Get("status"),
		Limit:  limit,
		Offset: offset,
	}
	if filter.ID, err = optionalParam(q.Get("id"), parseInt64); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid id"))
		return
	}
	if filter.Multiplier, err = optionalParam(q.Get("multiplier"), parseFloat); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid multiplier"))
		return
	}
	if filter.Amount, err = optionalParam(q.Get("amount"), strconv.Atoi); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid amount"))
		return
	}
	if middlewarectx.RoleFromContext(r.Context()) == models.RoleAdmin {
		if filter.UserID, err = optionalParam(q.Get("user_id"), parseInt64); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("invalid user_id"))
			return
		}
		filter.Username = strings.TrimSpace(q.Get("username"))
	} else {
		filter.UserID = &userID
	}

	if err := h.validate.Struct(filter); err != nil {
		log.Warn("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	res, err := h.service.List(r.Context(), filter)
	if err != nil {
		log.Error("failed to list signals", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list signals"))
		return
	}

	log.Debug("signals listed", slog.Int("count", len(res)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"count":   len(res),
		"signals": res,
	}))
}

func parseInt64(raw string) (int64, error) { return strconv.ParseInt(raw, 10, 64) }

// parseFloat отвергает NaN и бесконечности.
func parseFloat(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrRange
	}
	return f, nil
}

func optionalParam[T any](raw string, parse func(string) (T, error)) (*T, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
