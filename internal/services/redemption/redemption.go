// Package redemption реализует синхронные операции пользователя над сигналом:
// подтверждение активного сигнала, запрос состояния и сброс зависшей заявки.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

const (
	statusCachePrefix = "signal-status:"
	statusCacheTTL    = 3 * time.Second
)

// Repository — операции хранилища, нужные сервису.
type Repository interface {
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ClaimSignal(ctx context.Context, userID, signalID int64, activatedAfter time.Time) (*models.Signal, error)
	FindOpenSignal(ctx context.Context, userID int64) (*models.Signal, error)
	DeletePendingByUser(ctx context.Context, userID int64) (int64, error)
	ListSignals(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error)
}

// Settings — настройки, влияющие на ответы.
type Settings interface {
	ConfirmTimeout(ctx context.Context) time.Duration
	RecoveryInterval(ctx context.Context) time.Duration
}

// Cache — кэш ответов о состоянии.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Service обслуживает запросы пользователя к его сигналу.
type Service struct {
	repo     Repository
	settings Settings
	cache    Cache
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт сервис. cache может быть nil.
func New(repo Repository, st Settings, cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		settings: st,
		cache:    cache,
		log:      log,
		now:      time.Now,
	}
}

func statusKey(userID int64) string {
	return statusCachePrefix + strconv.FormatInt(userID, 10)
}

// Claim подтверждает активный сигнал пользователя и списывает энергию.
// Сигнал, чьё окно подтверждения уже истекло, считается ненайденным.
func (s *Service) Claim(ctx context.Context, userID, signalID int64) (*models.Signal, error) {
	const op = "redemption.Claim"
	log := s.log.With(slog.String("op", op), sl.UserID(userID), sl.SignalID(signalID))

	cutoff := s.now().Add(-s.settings.ConfirmTimeout(ctx))
	sig, err := s.repo.ClaimSignal(ctx, userID, signalID, cutoff)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSignalNotFound), errors.Is(err, models.ErrUserNotFound):
			metrics.Claims.WithLabelValues("not_found").Inc()
			log.Info("claim rejected", sl.Err(err))
		case errors.Is(err, models.ErrInsufficientEnergy):
			metrics.Claims.WithLabelValues("insufficient_energy").Inc()
			log.Info("claim rejected", sl.Err(err))
		default:
			metrics.Claims.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.Claims.WithLabelValues("completed").Inc()
	log.Info("signal claimed")
	s.invalidate(ctx, userID)
	return sig, nil
}

// Status возвращает состояние сигнала пользователя: ожидание, готовность
// или, если сигнала нет, возможность запроса и оставшийся cooldown.
func (s *Service) Status(ctx context.Context, userID int64) (*models.SignalRequestStatus, error) {
	const op = "redemption.Status"
	log := s.log.With(slog.String("op", op), sl.UserID(userID))

	if s.cache != nil {
		var cached models.SignalRequestStatus
		found, err := s.cache.Get(ctx, statusKey(userID), &cached)
		if err != nil {
			log.Warn("failed to read status from cache", sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	status, err := s.buildStatus(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statusKey(userID), status, statusCacheTTL); err != nil {
			log.Warn("failed to cache status", sl.Err(err))
		}
	}
	return status, nil
}

func (s *Service) buildStatus(ctx context.Context, userID int64) (*models.SignalRequestStatus, error) {
	sig, err := s.repo.FindOpenSignal(ctx, userID)
	switch {
	case err == nil:
		return s.openStatus(ctx, sig), nil
	case !errors.Is(err, models.ErrSignalNotFound):
		return nil, err
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &models.SignalRequestStatus{CanRequest: true}
	if user.LastSignalRequestAt == nil {
		return status, nil
	}
	recovery := s.settings.RecoveryInterval(ctx)
	elapsed := s.now().Sub(*user.LastSignalRequestAt)
	if elapsed < recovery {
		cooldown := int64(math.Ceil((recovery - elapsed).Seconds()))
		status.CanRequest = false
		status.CooldownSeconds = &cooldown
	}
	return status, nil
}

func (s *Service) openStatus(ctx context.Context, sig *models.Signal) *models.SignalRequestStatus {
	id := sig.ID
	if sig.Status == models.SignalStatusPending {
		pending := true
		requestTime := sig.CreatedAt.UnixMilli()
		return &models.SignalRequestStatus{
			CanRequest:  false,
			IsPending:   &pending,
			RequestTime: &requestTime,
			SignalID:    &id,
		}
	}

	confirm := s.settings.ConfirmTimeout(ctx).Milliseconds()
	status := &models.SignalRequestStatus{
		CanRequest:     false,
		ConfirmTimeout: &confirm,
		SignalID:       &id,
	}
	if sig.ActivatedAt != nil {
		activated := sig.ActivatedAt.UnixMilli()
		status.ActivatedAt = &activated
	}
	return status
}

// ClearRequest удаляет pending сигнал пользователя. Повторный вызов ничего не меняет.
func (s *Service) ClearRequest(ctx context.Context, userID int64) error {
	const op = "redemption.ClearRequest"
	log := s.log.With(slog.String("op", op), sl.UserID(userID))

	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := s.repo.DeletePendingByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		log.Info("pending signal cleared", slog.Int64("deleted", n))
	}
	s.invalidate(ctx, userID)
	return nil
}

// List возвращает историю сигналов по фильтру.
func (s *Service) List(ctx context.Context, filter models.SignalFilter) ([]*models.Signal, error) {
	const op = "redemption.List"
	signals, err := s.repo.ListSignals(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return signals, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, statusKey(userID)); err != nil {
		s.log.Warn("failed to invalidate status cache", sl.UserID(userID), sl.Err(err))
	}
}
