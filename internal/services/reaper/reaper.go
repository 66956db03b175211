// Package reaper удаляет сигналы, пережившие отведённое им время.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
)

// Repository — операции удаления просроченных сигналов.
type Repository interface {
	DeleteExpiredActive(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpiredPending(ctx context.Context, cutoff time.Time) (int64, error)
}

// Settings — сроки жизни сигналов.
type Settings interface {
	ConfirmTimeout(ctx context.Context) time.Duration
	PendingMaxAge(ctx context.Context) time.Duration
}

// Result — сколько сигналов удалено за проход.
type Result struct {
	Active  int64
	Pending int64
}

// Service периодически удаляет просроченные сигналы.
type Service struct {
	repo     Repository
	settings Settings
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт сервис очистки.
func New(repo Repository, st Settings, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		settings: st,
		log:      log,
		now:      time.Now,
	}
}

// Run выполняет очистку каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.log.Info("expiry reaper started", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry reaper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("expiry reaper pass failed", sl.Err(err))
			}
		}
	}
}

// RunOnce удаляет активные сигналы старше ConfirmTimeout и pending сигналы
// старше PendingMaxAge. Ошибка одного удаления не мешает второму.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	const op = "reaper.RunOnce"
	log := s.log.With(slog.String("op", op))

	now := s.now()
	var res Result
	var firstErr error

	n, err := s.repo.DeleteExpiredActive(ctx, now.Add(-s.settings.ConfirmTimeout(ctx)))
	if err != nil {
		firstErr = fmt.Errorf("%s: active: %w", op, err)
	} else {
		res.Active = n
		metrics.Reaped.WithLabelValues("active").Add(float64(n))
	}

	n, err = s.repo.DeleteExpiredPending(ctx, now.Add(-s.settings.PendingMaxAge(ctx)))
	if err != nil {
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: pending: %w", op, err)
		} else {
			log.Error("failed to delete expired pending signals", sl.Err(err))
		}
	} else {
		res.Pending = n
		metrics.Reaped.WithLabelValues("pending").Add(float64(n))
	}

	if res.Active > 0 || res.Pending > 0 {
		log.Info("expired signals deleted", slog.Int64("active", res.Active), slog.Int64("pending", res.Pending))
	}
	return res, firstErr
}
