// Package energy ежедневно восстанавливает энергию пользователей.
package energy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
	"github.com/magabrotheeeer/signal-engine/internal/storage/repository"
)

// Repository — обновление энергии пользователей.
type Repository interface {
	RefillEnergy(ctx context.Context, amount int) (int64, error)
}

// Locker — неблокирующая кластерная блокировка.
type Locker interface {
	TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error)
}

// Settings — настройка максимальной энергии.
type Settings interface {
	MaxEnergy(ctx context.Context) int
}

// Service пополняет энергию раз в сутки в 00:00 UTC.
type Service struct {
	repo     Repository
	locker   Locker
	settings Settings
	log      *slog.Logger
	now      func() time.Time
}

// New создаёт сервис пополнения энергии.
func New(repo Repository, locker Locker, st Settings, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		settings: st,
		log:      log,
		now:      time.Now,
	}
}

// nextMidnight возвращает ближайшую полночь UTC строго после t.
func nextMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Run ждёт очередной полуночи UTC и пополняет энергию, пока ctx не отменён.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("energy refill scheduler started")
	for {
		wait := nextMidnight(s.now()).Sub(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("energy refill scheduler stopped")
			return
		case <-timer.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("energy refill failed", sl.Err(err))
			}
		}
	}
}

// RunOnce устанавливает энергию всех пользователей в max_energy под кластерной блокировкой.
func (s *Service) RunOnce(ctx context.Context) error {
	const op = "energy.RunOnce"
	log := s.log.With(slog.String("op", op))

	acquired, err := s.locker.TryWithLock(ctx, repository.LockEnergyRefill, func(ctx context.Context) error {
		amount := s.settings.MaxEnergy(ctx)
		n, err := s.repo.RefillEnergy(ctx, amount)
		if err != nil {
			return err
		}
		log.Info("daily energy distributed", slog.Int("energy", amount), slog.Int64("users", n))
		return nil
	})
	if err != nil {
		metrics.EnergyRefills.WithLabelValues("error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	if !acquired {
		metrics.EnergyRefills.WithLabelValues("locked").Inc()
		log.Info("energy refill lock is held by another instance, skipping")
		return nil
	}
	metrics.EnergyRefills.WithLabelValues("completed").Inc()
	return nil
}
