// Package admission реализует периодический цикл выдачи сигналов:
// проверку окна времени, кластерную блокировку, выбор пользователей и выдачу.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/lib/timerange"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
	"github.com/magabrotheeeer/signal-engine/internal/models"
	"github.com/magabrotheeeer/signal-engine/internal/storage/repository"
)

// MessageGranted отправляется пользователю сразу после выдачи сигнала.
const MessageGranted = "The analysis system is working. Wait for a signal"

// Repository — операции хранилища, нужные циклу выдачи.
type Repository interface {
	FindEligibleUsers(ctx context.Context, readyBefore time.Time) ([]int64, error)
	GrantSignal(ctx context.Context, userID int64, now time.Time) (*models.Signal, error)
}

// Locker — неблокирующая кластерная блокировка.
type Locker interface {
	TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error)
}

// Settings — настройки цикла выдачи.
type Settings interface {
	RequestRanges(ctx context.Context) []models.TimeRange
	RecoveryInterval(ctx context.Context) time.Duration
	SignalQuota(ctx context.Context) int
}

// Notifier доставляет сообщения пользователям.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Activator запускает асинхронную активацию выданного сигнала.
type Activator interface {
	Activate(sig *models.Signal)
}

// Outcome — исход одного цикла.
type Outcome string

// Исходы цикла выдачи.
const (
	OutcomeOutsideWindow Outcome = "outside_window"
	OutcomeLocked        Outcome = "locked"
	OutcomeCompleted     Outcome = "completed"
	OutcomeError         Outcome = "error"
)

// CycleReport — итог цикла выдачи.
type CycleReport struct {
	Outcome  Outcome
	Eligible int
	Selected int
	Granted  int
}

// Service выполняет циклы выдачи сигналов.
type Service struct {
	repo      Repository
	locker    Locker
	settings  Settings
	notifier  Notifier
	activator Activator
	loc       *time.Location
	log       *slog.Logger

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

// New создаёт сервис выдачи. loc — часовой пояс, в котором проверяются окна выдачи.
func New(repo Repository, locker Locker, settings Settings, notifier Notifier,
	activator Activator, loc *time.Location, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		locker:    locker,
		settings:  settings,
		notifier:  notifier,
		activator: activator,
		loc:       loc,
		log:       log,
		now:       time.Now,
		shuffle:   rand.Shuffle,
	}
}

// Run запускает цикл сразу и затем каждые interval до отмены ctx.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	s.log.Info("admission scheduler started", slog.Duration("interval", interval))
	s.tick(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("admission scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	report, err := s.RunCycle(ctx)
	metrics.AdmissionCycles.WithLabelValues(string(report.Outcome)).Inc()
	if err != nil {
		s.log.Error("admission cycle failed", sl.Err(err))
	}
}

// RunCycle выполняет один цикл выдачи. Закрытое окно и занятая блокировка
// не считаются ошибками и отражаются только в Outcome.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	const op = "admission.RunCycle"
	log := s.log.With(slog.String("op", op))

	if !timerange.Allowed(s.now(), s.loc, s.settings.RequestRanges(ctx)) {
		log.Debug("outside of allowed time ranges, skipping")
		return CycleReport{Outcome: OutcomeOutsideWindow}, nil
	}

	var report CycleReport
	acquired, err := s.locker.TryWithLock(ctx, repository.LockAdmission, func(ctx context.Context) error {
		var err error
		report, err = s.admit(ctx, log)
		return err
	})
	if err != nil {
		report.Outcome = OutcomeError
		return report, fmt.Errorf("%s: %w", op, err)
	}
	if !acquired {
		log.Info("admission lock is held by another instance, skipping")
		return CycleReport{Outcome: OutcomeLocked}, nil
	}

	report.Outcome = OutcomeCompleted
	log.Info("admission cycle completed",
		slog.Int("eligible", report.Eligible),
		slog.Int("selected", report.Selected),
		slog.Int("granted", report.Granted))
	return report, nil
}

func (s *Service) admit(ctx context.Context, log *slog.Logger) (CycleReport, error) {
	now := s.now()
	recovery := s.settings.RecoveryInterval(ctx)
	quota := s.settings.SignalQuota(ctx)

	ids, err := s.repo.FindEligibleUsers(ctx, now.Add(-recovery))
	if err != nil {
		return CycleReport{}, err
	}

	report := CycleReport{Eligible: len(ids)}
	if len(ids) == 0 {
		log.Debug("no eligible users")
		return report, nil
	}

	s.shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	if quota < 0 {
		quota = 0
	}
	if len(ids) > quota {
		ids = ids[:quota]
	}
	report.Selected = len(ids)

	for _, userID := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if s.grant(ctx, userID, now) {
			report.Granted++
		}
	}
	return report, nil
}

// grant выдаёт сигнал одному пользователю. Ошибки не выходят за пределы пользователя.
func (s *Service) grant(ctx context.Context, userID int64, now time.Time) bool {
	log := s.log.With(slog.String("op", "admission.grant"), sl.UserID(userID))

	sig, err := s.repo.GrantSignal(ctx, userID, now)
	switch {
	case errors.Is(err, models.ErrSignalExists):
		metrics.Grants.WithLabelValues("exists").Inc()
		log.Info("user already has an open signal, skipping")
		return false
	case err != nil:
		metrics.Grants.WithLabelValues("error").Inc()
		log.Error("failed to grant signal", sl.Err(err))
		return false
	}

	metrics.Grants.WithLabelValues("granted").Inc()
	log.Info("signal granted", sl.SignalID(sig.ID))

	if err := s.notifier.Send(ctx, userID, MessageGranted); err != nil {
		log.Warn("failed to notify user about granted signal", sl.Err(err))
	}
	s.activator.Activate(sig)
	return true
}
