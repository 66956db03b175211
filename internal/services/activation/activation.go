// Package activation реализует асинхронную активацию выданного сигнала:
// ожидание условия анализа, паузу перед выдачей, выбор множителя и перевод в active.
package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/metrics"
	"github.com/magabrotheeeer/signal-engine/internal/models"
	"github.com/magabrotheeeer/signal-engine/internal/settings"
)

// Сообщения пользователю.
const (
	MessageComing = "Signal is coming soon"
	MessageReady  = "Signal received. Open the Mini App"
)

// Gate — чем закончилось ожидание условия анализа.
type Gate string

// Исходы активации.
const (
	GateMet       Gate = "met"
	GateTimeout   Gate = "timeout"
	GateAbandoned Gate = "abandoned"
	GateError     Gate = "error"
)

// Repository — операции хранилища над сигналом.
type Repository interface {
	GetSignal(ctx context.Context, signalID int64) (*models.Signal, error)
	ActivateSignal(ctx context.Context, signalID int64, multiplier float64, at time.Time) (bool, error)
}

// RoundSource отдаёт множители последних раундов, начиная с самого нового.
type RoundSource interface {
	RecentRounds(ctx context.Context, n int) ([]float64, error)
}

// Settings — настройки активации.
type Settings interface {
	Analysis(ctx context.Context) settings.AnalysisParams
	IssuingRange(ctx context.Context) (float64, float64)
	SignalReceiveTime(ctx context.Context) time.Duration
}

// Notifier доставляет сообщения пользователям.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Service запускает по воркеру на каждый выданный сигнал.
type Service struct {
	repo         Repository
	rounds       RoundSource
	settings     Settings
	notifier     Notifier
	pollInterval time.Duration
	log          *slog.Logger

	baseCtx context.Context
	wg      sync.WaitGroup

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	randIntN  func(n int) int
}

// New создаёт сервис активации. Воркеры живут в ctx и останавливаются при его отмене.
func New(ctx context.Context, repo Repository, rounds RoundSource, st Settings, notifier Notifier,
	pollInterval time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		rounds:       rounds,
		settings:     st,
		notifier:     notifier,
		pollInterval: pollInterval,
		log:          log,
		baseCtx:      ctx,
		now:          time.Now,
		sleep:        sleepCtx,
		randFloat:    rand.Float64,
		randIntN:     rand.IntN,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Activate запускает воркер активации и сразу возвращает управление.
func (s *Service) Activate(sig *models.Signal) {
	s.wg.Add(1)
	metrics.ActivationWorkers.Inc()
	go func() {
		defer s.wg.Done()
		defer metrics.ActivationWorkers.Dec()

		gate, err := s.Process(s.baseCtx, sig)
		metrics.Activations.WithLabelValues(string(gate)).Inc()
		if err != nil {
			s.log.Error("activation failed", sl.SignalID(sig.ID), sl.Err(err))
		}
	}()
}

// Wait ждёт завершения всех запущенных воркеров.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Process проводит сигнал через ожидание условия анализа и активирует его.
// Если сигнал пропал или перестал быть pending, работа прекращается без ошибки
// с исходом GateAbandoned.
func (s *Service) Process(ctx context.Context, sig *models.Signal) (Gate, error) {
	const op = "activation.Process"
	log := s.log.With(slog.String("op", op), sl.SignalID(sig.ID), sl.UserID(sig.UserID))

	params := s.settings.Analysis(ctx)
	gate, err := s.waitForAnalysis(ctx, sig.ID, params, log)
	if err != nil {
		return GateAbandoned, fmt.Errorf("%s: %w", op, err)
	}
	if gate == GateAbandoned {
		log.Info("signal vanished while waiting for analysis")
		return GateAbandoned, nil
	}

	s.notify(ctx, sig.UserID, MessageComing, log)

	if err := s.sleep(ctx, s.settings.SignalReceiveTime(ctx)); err != nil {
		return GateAbandoned, fmt.Errorf("%s: %w", op, err)
	}

	multiplier := s.pickMultiplier(ctx, params.Rounds, log)

	ok, err := s.repo.ActivateSignal(ctx, sig.ID, multiplier, s.now())
	if err != nil {
		return GateError, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Info("signal is no longer pending, activation skipped")
		return GateAbandoned, nil
	}
	log.Info("signal activated", slog.Float64("multiplier", multiplier), slog.String("gate", string(gate)))

	s.notify(ctx, sig.UserID, MessageReady, log)
	return gate, nil
}

// waitForAnalysis опрашивает условие анализа каждые pollInterval, пока оно не выполнится
// или не истечёт MaxWait. По истечении ожидания активация продолжается.
func (s *Service) waitForAnalysis(ctx context.Context, signalID int64, params settings.AnalysisParams,
	log *slog.Logger) (Gate, error) {
	deadline := s.now().Add(params.MaxWait)
	for {
		if s.analysisMet(ctx, params, log) {
			return GateMet, nil
		}
		if !s.now().Before(deadline) {
			log.Warn("analysis condition not met within max wait time, proceeding",
				slog.Duration("max_wait", params.MaxWait))
			return GateTimeout, nil
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return GateAbandoned, err
		}
		if !s.stillPending(ctx, signalID, log) {
			return GateAbandoned, nil
		}
	}
}

func (s *Service) stillPending(ctx context.Context, signalID int64, log *slog.Logger) bool {
	sig, err := s.repo.GetSignal(ctx, signalID)
	if errors.Is(err, models.ErrSignalNotFound) {
		return false
	}
	if err != nil {
		log.Warn("failed to re-check signal, continuing", sl.Err(err))
		return true
	}
	return sig.Status == models.SignalStatusPending
}

// analysisMet проверяет, что доля последних раундов с множителем
// в [MinCoef, MaxCoef] не меньше Percentage. Без раундов условие не выполнено.
func (s *Service) analysisMet(ctx context.Context, params settings.AnalysisParams, log *slog.Logger) bool {
	rounds, err := s.rounds.RecentRounds(ctx, params.Rounds)
	if err != nil {
		log.Warn("failed to fetch recent rounds", sl.Err(err))
		return false
	}
	if len(rounds) == 0 {
		return false
	}
	matched := 0
	for _, m := range rounds {
		if m >= params.MinCoef && m <= params.MaxCoef {
			matched++
		}
	}
	return float64(matched)/float64(len(rounds))*100 >= params.Percentage
}

// pickMultiplier выбирает случайный множитель среди последних раундов,
// попавших в диапазон выдачи, иначе случайное значение из диапазона.
func (s *Service) pickMultiplier(ctx context.Context, n int, log *slog.Logger) float64 {
	lo, hi := s.settings.IssuingRange(ctx)

	rounds, err := s.rounds.RecentRounds(ctx, n)
	if err != nil {
		log.Warn("failed to fetch recent rounds, using random multiplier", sl.Err(err))
	}
	var suitable []float64
	for _, m := range rounds {
		if m >= lo && m <= hi {
			suitable = append(suitable, m)
		}
	}

	var value float64
	if len(suitable) > 0 {
		value = suitable[s.randIntN(len(suitable))]
	} else {
		value = lo + s.randFloat()*(hi-lo)
	}
	return math.Round(value*100) / 100
}

func (s *Service) notify(ctx context.Context, userID int64, text string, log *slog.Logger) {
	if err := s.notifier.Send(ctx, userID, text); err != nil {
		log.Warn("failed to notify user", slog.String("text", text), sl.Err(err))
	}
}
