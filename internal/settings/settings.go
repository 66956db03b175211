// Package settings предоставляет типизированный доступ к бизнес-настройкам
// из таблицы settings. У каждого ключа есть значение по умолчанию, которое
// используется, если ключ отсутствует или не разбирается.
package settings

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/magabrotheeeer/signal-engine/internal/lib/sl"
	"github.com/magabrotheeeer/signal-engine/internal/models"
)

// Ключи настроек.
const (
	KeyRecoveryTime        = "signal_request_recovery_time"
	KeySignalQuota         = "max_users_get_signal_request"
	KeyRequestRanges       = "signal_request_ranges"
	KeyAnalysisRounds      = "analysis_rounds"
	KeyAnalysisPercentage  = "analysis_percentage"
	KeyMinAnalysisCoef     = "min_analysis_coefficient"
	KeyMaxAnalysisCoef     = "max_analysis_coefficient"
	KeyAnalysisMaxWaitTime = "analysis_max_wait_time"
	KeyMinIssuingCoef      = "min_issuing_coefficient"
	KeyMaxIssuingCoef      = "max_issuing_coefficient"
	KeySignalReceiveTime   = "signal_receive_time"
	KeyConfirmTimeout      = "signal_confirm_timeout"
	KeyPendingMaxAge       = "pending_signal_max_age"
	KeyMaxEnergy           = "max_energy"
)

// Значения по умолчанию.
const (
	DefaultRecoveryInterval   = time.Minute
	DefaultSignalQuota        = 10
	DefaultAnalysisRounds     = 15
	DefaultAnalysisPercentage = 70.0
	DefaultMinAnalysisCoef    = 1.0
	DefaultMaxAnalysisCoef    = 1.5
	DefaultAnalysisMaxWait    = 300 * time.Second
	DefaultMinIssuingCoef     = 2.0
	DefaultMaxIssuingCoef     = 3.0
	DefaultSignalReceiveTime  = 50 * time.Second
	DefaultConfirmTimeout     = 30 * time.Second
	DefaultPendingMaxAge      = 600 * time.Second
	DefaultMaxEnergy          = 100
)

const (
	cachePrefix     = "settings:"
	defaultCacheTTL = 5 * time.Second
)

// Верхние границы числовых настроек. Значения больше считаются некорректными.
const (
	maxCount    = math.MaxInt32
	maxDuration = 365 * 24 * time.Hour
)

// Store — источник сырых значений настроек.
type Store interface {
	GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error)
}

// Cache — кэш прочитанных значений.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// AnalysisParams — параметры условия анализа раундов.
type AnalysisParams struct {
	Rounds     int
	Percentage float64
	MinCoef    float64
	MaxCoef    float64
	MaxWait    time.Duration
}

type cachedValue struct {
	Value json.RawMessage `json:"value,omitempty"`
	Found bool            `json:"found"`
}

// Provider читает настройки через кэш и приводит их к нужным типам.
// Ошибки хранилища и кэша не возвращаются: они логируются,
// а значение считается отсутствующим.
type Provider struct {
	store Store
	cache Cache
	ttl   time.Duration
	log   *slog.Logger
}

// New создаёт Provider. cache может быть nil.
func New(store Store, cache Cache, log *slog.Logger) *Provider {
	return &Provider{
		store: store,
		cache: cache,
		ttl:   defaultCacheTTL,
		log:   log,
	}
}

func (p *Provider) raw(ctx context.Context, key string) (json.RawMessage, bool) {
	const op = "settings.raw"
	log := p.log.With(slog.String("op", op), slog.String("key", key))

	if p.cache != nil {
		var cv cachedValue
		found, err := p.cache.Get(ctx, cachePrefix+key, &cv)
		if err != nil {
			log.Warn("failed to read setting from cache", sl.Err(err))
		} else if found {
			return cv.Value, cv.Found
		}
	}

	value, found, err := p.store.GetSetting(ctx, key)
	if err != nil {
		log.Error("failed to read setting, using default", sl.Err(err))
		return nil, false
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, cachePrefix+key, cachedValue{Value: value, Found: found}, p.ttl); err != nil {
			log.Warn("failed to cache setting", sl.Err(err))
		}
	}
	return value, found
}

// parseNumber принимает JSON-число или строку с числом.
func parseNumber(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (p *Provider) number(ctx context.Context, key string, def float64, valid func(float64) bool) float64 {
	raw, found := p.raw(ctx, key)
	if !found {
		return def
	}
	v, ok := parseNumber(raw)
	if !ok || !valid(v) {
		p.log.Warn("invalid setting value, using default",
			slog.String("key", key), slog.String("value", string(raw)))
		return def
	}
	return v
}

func nonNegative(v float64) bool { return v >= 0 }

func (p *Provider) count(ctx context.Context, key string, def int) int {
	return int(p.number(ctx, key, float64(def), func(v float64) bool { return v >= 1 && v <= maxCount }))
}

func (p *Provider) duration(ctx context.Context, key string, def, unit time.Duration) time.Duration {
	v := p.number(ctx, key, float64(def)/float64(unit), func(v float64) bool {
		return v > 0 && v*float64(unit) <= float64(maxDuration)
	})
	return time.Duration(v * float64(unit))
}

// RecoveryInterval — минимальный интервал между выдачами сигналов одному пользователю.
func (p *Provider) RecoveryInterval(ctx context.Context) time.Duration {
	return p.duration(ctx, KeyRecoveryTime, DefaultRecoveryInterval, time.Minute)
}

// SignalQuota — сколько пользователей получают сигнал за один цикл.
func (p *Provider) SignalQuota(ctx context.Context) int {
	return p.count(ctx, KeySignalQuota, DefaultSignalQuota)
}

// RequestRanges — разрешённые интервалы выдачи. nil означает «без ограничений».
// Значение хранится массивом или строкой с JSON-массивом.
func (p *Provider) RequestRanges(ctx context.Context) []models.TimeRange {
	raw, found := p.raw(ctx, KeyRequestRanges)
	if !found || len(raw) == 0 {
		return nil
	}

	var ranges []models.TimeRange
	if err := json.Unmarshal(raw, &ranges); err == nil {
		return ranges
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		if err := json.Unmarshal([]byte(s), &ranges); err == nil {
			return ranges
		}
	}
	p.log.Warn("invalid setting value, using default",
		slog.String("key", KeyRequestRanges), slog.String("value", string(raw)))
	return nil
}

// Analysis возвращает параметры условия анализа.
// Если минимальный коэффициент больше максимального, используются оба значения по умолчанию.
func (p *Provider) Analysis(ctx context.Context) AnalysisParams {
	params := AnalysisParams{
		Rounds: p.count(ctx, KeyAnalysisRounds, DefaultAnalysisRounds),
		Percentage: p.number(ctx, KeyAnalysisPercentage, DefaultAnalysisPercentage, func(v float64) bool {
			return v >= 0 && v <= 100
		}),
		MinCoef: p.number(ctx, KeyMinAnalysisCoef, DefaultMinAnalysisCoef, nonNegative),
		MaxCoef: p.number(ctx, KeyMaxAnalysisCoef, DefaultMaxAnalysisCoef, nonNegative),
		MaxWait: p.duration(ctx, KeyAnalysisMaxWaitTime, DefaultAnalysisMaxWait, time.Second),
	}
	if params.MinCoef > params.MaxCoef {
		params.MinCoef, params.MaxCoef = DefaultMinAnalysisCoef, DefaultMaxAnalysisCoef
	}
	return params
}

// IssuingRange возвращает диапазон, из которого выбирается множитель сигнала.
func (p *Provider) IssuingRange(ctx context.Context) (float64, float64) {
	lo := p.number(ctx, KeyMinIssuingCoef, DefaultMinIssuingCoef, nonNegative)
	hi := p.number(ctx, KeyMaxIssuingCoef, DefaultMaxIssuingCoef, nonNegative)
	if lo > hi {
		return DefaultMinIssuingCoef, DefaultMaxIssuingCoef
	}
	return lo, hi
}

// SignalReceiveTime — пауза между уведомлением «сигнал скоро» и активацией.
func (p *Provider) SignalReceiveTime(ctx context.Context) time.Duration {
	return p.duration(ctx, KeySignalReceiveTime, DefaultSignalReceiveTime, time.Second)
}

// ConfirmTimeout — сколько активный сигнал ждёт подтверждения.
func (p *Provider) ConfirmTimeout(ctx context.Context) time.Duration {
	return p.duration(ctx, KeyConfirmTimeout, DefaultConfirmTimeout, time.Second)
}

// PendingMaxAge — максимальный возраст pending сигнала.
func (p *Provider) PendingMaxAge(ctx context.Context) time.Duration {
	return p.duration(ctx, KeyPendingMaxAge, DefaultPendingMaxAge, time.Second)
}

// MaxEnergy — сколько энергии получает пользователь при ежедневном пополнении.
func (p *Provider) MaxEnergy(ctx context.Context) int {
	return int(p.number(ctx, KeyMaxEnergy, DefaultMaxEnergy, func(v float64) bool { return v >= 0 && v <= maxCount }))
}
