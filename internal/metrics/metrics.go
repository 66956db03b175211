// Package metrics содержит метрики Prometheus движка сигналов.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry — реестр, который отдаётся на /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		AdmissionCycles, Grants, Activations, ActivationWorkers,
		Claims, Reaped, EnergyRefills, HTTPRequestDuration,
	)
}

// AdmissionCycles — циклы выдачи по исходу.
var AdmissionCycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signal_admission_cycles_total",
		Help: "Admission cycles by outcome",
	},
	[]string{"outcome"}, // completed | outside_window | locked | error
)

// Grants — попытки выдачи сигнала пользователю.
var Grants = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signal_grants_total",
		Help: "Per-user grant attempts by result",
	},
	[]string{"result"}, // granted | exists | error
)

// Activations — завершённые воркеры активации.
var Activations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signal_activations_total",
		Help: "Activation workers by gate outcome",
	},
	[]string{"gate"}, // met | timeout | abandoned | error
)

// ActivationWorkers — число работающих воркеров активации.
var ActivationWorkers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "signal_activation_workers",
		Help: "Activation workers in flight",
	},
)

// Claims — запросы на подтверждение сигнала.
var Claims = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signal_claims_total",
		Help: "Claim requests by result",
	},
	[]string{"result"}, // completed | not_found | insufficient_energy | error
)

// Reaped — удалённые просроченные сигналы.
var Reaped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "signal_reaped_total",
		Help: "Expired signals deleted by status",
	},
	[]string{"status"}, // pending | active
)

// EnergyRefills — ежедневные пополнения энергии.
var EnergyRefills = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "energy_refills_total",
		Help: "Daily energy refill runs by outcome",
	},
	[]string{"outcome"}, // completed | locked | error
)

// HTTPRequestDuration — время обработки HTTP запросов.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "signal_api_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "code"},
)

// Handler отдаёт метрики реестра в текстовом формате Prometheus.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware замеряет длительность запроса по шаблону маршрута chi.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
	})
}
