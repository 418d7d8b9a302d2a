// Package metrics публикует счётчики сервиса в формате Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/taxflow/internal/model"
)

const namespace = "taxflow"

// Metrics хранит собственный реестр, чтобы тесты не делили глобальный.
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

// New регистрирует метрики сервиса и стандартные коллекторы процесса.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Workflow operations by entity, operation and outcome.",
		}, []string{"entity", "operation", "outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTransition учитывает результат операции. outcome равен "ok" или виду ошибки.
func (m *Metrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	entity, _, _ := strings.Cut(operation, ".")
	m.transitions.WithLabelValues(entity, operation, Outcome(err)).Inc()
}

// ObserveRequest учитывает длительность HTTP-запроса.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler отдаёт метрики реестра.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Outcome переводит ошибку в значение метки.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := model.KindOf(err); kind != "" {
		return strings.ToLower(string(kind))
	}
	return "error"
}
