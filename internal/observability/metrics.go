package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions   prometheus.Gauge
	eventsTotal      *prometheus.CounterVec
	sessionsCreated  prometheus.Counter
	sessionsRemoved  *prometheus.CounterVec
	runDuration      prometheus.Histogram
	pendingInteracts *prometheus.GaugeVec

	routerSendTotal    *prometheus.CounterVec
	routerSendDuration *prometheus.HistogramVec

	scheduleFireTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "pool_active_sessions",
					Help: "Current registered session count.",
				},
			),
			eventsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pool_events_total",
					Help: "Total runtime events processed by kind.",
				},
				[]string{"kind"},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "pool_sessions_created_total",
					Help: "Total sessions constructed.",
				},
			),
			sessionsRemoved: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "pool_sessions_removed_total",
					Help: "Total sessions removed by reason.",
				},
				[]string{"reason"},
			),
			runDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "pool_run_duration_seconds",
					Help:    "Awaited send duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			pendingInteracts: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "pool_pending_interactions",
					Help: "Sessions with an unresolved interaction by kind.",
				},
				[]string{"kind"},
			),
			routerSendTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_send_total",
					Help: "Total outbound sends by channel and status.",
				},
				[]string{"channel", "status"},
			),
			routerSendDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "router_send_duration_seconds",
					Help:    "Outbound send duration in seconds by channel.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"channel"},
			),
			scheduleFireTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "schedule_fire_total",
					Help: "Total scheduled sends by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.eventsTotal,
			m.sessionsCreated,
			m.sessionsRemoved,
			m.runDuration,
			m.pendingInteracts,
			m.routerSendTotal,
			m.routerSendDuration,
			m.scheduleFireTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordEvent(kind string) {
	getMetrics().eventsTotal.WithLabelValues(kind).Inc()
}

func RecordSessionCreated() {
	getMetrics().sessionsCreated.Inc()
}

func RecordSessionRemoved(reason string) {
	getMetrics().sessionsRemoved.WithLabelValues(reason).Inc()
}

func RecordRunDuration(duration time.Duration) {
	getMetrics().runDuration.Observe(duration.Seconds())
}

func SetPendingInteractions(kind string, count int) {
	getMetrics().pendingInteracts.WithLabelValues(kind).Set(float64(count))
}

func RecordRouterSend(channel string, duration time.Duration, ok bool) {
	m := getMetrics()
	status := "error"
	if ok {
		status = "success"
	}
	m.routerSendTotal.WithLabelValues(channel, status).Inc()
	m.routerSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func RecordScheduleFire(ok bool) {
	status := "error"
	if ok {
		status = "success"
	}
	getMetrics().scheduleFireTotal.WithLabelValues(status).Inc()
}
