package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "support360"

type collectors struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	rateLimitDrops *prometheus.CounterVec

	persistErrors   *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	mutations       *prometheus.CounterVec

	ticketsByStatus   *prometheus.GaugeVec
	ticketsByPriority *prometheus.GaugeVec
	usersByRole       *prometheus.GaugeVec
	statsRuns         prometheus.Counter

	aiRequests *prometheus.CounterVec
	aiLatency  prometheus.Histogram

	wsClients prometheus.Gauge
}

var (
	once sync.Once
	m    *collectors
)

func get() *collectors {
	once.Do(func() {
		m = &collectors{
			httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by method, route and status code",
			}, []string{"method", "route", "status"}),
			httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency by method and route",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
			rateLimitDrops: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limit_drops_total",
				Help:      "Requests rejected with 429 by limiter",
			}, []string{"limiter"}),
			persistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "persist_errors_total",
				Help:      "Failed snapshot writes by slot",
			}, []string{"slot"}),
			persistDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "persist_duration_seconds",
				Help:      "Snapshot write latency by slot",
				Buckets:   prometheus.DefBuckets,
			}, []string{"slot"}),
			mutations: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "mutations_total",
				Help:      "Store mutations by event type",
			}, []string{"event"}),
			ticketsByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "tickets",
				Name:      "by_status",
				Help:      "Current ticket count per status",
			}, []string{"status"}),
			ticketsByPriority: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "tickets",
				Name:      "by_priority",
				Help:      "Current ticket count per priority",
			}, []string{"priority"}),
			usersByRole: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "users",
				Name:      "by_role",
				Help:      "Current user count per role",
			}, []string{"role"}),
			statsRuns: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "stats_runs_total",
				Help:      "Stats refresh executions",
			}),
			aiRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ai",
				Name:      "requests_total",
				Help:      "Assistant replies by strategy",
			}, []string{"strategy"}),
			aiLatency: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ai",
				Name:      "completion_duration_seconds",
				Help:      "Latency of generative API completions",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			}),
			wsClients: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "clients",
				Help:      "Connected websocket clients",
			}),
		}
	})
	return m
}

// ObserveHTTP records one finished request.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	c := get()
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncRateLimitDrop increments drop counters for the given limiter name.
func IncRateLimitDrop(limiter string) {
	if limiter == "" {
		limiter = "global"
	}
	get().rateLimitDrops.WithLabelValues(limiter).Inc()
}

func IncPersistError(slot string) {
	get().persistErrors.WithLabelValues(slot).Inc()
}

func ObservePersist(slot string, d time.Duration) {
	get().persistDuration.WithLabelValues(slot).Observe(d.Seconds())
}

func IncMutation(event string) {
	get().mutations.WithLabelValues(event).Inc()
}

func SetTicketsByStatus(status string, n int) {
	get().ticketsByStatus.WithLabelValues(status).Set(float64(n))
}

func SetTicketsByPriority(priority string, n int) {
	get().ticketsByPriority.WithLabelValues(priority).Set(float64(n))
}

func SetUsersByRole(role string, n int) {
	get().usersByRole.WithLabelValues(role).Set(float64(n))
}

func IncStatsRun() {
	get().statsRuns.Inc()
}

// ObserveAI records an assistant reply; latency is only observed for API completions.
func ObserveAI(strategy string, d time.Duration) {
	c := get()
	c.aiRequests.WithLabelValues(strategy).Inc()
	if d > 0 {
		c.aiLatency.Observe(d.Seconds())
	}
}

func SetWSClients(n int) {
	get().wsClients.Set(float64(n))
}
