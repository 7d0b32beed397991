// Package metrics exposes the broker's Prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/life-stream-dev/life-stream-go-contacts-broker/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contacts_broker"

var (
	// Registry holds the broker's collectors.
	Registry = prometheus.NewRegistry()

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "connections",
			Help:      "Current number of client connections per socket.",
		},
		[]string{"socket"},
	)

	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "requests_total",
			Help:      "Total number of requests handled.",
		},
		[]string{"module", "function", "result"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ipc",
			Name:      "request_duration_seconds",
			Help:      "Duration of request handling.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"module", "function"},
	)

	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "publishes_total",
			Help:      "Total number of change publishes delivered to subscribers.",
		},
		[]string{"topic", "success"},
	)

	subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "subscribers",
			Help:      "Current number of subscribed connections per topic.",
		},
		[]string{"topic"},
	)

	signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "signals_total",
			Help:      "Total number of legacy change signals per category.",
		},
		[]string{"category"},
	)

	version = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "change_version",
			Help:      "Latest change version handed out.",
		},
	)
)

func init() {
	Registry.MustRegister(
		connections,
		requests,
		requestDuration,
		publishes,
		subscribers,
		signals,
		version,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func ConnectionOpened(socket string) { connections.WithLabelValues(socket).Inc() }

func ConnectionClosed(socket string) { connections.WithLabelValues(socket).Dec() }

func RecordRequest(module, function, result string, elapsed time.Duration) {
	requests.WithLabelValues(module, function, result).Inc()
	requestDuration.WithLabelValues(module, function).Observe(elapsed.Seconds())
}

func RecordPublish(topic string, success bool) {
	label := "true"
	if !success {
		label = "false"
	}
	publishes.WithLabelValues(topic, label).Inc()
}

func SetSubscribers(topic string, n int) { subscribers.WithLabelValues(topic).Set(float64(n)) }

func RecordSignal(category string) { signals.WithLabelValues(category).Inc() }

func SetVersion(v int64) { version.Set(float64(v)) }

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Endpoint serves Handler on addr until Close is called.
type Endpoint struct {
	server *http.Server
}

func Serve(addr string) *Endpoint {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	e := &Endpoint{server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}}
	go func() {
		logger.InfoF("Metrics endpoint listen on %s", addr)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorF("Metrics endpoint stopped, details: %v", err)
		}
	}()
	return e
}

func (e *Endpoint) Invoke(ctx context.Context) error {
	return e.server.Shutdown(ctx)
}
