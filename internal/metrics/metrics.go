package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPActiveRequests  prometheus.Gauge
	RateLimitedTotal    *prometheus.CounterVec

	// Calls
	CallsStartedTotal  *prometheus.CounterVec
	CallsFinishedTotal *prometheus.CounterVec
	CallDuration       *prometheus.HistogramVec

	// Social graph
	FriendshipEventsTotal *prometheus.CounterVec

	// Activity ledger
	LedgerCommitsTotal   *prometheus.CounterVec
	LedgerConflictsTotal prometheus.Counter
	LedgerAttempts       prometheus.Gauge
	LedgerEntriesPruned  prometheus.Counter

	// Realtime
	WebSocketConnections  prometheus.Gauge
	WebSocketMessagesSent *prometheus.CounterVec

	// Search
	SearchRequestsTotal *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Initialize creates and registers all Prometheus metrics
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request latency in seconds",
					Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path", "status"},
			),
			HTTPActiveRequests: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "http_active_requests",
				Help: "Number of requests currently being served",
			}),
			RateLimitedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_rate_limited_total",
					Help: "Requests rejected by a rate limiter",
				},
				[]string{"path"},
			),

			CallsStartedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "calls_started_total",
					Help: "Calls placed, by media type",
				},
				[]string{"call_type"},
			),
			CallsFinishedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "calls_finished_total",
					Help: "Calls that reached a terminal state, by outcome",
				},
				[]string{"call_type", "status"},
			),
			CallDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "call_duration_seconds",
					Help:    "Connected call duration",
					Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
				},
				[]string{"call_type"},
			),

			FriendshipEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "friendship_events_total",
					Help: "Friend requests sent, accepted, rejected and removed",
				},
				[]string{"action"},
			),

			LedgerCommitsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ledger_commits_total",
					Help: "Remote ledger commit attempts by result",
				},
				[]string{"result"},
			),
			LedgerConflictsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ledger_commit_conflicts_total",
				Help: "Remote ledger writes rejected because the file changed underneath",
			}),
			LedgerAttempts: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "ledger_failed_attempts",
				Help: "Consecutive failed remote ledger writes",
			}),
			LedgerEntriesPruned: promauto.NewCounter(prometheus.CounterOpts{
				Name: "ledger_entries_pruned_total",
				Help: "Local ledger entries removed by retention",
			}),

			WebSocketConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "websocket_connections",
				Help: "Open realtime connections",
			}),
			WebSocketMessagesSent: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "websocket_messages_sent_total",
					Help: "Realtime events delivered, by type",
				},
				[]string{"type"},
			),

			SearchRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "search_requests_total",
					Help: "Community searches by backend and result",
				},
				[]string{"backend", "result"},
			),
		}
	})
	return instance
}

// Get returns the metrics instance, creating it on first use
func Get() *Metrics {
	return Initialize()
}
