package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations.
	OutcomeError = "error"
	// OutcomeNotFound labels Jenkins 404 responses.
	OutcomeNotFound = "not_found"
	// OutcomeDeferred labels builds put back to pending.
	OutcomeDeferred = "deferred"
	// OutcomeAbandoned labels builds that gave up after repeated misses.
	OutcomeAbandoned = "abandoned"
)

var (
	jenkinsRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhoci",
			Name:      "jenkins_requests_total",
			Help:      "Jenkins API requests, partitioned by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	jenkinsRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rhoci",
			Name:      "jenkins_request_seconds",
			Help:      "Jenkins API request latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"op"},
	)

	buildsDiscoveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rhoci",
			Name:      "builds_discovered_total",
			Help:      "Builds newly enqueued by the discovery loop.",
		},
	)

	buildsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhoci",
			Name:      "builds_processed_total",
			Help:      "Detail-loop units, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	buildProcessSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rhoci",
			Name:      "build_process_seconds",
			Help:      "Time to fetch, classify and persist one build.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	failureMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rhoci",
			Name:      "failure_matches_total",
			Help:      "Failure signature matches persisted, partitioned by category.",
		},
		[]string{"category"},
	)

	pendingBuilds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rhoci",
			Name:      "pending_builds",
			Help:      "Builds waiting for a detail fetch.",
		},
	)
)

// Register attaches rhoci collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		jenkinsRequestsTotal,
		jenkinsRequestSeconds,
		buildsDiscoveredTotal,
		buildsProcessedTotal,
		buildProcessSeconds,
		failureMatchesTotal,
		pendingBuilds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveJenkinsRequest records one Jenkins API call.
func ObserveJenkinsRequest(op string, duration time.Duration, outcome string) {
	jenkinsRequestsTotal.WithLabelValues(op, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	jenkinsRequestSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// AddDiscovered counts newly enqueued builds.
func AddDiscovered(n int) {
	if n > 0 {
		buildsDiscoveredTotal.Add(float64(n))
	}
}

// ObserveBuild records a detail-loop unit.
func ObserveBuild(duration time.Duration, outcome string) {
	buildsProcessedTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	buildProcessSeconds.Observe(duration.Seconds())
}

// AddMatch counts a persisted failure match.
func AddMatch(category string) {
	if category == "" {
		category = "uncategorized"
	}
	failureMatchesTotal.WithLabelValues(category).Inc()
}

// SetPending publishes the current pending backlog.
func SetPending(n int) {
	pendingBuilds.Set(float64(n))
}
