// Package metrics holds the prometheus collectors of the matching service.
// Collectors implements the narrow metrics interfaces declared by the use cases,
// the event bus and the HTTP layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/founderlink/founder-match/pkg/circuitbreaker"
)

const namespace = "founder_match"

// Collectors groups every metric the service exports.
type Collectors struct {
	rankings         *prometheus.CounterVec
	rankingDuration  prometheus.Histogram
	rankingPoolSize  prometheus.Histogram
	rankingFailures  *prometheus.CounterVec
	swipes           *prometheus.CounterVec
	swipePersistFail prometheus.Counter
	explanations     *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	handlerFailures  *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec

	reg prometheus.Registerer
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)

	return &Collectors{
		reg: reg,
		rankings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rankings_total",
			Help:      "Total number of completed rankings",
		}, []string{"cached"}),
		rankingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_duration_seconds",
			Help:      "Duration of ranking requests in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		rankingPoolSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ranking_pool_size",
			Help:      "Number of candidate profiles considered per ranking",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 7),
		}),
		rankingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ranking_failures_total",
			Help:      "Total number of failed rankings",
		}, []string{"reason"}),
		swipes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swipes_total",
			Help:      "Total number of queue transitions",
		}, []string{"action", "connected"}),
		swipePersistFail: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swipe_persist_failures_total",
			Help:      "Swipes applied in memory but not persisted",
		}),
		explanations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanations_total",
			Help:      "Explanation enrichment attempts by outcome",
		}, []string{"outcome"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the bus",
		}, []string{"event_type"}),
		handlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Duration of event handler executions",
		}, []string{"event_type"}),
		handlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler executions that returned an error",
		}, []string{"event_type"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
		}, []string{"method", "route"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Maintenance job executions by status",
		}, []string{"job", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Maintenance job duration",
		}, []string{"job"}),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Ranking
// ─────────────────────────────────────────────────────────────────────────────

// ObserveRanking records a successful ranking.
func (c *Collectors) ObserveRanking(d time.Duration, poolSize, _ int, cached bool) {
	c.rankings.WithLabelValues(strconv.FormatBool(cached)).Inc()
	c.rankingDuration.Observe(d.Seconds())
	c.rankingPoolSize.Observe(float64(poolSize))
}

// RankingFailed records a failed ranking.
func (c *Collectors) RankingFailed(reason string) {
	c.rankingFailures.WithLabelValues(reason).Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// Swipes and explanations
// ─────────────────────────────────────────────────────────────────────────────

// SwipeRecorded records a queue transition.
func (c *Collectors) SwipeRecorded(action string, connected bool) {
	c.swipes.WithLabelValues(action, strconv.FormatBool(connected)).Inc()
}

// SwipePersistFailed records a swipe that could not be stored.
func (c *Collectors) SwipePersistFailed() {
	c.swipePersistFail.Inc()
}

// ExplanationResult records one enrichment outcome.
func (c *Collectors) ExplanationResult(outcome string) {
	c.explanations.WithLabelValues(outcome).Inc()
}

// ─────────────────────────────────────────────────────────────────────────────
// Event bus
// ─────────────────────────────────────────────────────────────────────────────

// EventPublished records a published event.
func (c *Collectors) EventPublished(eventType string) {
	c.eventsPublished.WithLabelValues(eventType).Inc()
}

// HandlerExecuted records one handler run.
func (c *Collectors) HandlerExecuted(eventType string, d time.Duration, err error) {
	c.handlerDuration.WithLabelValues(eventType).Observe(d.Seconds())
	if err != nil {
		c.handlerFailures.WithLabelValues(eventType).Inc()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Circuit breaker and HTTP
// ─────────────────────────────────────────────────────────────────────────────

// BreakerStateChanged matches circuitbreaker's OnStateChange callback.
func (c *Collectors) BreakerStateChanged(name string, _, to circuitbreaker.State) {
	c.breakerState.WithLabelValues(name).Set(float64(breakerGauge(to)))
}

func breakerGauge(s circuitbreaker.State) int {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// ObserveHTTPRequest records one served request. route is the pattern, not the raw path.
func (c *Collectors) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RegisterActiveSessions exports the number of open sessions read from fn.
func (c *Collectors) RegisterActiveSessions(fn func() int) {
	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Number of open swipe sessions",
	}, func() float64 { return float64(fn()) })
}

// JobExecuted records a scheduler job run.
func (c *Collectors) JobExecuted(job string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.jobRuns.WithLabelValues(job, status).Inc()
	c.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}
