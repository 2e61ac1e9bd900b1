package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seo401b/new-Allert/internal/domain"
)

const namespace = "allert"

// durationBuckets span fast lexical ranking through slow multi-call model stages
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// Recorder exposes resolution pipeline and HTTP metrics on its own registry
type Recorder struct {
	registry      *prometheus.Registry
	detections    *prometheus.CounterVec
	collaborators *prometheus.CounterVec
	stages        *prometheus.HistogramVec
	requests      *prometheus.HistogramVec
}

// NewRecorder creates a recorder with Go runtime and process collectors registered
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detections resolved, by how they resolved.",
		}, []string{"method"}),
		collaborators: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_calls_total",
			Help:      "Model collaborator calls, by collaborator and outcome.",
		}, []string{"collaborator", "outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   durationBuckets,
		}, []string{"stage"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route and status code.",
			Buckets:   durationBuckets,
		}, []string{"method", "route", "code"}),
	}

	r.registry.MustRegister(
		r.detections,
		r.collaborators,
		r.stages,
		r.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// ObserveDetection counts one resolved detection
func (r *Recorder) ObserveDetection(method domain.ResolutionMethod) {
	r.detections.WithLabelValues(string(method)).Inc()
}

// ObserveCollaborator counts one collaborator call outcome
func (r *Recorder) ObserveCollaborator(collaborator, outcome string) {
	r.collaborators.WithLabelValues(collaborator, outcome).Inc()
}

// ObserveStage records how long a pipeline stage took
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	r.stages.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// ObserveRequest records one served HTTP request
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
