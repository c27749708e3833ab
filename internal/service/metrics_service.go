package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the invitation dispatcher.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	sweepDuration       prometheus.Histogram
	sweepsTotal         prometheus.Counter
	subjectsDispatched  *prometheus.CounterVec
	invitationsSent     *prometheus.CounterVec
	invitationsFailed   *prometheus.CounterVec
	submissionsAccepted prometheus.Counter
	submissionsRejected *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_sweep_duration_seconds",
		Help:    "Duration of full invitation sweeps",
		Buckets: prometheus.DefBuckets,
	})

	sweepsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_sweeps_total",
		Help: "Number of completed invitation sweeps",
	})

	subjectsDispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_subjects_total",
		Help: "Subjects for which an invitation wave was dispatched",
	}, []string{"moment"})

	invitationsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_invitations_sent_total",
		Help: "Invitation emails delivered successfully",
	}, []string{"moment"})

	invitationsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_invitations_failed_total",
		Help: "Invitation emails that failed per recipient",
	}, []string{"moment"})

	submissionsAccepted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "review_submissions_accepted_total",
		Help: "Review submissions that passed validation",
	})

	submissionsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "review_submissions_rejected_total",
		Help: "Review submissions rejected by validation",
	}, []string{"reason"})

	registry.MustRegister(
		requestDuration, requestTotal,
		sweepDuration, sweepsTotal, subjectsDispatched,
		invitationsSent, invitationsFailed,
		submissionsAccepted, submissionsRejected,
	)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		sweepDuration:       sweepDuration,
		sweepsTotal:         sweepsTotal,
		subjectsDispatched:  subjectsDispatched,
		invitationsSent:     invitationsSent,
		invitationsFailed:   invitationsFailed,
		submissionsAccepted: submissionsAccepted,
		submissionsRejected: submissionsRejected,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// ObserveSweep records one completed sweep.
func (s *MetricsService) ObserveSweep(duration time.Duration) {
	if s == nil {
		return
	}
	s.sweepsTotal.Inc()
	s.sweepDuration.Observe(duration.Seconds())
}

// ObserveDispatch records one dispatched wave with its per-recipient
// outcome counts.
func (s *MetricsService) ObserveDispatch(moment string, sent, failed int) {
	if s == nil {
		return
	}
	s.subjectsDispatched.WithLabelValues(moment).Inc()
	s.invitationsSent.WithLabelValues(moment).Add(float64(sent))
	s.invitationsFailed.WithLabelValues(moment).Add(float64(failed))
}

// ObserveSubmission records a validation outcome; reason is empty for
// accepted submissions.
func (s *MetricsService) ObserveSubmission(accepted bool, reason string) {
	if s == nil {
		return
	}
	if accepted {
		s.submissionsAccepted.Inc()
		return
	}
	s.submissionsRejected.WithLabelValues(reason).Inc()
}
