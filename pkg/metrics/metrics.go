package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "remote_signer"

// Metrics contains all Prometheus metrics for the signer
type Metrics struct {
	// Signing requests by outcome and error kind
	SignRequests *prometheus.CounterVec
	SignDuration *prometheus.HistogramVec

	// Backend resolution
	BackendResolutions *prometheus.CounterVec

	// Signed transactions by transaction kind
	SignedTransactions *prometheus.CounterVec

	// HTTP surface
	HTTPRequests     *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
	IdentityRequests *prometheus.CounterVec
}

// NewMetrics initializes and registers metrics with the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry initializes and registers metrics with a custom registry
func NewMetricsWithRegistry(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		SignRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_requests_total",
			Help:      "The total number of signing requests by outcome and error kind",
		}, []string{"outcome", "error_kind"}),
		SignDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sign_duration_seconds",
			Help:      "Time spent handling a signing request",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		BackendResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_resolutions_total",
			Help:      "The total number of signer backend resolutions by backend kind and outcome",
		}, []string{"backend", "outcome"}),
		SignedTransactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signed_transactions_total",
			Help:      "The total number of transactions signed by transaction kind",
		}, []string{"tx_kind"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "The total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		RateLimitedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "The total number of requests rejected by the rate limiter",
		}),
		IdentityRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_requests_total",
			Help:      "The total number of public address lookups by outcome",
		}, []string{"outcome"}),
	}
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// RecordSign records one signing request. errorKind is empty on success.
func (m *Metrics) RecordSign(errorKind string, started time.Time) {
	o := OutcomeSuccess
	if errorKind != "" {
		o = OutcomeFailure
	}
	m.SignRequests.WithLabelValues(o, errorKind).Inc()
	m.SignDuration.WithLabelValues(o).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordResolution(backend string, err error) {
	m.BackendResolutions.WithLabelValues(backend, outcome(err)).Inc()
}

func (m *Metrics) RecordSignedTransaction(txKind string) {
	m.SignedTransactions.WithLabelValues(txKind).Inc()
}

func (m *Metrics) RecordIdentity(err error) {
	m.IdentityRequests.WithLabelValues(outcome(err)).Inc()
}
