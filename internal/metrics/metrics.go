// Package metrics provides the Prometheus collectors for chatproofd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatproof"

// Proof request outcomes.
const (
	OutcomeProved   = "proved"
	OutcomeNoResult = "no_result"
	OutcomeFailed   = "failed"
)

// Metrics holds all chatproofd collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesIngested   prometheus.Counter
	UpdatesDiscarded   prometheus.Counter
	CheckpointsClosed  prometheus.Counter
	CheckpointMessages prometheus.Histogram
	ProofRequests      *prometheus.CounterVec
	ProofDuration      prometheus.Histogram
	ArtifactsPublished prometheus.Counter
	OpenBufferMessages prometheus.Gauge
	LastCheckpointTs   prometheus.Gauge
	JournalErrors      prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	FeedClients         prometheus.Gauge
}

// New creates the collectors on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newWithRegistry(reg)
}

func newWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MessagesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_ingested_total",
			Help:      "Chat messages appended to the open checkpoint buffer",
		}),
		UpdatesDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_discarded_total",
			Help:      "Inbound updates ignored because they carried no text message",
		}),
		CheckpointsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_closed_total",
			Help:      "Checkpoints sealed and stored",
		}),
		CheckpointMessages: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_messages",
			Help:      "Number of messages per closed checkpoint",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ProofRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proof_requests_total",
			Help:      "Proof commands handled, by outcome",
		}, []string{"outcome"}),
		ProofDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proof_duration_seconds",
			Help:      "Time spent waiting for the prover",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		ArtifactsPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_published_total",
			Help:      "Proof artifacts published behind a link",
		}),
		OpenBufferMessages: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_buffer_messages",
			Help:      "Messages waiting in the open checkpoint buffer",
		}),
		LastCheckpointTs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_checkpoint_timestamp",
			Help:      "Closing timestamp of the most recent checkpoint",
		}),
		JournalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Failed writes to the checkpoint journal",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
		FeedClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Connected checkpoint feed clients",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MessageIngested records an appended message and the new buffer size.
func (m *Metrics) MessageIngested(pending int) {
	if m == nil {
		return
	}
	m.MessagesIngested.Inc()
	m.OpenBufferMessages.Set(float64(pending))
}

// UpdateDiscarded records an ignored update.
func (m *Metrics) UpdateDiscarded() {
	if m == nil {
		return
	}
	m.UpdatesDiscarded.Inc()
}

// CheckpointClosed records a closure.
func (m *Metrics) CheckpointClosed(timestamp uint64, messages int) {
	if m == nil {
		return
	}
	m.CheckpointsClosed.Inc()
	m.CheckpointMessages.Observe(float64(messages))
	m.LastCheckpointTs.Set(float64(timestamp))
	m.OpenBufferMessages.Set(0)
}

// ProofFinished records a proof request outcome and its duration.
func (m *Metrics) ProofFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProofRequests.WithLabelValues(outcome).Inc()
	m.ProofDuration.Observe(d.Seconds())
}

// ArtifactPublished records a published artifact.
func (m *Metrics) ArtifactPublished() {
	if m == nil {
		return
	}
	m.ArtifactsPublished.Inc()
}

// JournalError records a failed journal write.
func (m *Metrics) JournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
