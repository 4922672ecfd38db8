// Package metrics provides Prometheus metrics for ingestion and search.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "supportrag"

// Metrics groups every collector the service reports. Each instance owns its
// registry so tests and multiple services do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	SearchTotal      *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
	Candidates       prometheus.Histogram
	VersionFallbacks prometheus.Counter
	NegatedQueries   prometheus.Counter

	IngestedDocuments prometheus.Counter
	IngestedChunks    prometheus.Counter
	EmbedDuration     prometheus.Histogram
	ErrorsTotal       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SearchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_total",
			Help:      "Total number of searches",
		}, []string{"status"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		Candidates: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates",
			Help:      "Distribution of candidate counts returned by semantic search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		VersionFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_fallback_total",
			Help:      "Searches where no candidate matched the requested version",
		}),
		NegatedQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negated_query_total",
			Help:      "Searches whose query contained a negation cue",
		}),
		IngestedDocuments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_documents_total",
			Help:      "Total number of documents ingested",
		}),
		IngestedChunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks indexed",
		}),
		EmbedDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embed_duration_seconds",
			Help:      "Duration of single embedding calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of errors",
		}, []string{"operation"}),
	}
}

// RecordSearch records a finished search.
func (m *Metrics) RecordSearch(status string, seconds float64, candidates int, negated, fallback bool) {
	m.SearchTotal.WithLabelValues(status).Inc()
	m.SearchDuration.Observe(seconds)
	if status != "ok" {
		return
	}
	m.Candidates.Observe(float64(candidates))
	if negated {
		m.NegatedQueries.Inc()
	}
	if fallback {
		m.VersionFallbacks.Inc()
	}
}

// RecordIngest records a finished ingestion.
func (m *Metrics) RecordIngest(documents, chunks int) {
	m.IngestedDocuments.Add(float64(documents))
	m.IngestedChunks.Add(float64(chunks))
}

// RecordError records an error.
func (m *Metrics) RecordError(operation string) {
	m.ErrorsTotal.WithLabelValues(operation).Inc()
}
