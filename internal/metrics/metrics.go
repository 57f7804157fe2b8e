// Package metrics holds the Prometheus collectors for projection, index and outbox activity.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProjectedDocuments counts documents written to the index, by kind (song, user).
	ProjectedDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunedex_projected_documents_total",
		Help: "Total number of documents written to the index",
	}, []string{"kind"})

	// SkippedSongs counts songs left out of projection because a relation did not resolve.
	SkippedSongs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunedex_projection_skipped_songs_total",
		Help: "Total number of songs skipped due to an unresolved artist, album or genre",
	})

	// IndexRetries counts retried index operations.
	IndexRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunedex_index_retries_total",
		Help: "Total number of retried index operations",
	}, []string{"op"})

	// IndexFailures counts index operations that failed after all retries.
	IndexFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunedex_index_failures_total",
		Help: "Total number of index operations that exhausted their retries",
	}, []string{"op"})

	// CatalogReadRetries counts retried catalog read sessions.
	CatalogReadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunedex_catalog_read_retries_total",
		Help: "Total number of retried catalog reads",
	})

	// OutboxDispatched counts outbox entries, by result (processed, failed).
	OutboxDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunedex_outbox_dispatched_total",
		Help: "Total number of outbox entries dispatched",
	}, []string{"result"})

	// OutboxPending is the number of outbox entries awaiting projection at the last check.
	OutboxPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunedex_outbox_pending",
		Help: "Current number of outbox entries awaiting projection",
	})

	// RecommendationsServed counts recommendation requests, by path (history, cold_start).
	RecommendationsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunedex_recommendations_total",
		Help: "Total number of recommendation requests served",
	}, []string{"path"})
)

// Gather returns the current state of the default registry.
func Gather() ([]*MetricFamily, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}

	out := make([]*MetricFamily, 0, len(families))
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "tunedex_") {
			continue
		}
		mf := &MetricFamily{Name: f.GetName(), Help: f.GetHelp()}
		for _, m := range f.GetMetric() {
			sample := Sample{Labels: map[string]string{}}
			for _, lp := range m.GetLabel() {
				sample.Labels[lp.GetName()] = lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				sample.Value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sample.Value = m.GetGauge().GetValue()
			}
			mf.Samples = append(mf.Samples, sample)
		}
		out = append(out, mf)
	}
	return out, nil
}

// MetricFamily is a flattened view of one tunedex collector for CLI output.
type MetricFamily struct {
	Name    string
	Help    string
	Samples []Sample
}

// Sample is one labelled value.
type Sample struct {
	Labels map[string]string
	Value  float64
}
