package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeFitted   = "fitted"
	outcomeRejected = "rejected"
	outcomeSkipped  = "skipped"
)

// Metrics counts pipeline progress. A nil *Metrics records nothing.
type Metrics struct {
	documents *prometheus.CounterVec
	merges    prometheus.Counter
	batchTime prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "siegeinfer",
			Name:      "documents_total",
			Help:      "Documents seen by the reducer, by outcome.",
		}, []string{"outcome"}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "siegeinfer",
			Name:      "batch_merges_total",
			Help:      "Batch schemas merged into the running schema.",
		}),
		batchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "siegeinfer",
			Name:      "batch_fit_seconds",
			Help:      "Time spent fitting and reducing one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.documents, m.merges, m.batchTime)
	}
	return m
}

func (m *Metrics) observeDocument(outcome string) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.batchTime.Observe(d.Seconds())
}

func (m *Metrics) observeMerge() {
	if m == nil {
		return
	}
	m.merges.Inc()
}

// ObserveDocuments counts documents handled outside Run, e.g. by the ingest server.
func (m *Metrics) ObserveDocuments(fitted, rejected int) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(outcomeFitted).Add(float64(fitted))
	m.documents.WithLabelValues(outcomeRejected).Add(float64(rejected))
}
