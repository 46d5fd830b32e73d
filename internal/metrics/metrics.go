// Package metrics holds the prometheus collectors for repository activity.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics groups the collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsCommitted    prometheus.Counter
	OpHeadMerges           prometheus.Counter
	ConcurrentModification prometheus.Counter
	CommitsRewritten       *prometheus.CounterVec
	CommitDuration         prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		OperationsCommitted: f.NewCounter(prometheus.CounterOpts{
			Name: "mxvc_operations_committed_total",
			Help: "Operations written to the operation log.",
		}),
		OpHeadMerges: f.NewCounter(prometheus.CounterOpts{
			Name: "mxvc_op_head_merges_total",
			Help: "Merges of divergent operation heads.",
		}),
		ConcurrentModification: f.NewCounter(prometheus.CounterOpts{
			Name: "mxvc_concurrent_modifications_total",
			Help: "Transactions whose base operation was no longer the only head.",
		}),
		CommitsRewritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mxvc_commits_rewritten_total",
			Help: "Commits rewritten, by kind.",
		}, []string{"kind"}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mxvc_transaction_commit_seconds",
			Help:    "Time spent committing transactions.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Rewrite kinds.
const (
	KindRebased   = "rebased"
	KindAbandoned = "abandoned"
	KindSkipped   = "skipped"
)

// Write prints every metric in the text exposition format.
func (m *Metrics) Write(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
