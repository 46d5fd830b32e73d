package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.OperationsCommitted.Inc()
	m.OperationsCommitted.Inc()
	m.CommitsRewritten.WithLabelValues(KindRebased).Add(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsCommitted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CommitsRewritten.WithLabelValues(KindRebased)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpHeadMerges))
}

func TestMetrics_Write(t *testing.T) {
	m := New()
	m.ConcurrentModification.Inc()
	m.CommitDuration.Observe(0.01)

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	assert.Contains(t, buf.String(), "mxvc_concurrent_modifications_total 1")
	assert.Contains(t, buf.String(), "mxvc_transaction_commit_seconds_count 1")
}
