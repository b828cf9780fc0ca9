package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	metrics := []prometheus.Collector{
		VoteAttemptsTotal,
		TopicsCreatedTotal,
		TopicsPurgedTotal,
		SweepDuration,
		StatsCacheHits,
		StatsCacheMisses,
		StatsCacheSize,
		StatsCacheEvictions,
	}

	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestVoteAttemptsCounter(t *testing.T) {
	VoteAttemptsTotal.Reset()

	labels := prometheus.Labels{"outcome": "accepted"}
	for i := 0; i < 4; i++ {
		VoteAttemptsTotal.With(labels).Inc()
	}

	assert.Equal(t, 4.0, testutil.ToFloat64(VoteAttemptsTotal.With(labels)))
	assert.Equal(t, 0.0, testutil.ToFloat64(VoteAttemptsTotal.With(prometheus.Labels{"outcome": "topic_purged"})))
}

func TestStatsCacheGauge(t *testing.T) {
	StatsCacheSize.Set(12)
	assert.Equal(t, 12.0, testutil.ToFloat64(StatsCacheSize))
	StatsCacheSize.Set(0)
}
