// Package metrics defines the Prometheus instruments for the vote engine and
// retention sweeper.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Vote engine metrics
var (
	// VoteAttemptsTotal tracks vote attempts by outcome
	VoteAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vote_attempts_total",
			Help: "Total vote attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TopicsCreatedTotal counts newly created topics (soft duplicates excluded)
	TopicsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topics_created_total",
			Help: "Total topics created",
		},
	)
)

// Retention sweeper metrics
var (
	// TopicsPurgedTotal counts topics reclaimed by the sweeper
	TopicsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "topics_purged_total",
			Help: "Total topics purged for missing the vote quota",
		},
	)

	// SweepDuration tracks sweep pass latency in seconds
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Retention sweep duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)

// Stats cache metrics
var (
	StatsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cache_hits_total",
			Help: "Total topic stats cache hits",
		},
	)

	StatsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cache_misses_total",
			Help: "Total topic stats cache misses",
		},
	)

	StatsCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stats_cache_size",
			Help: "Current number of entries in the topic stats cache",
		},
	)

	StatsCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stats_cache_evictions_total",
			Help: "Total expired entries evicted from the topic stats cache",
		},
	)
)
