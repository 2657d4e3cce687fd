// Package metrics holds the Prometheus collectors for embedding calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for EmbedCalls.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	// EmbedCalls counts Embed invocations per provider.
	EmbedCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordstack_embed_calls_total",
			Help: "Total number of embed calls",
		},
		[]string{"provider", "kind", "outcome"},
	)

	// EmbedDuration measures Embed latency per provider kind.
	EmbedDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordstack_embed_duration_seconds",
			Help:    "Duration of embed calls in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"kind"},
	)

	// TokensEmbedded counts tokens that received a vector.
	TokensEmbedded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordstack_tokens_embedded_total",
			Help: "Total number of tokens that received a vector",
		},
		[]string{"provider"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordstack_cache_hits_total",
			Help: "Static lookup cache hits",
		},
		[]string{"provider"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordstack_cache_misses_total",
			Help: "Static lookup cache misses",
		},
		[]string{"provider"},
	)
)

// ObserveEmbed records one finished Embed call.
func ObserveEmbed(provider, kind string, tokens int, start time.Time, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	EmbedCalls.WithLabelValues(provider, kind, outcome).Inc()
	EmbedDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if tokens > 0 {
		TokensEmbedded.WithLabelValues(provider).Add(float64(tokens))
	}
}
