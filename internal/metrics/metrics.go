// Package metrics defines the Prometheus collectors DawnSearch exposes at
// /metrics, scraped over the same HTTP listener as the query adapter.
//
// Grounded on persistorai-persistor's internal/metrics package: package-level
// vars registered once in init(), named with the service as a prefix.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PagesIndexed is the local page store's current row count, set after
	// every successful insert. It is not set at startup, so it reads 0
	// until the first insert.
	PagesIndexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dawnsearch_pages_indexed",
			Help: "Number of pages held in the local page store.",
		},
	)

	// ActiveSearches is the number of searches the search service is
	// currently merging: a local search plus any remote fan-out, which
	// ends at its deadline.
	ActiveSearches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dawnsearch_active_searches",
			Help: "Number of in-flight searches awaiting peer replies or deadline expiry.",
		},
	)

	// PeerCount is the number of entries currently in the UDP service's
	// peer table (announced peers not yet expired).
	PeerCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dawnsearch_peer_count",
			Help: "Number of known, unexpired peers in the UDP peer table.",
		},
	)

	// SearchLatency measures wall-clock time from a TextSearch/
	// EmbeddingSearch/MoreLikeSearch request to its reply, labeled by
	// whether the search contacted remote peers.
	SearchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dawnsearch_search_duration_seconds",
			Help:    "Search request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"remote"},
	)

	// InsertsTotal counts successful local inserts, labeled by origin —
	// "network" for replicated pages, "local" for directly crawled ones.
	InsertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dawnsearch_inserts_total",
			Help: "Total pages inserted into the local store, by origin.",
		},
		[]string{"origin"},
	)

	// CapacityExceededTotal counts inserts skipped because the local
	// store had no space left, per spec section 7's CapacityExceeded kind.
	CapacityExceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawnsearch_capacity_exceeded_total",
			Help: "Total inserts skipped locally due to exhausted local space.",
		},
	)

	// PeerTimeoutsTotal counts outbound searches whose deadline passed
	// before every contacted peer had replied.
	PeerTimeoutsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dawnsearch_peer_timeouts_total",
			Help: "Total searches completed by deadline expiry with an incomplete peer quorum.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		PagesIndexed,
		ActiveSearches,
		PeerCount,
		SearchLatency,
		InsertsTotal,
		CapacityExceededTotal,
		PeerTimeoutsTotal,
	)
}
