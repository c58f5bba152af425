package neighbor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for exchange rounds, labelled by the process rank.
var (
	localCopiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_local_copies_total",
		Help: "Neighbor copies appended directly to tiles on the same process",
	}, []string{"rank"})

	remoteSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_remote_records_sent_total",
		Help: "Packed neighbor records sent to other processes",
	}, []string{"rank"})

	remoteRecvTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_remote_records_received_total",
		Help: "Packed neighbor records received from other processes",
	}, []string{"rank"})

	bytesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_bytes_sent_total",
		Help: "Bytes of packed neighbor records sent",
	}, []string{"rank"})

	negotiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_negotiations_total",
		Help: "Size negotiations by mode",
	}, []string{"rank", "mode"})

	tagRebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_tag_rebuilds_total",
		Help: "Rebuilds of the copy tag cache by reason",
	}, []string{"rank", "reason"})

	roundDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nbx_neighbor_round_duration_seconds",
		Help:    "Time spent filling neighbor buffers",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"rank", "mode"})

	listPairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nbx_neighbor_list_pairs_total",
		Help: "Pairs accepted by the pair predicate while building lists",
	}, []string{"rank"})
)
