// Package metrics holds the prometheus collectors shared across components,
// grounded on the per-service promauto pattern the validator used
// (namespace per component, histogram buckets sized to the quantity being
// measured).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricsBucketsMicroSeconds = prometheus.ExponentialBuckets(1, 2, 20)
	MetricsBucketsMilliSeconds = prometheus.ExponentialBuckets(1, 2, 16)
	MetricsBucketsSize         = prometheus.ExponentialBuckets(32, 2, 16)
)

var (
	once sync.Once

	LevinFramesDecoded   prometheus.Counter
	LevinFramesEncoded   prometheus.Counter
	LevinFrameErrors     prometheus.Counter
	PeerConnectionsTotal prometheus.Counter
	PeerConnectionsBanned prometheus.Counter

	VerifierBlockDuration prometheus.Histogram
	VerifierTxDuration    prometheus.Histogram
	VerifierRejections    *prometheus.CounterVec

	StorageRequestDuration *prometheus.HistogramVec
	StorageWriterQueueDepth prometheus.Gauge

	DandelionStemCount  prometheus.Counter
	DandelionFluffCount prometheus.Counter

	RPCRequestDuration *prometheus.HistogramVec
	RPCErrorsTotal     *prometheus.CounterVec
)

// Init registers every collector exactly once. Calling it is optional: every
// collector is nil-safe to use only after Init runs, and components that
// never call Init simply don't export metrics (handy for unit tests).
func Init() {
	once.Do(func() {
		LevinFramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "levin", Name: "frames_decoded_total",
			Help: "Number of Levin buckets decoded from peer sockets",
		})
		LevinFramesEncoded = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "levin", Name: "frames_encoded_total",
			Help: "Number of Levin buckets written to peer sockets",
		})
		LevinFrameErrors = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "levin", Name: "frame_errors_total",
			Help: "Number of malformed Levin buckets rejected",
		})
		PeerConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "peer", Name: "connections_total",
			Help: "Number of peer connections established",
		})
		PeerConnectionsBanned = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "peer", Name: "connections_banned_total",
			Help: "Number of peer connections terminated due to a protocol violation",
		})
		VerifierBlockDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cuprate", Subsystem: "verifier", Name: "block_verify_micros",
			Help: "Duration of block verification", Buckets: MetricsBucketsMicroSeconds,
		})
		VerifierTxDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cuprate", Subsystem: "verifier", Name: "tx_verify_micros",
			Help: "Duration of transaction verification", Buckets: MetricsBucketsMicroSeconds,
		})
		VerifierRejections = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "verifier", Name: "rejections_total",
			Help: "Number of blocks/transactions rejected by reason",
		}, []string{"reason"})
		StorageRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cuprate", Subsystem: "storage", Name: "request_micros",
			Help: "Duration of storage service requests", Buckets: MetricsBucketsMicroSeconds,
		}, []string{"op"})
		StorageWriterQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "cuprate", Subsystem: "storage", Name: "writer_queue_depth",
			Help: "Number of write requests queued for the storage writer",
		})
		DandelionStemCount = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "dandelion", Name: "stem_total",
			Help: "Number of transactions routed via stem",
		})
		DandelionFluffCount = promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "dandelion", Name: "fluff_total",
			Help: "Number of transactions routed via fluff broadcast",
		})
		RPCRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cuprate", Subsystem: "rpc", Name: "request_millis",
			Help: "Duration of RPC requests", Buckets: MetricsBucketsMilliSeconds,
		}, []string{"method"})
		RPCErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuprate", Subsystem: "rpc", Name: "errors_total",
			Help: "Number of RPC requests that returned an error",
		}, []string{"method", "code"})
	})
}

// ObserveStorageRequest records a storage service request's duration under
// op ("read"/"write"). A no-op before Init, so C6's tests don't need a
// collector wired up.
func ObserveStorageRequest(op string, d time.Duration) {
	if StorageRequestDuration == nil {
		return
	}
	StorageRequestDuration.WithLabelValues(op).Observe(float64(d.Microseconds()))
}

// SetStorageWriterQueueDepth reports how many write requests are queued
// ahead of the one currently running. A no-op before Init.
func SetStorageWriterQueueDepth(n int) {
	if StorageWriterQueueDepth == nil {
		return
	}
	StorageWriterQueueDepth.Set(float64(n))
}
