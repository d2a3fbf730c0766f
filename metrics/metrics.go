// Package metrics wires the connection wrapper's handshake and chunk
// throughput events into Prometheus, following the counter/histogram
// construction style of the surrounding example corpus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shadowswift"

// Recorder holds the collectors for one registry. A nil *Recorder is valid
// and every method on it is a no-op, so the transport core stays
// side-effect-free unless a caller opts in.
type Recorder struct {
	handshakes  *prometheus.CounterVec
	chunkBytes  *prometheus.HistogramVec
	activeConns prometheus.Gauge
}

// NewRecorder registers ShadowSwift's collectors against reg and returns a
// Recorder for them. Pass prometheus.NewRegistry() for an isolated registry,
// or prometheus.DefaultRegisterer for the process-wide default.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		handshakes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "darkstar",
				Name:      "handshakes_total",
				Help:      "Total number of DarkStar handshakes attempted, by role and result.",
			},
			[]string{"role", "result"}, // role: client|server, result: success|failure
		),
		chunkBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "aead",
				Name:      "chunk_bytes",
				Help:      "Size in bytes of each plaintext chunk packed or unpacked.",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 8), // 64B .. 1MB-ish, capped in practice at 16384
			},
			[]string{"direction"}, // read|write
		),
		activeConns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "conn",
				Name:      "active",
				Help:      "Number of currently open ShadowSwift connections.",
			},
		),
	}
}

// HandshakeResult records the outcome of a DarkStar handshake attempt.
func (r *Recorder) HandshakeResult(role string, success bool) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.handshakes.WithLabelValues(role, result).Inc()
}

// ChunkBytes records the plaintext size of a packed or unpacked chunk.
func (r *Recorder) ChunkBytes(direction string, n int) {
	if r == nil {
		return
	}
	r.chunkBytes.WithLabelValues(direction).Observe(float64(n))
}

// ConnOpened increments the active-connection gauge.
func (r *Recorder) ConnOpened() {
	if r == nil {
		return
	}
	r.activeConns.Inc()
}

// ConnClosed decrements the active-connection gauge.
func (r *Recorder) ConnClosed() {
	if r == nil {
		return
	}
	r.activeConns.Dec()
}
