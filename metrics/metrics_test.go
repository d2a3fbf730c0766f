package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRecorderIsNoOp(t *testing.T) {
	var r *Recorder
	r.HandshakeResult("client", true)
	r.ChunkBytes("write", 128)
	r.ConnOpened()
	r.ConnClosed()
}

func TestRecorderCountsHandshakes(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.HandshakeResult("client", true)
	r.HandshakeResult("client", false)

	got := testutil.ToFloat64(r.handshakes.WithLabelValues("client", "success"))
	if got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
	got = testutil.ToFloat64(r.handshakes.WithLabelValues("client", "failure"))
	if got != 1 {
		t.Errorf("failure count = %v, want 1", got)
	}
}

func TestRecorderTracksActiveConns(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ConnOpened()
	r.ConnOpened()
	r.ConnClosed()

	if got := testutil.ToFloat64(r.activeConns); got != 1 {
		t.Errorf("active conns = %v, want 1", got)
	}
}
