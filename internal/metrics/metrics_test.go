package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExchange_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ex := m.For("bitfinex")

	ex.RecordWritten("msg")
	ex.RecordWritten("msg")
	ex.RecordWritten("state")
	ex.UnknownChannel()
	ex.SetQueueDepth(7)
	ex.SessionEnded(3 * time.Second)

	if got := testutil.ToFloat64(m.RecordsWritten.WithLabelValues("bitfinex", "msg")); got != 2 {
		t.Fatalf("msg records = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.UnknownChannel.WithLabelValues("bitfinex")); got != 1 {
		t.Fatalf("unknown = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("bitfinex")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
}

func TestExchange_NilSafe(t *testing.T) {
	var m *Metrics
	ex := m.For("bitmex")
	ex.RecordWritten("msg")
	ex.Reconnect()
	ex.SessionEnded(time.Second)
}
