package netmetrics

import (
	"strings"
	"testing"

	"github.com/arapat/netpeer/netpeer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	stats *netpeer.PerfStats
	subs  []string
}

func (f *fakeSource) GetHealth() *netpeer.PerfStats { return f.stats }
func (f *fakeSource) Subscribers() []string          { return f.subs }

func TestCollectorExportsCounters(t *testing.T) {
	stats := netpeer.NewPerfStats()
	stats.Update("peer-a", netpeer.NewMessage("x"))

	source := &fakeSource{stats: stats, subs: []string{"10.0.0.1", "10.0.0.2"}}
	c := NewCollector("node-1", source)

	if err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP netpeer_messages_received_total Message packets received.
# TYPE netpeer_messages_received_total counter
netpeer_messages_received_total{peer="node-1"} 1
`), "netpeer_messages_received_total"); err != nil {
		t.Fatalf("unexpected metric output: %v", err)
	}
}

func TestCollectorDescribeMatchesCollect(t *testing.T) {
	stats := netpeer.NewPerfStats()
	source := &fakeSource{stats: stats}
	c := NewCollector("node-2", source)

	if err := testutil.CollectAndCompare(c, strings.NewReader(`
# HELP netpeer_packets_total Total packets observed on the receive path.
# TYPE netpeer_packets_total counter
netpeer_packets_total{peer="node-2"} 0
`), "netpeer_packets_total"); err != nil {
		t.Fatalf("unexpected metric output: %v", err)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
}
