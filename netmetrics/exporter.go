// Package netmetrics exposes a netpeer Network's PerfStats as Prometheus
// metrics, grounded on runZeroInc-sockstats/pkg/exporter's
// TCPInfoCollector: a custom prometheus.Collector whose Collect method
// pulls live data on every scrape rather than maintaining its own set of
// pre-registered gauges, so stats observed between scrapes are never
// stale or double-counted.
package netmetrics

import (
	"sync"

	"github.com/arapat/netpeer/netpeer"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthSource is satisfied by netpeer.Network; it's defined separately
// so tests can supply a fake without opening real sockets.
type HealthSource interface {
	GetHealth() *netpeer.PerfStats
	Subscribers() []string
}

// Collector is a prometheus.Collector that reports one Network's
// PerfStats counters, roundtrip averages, and subscriber list on every
// scrape. The per-peer Others snapshots are not exported.
type Collector struct {
	mu     sync.Mutex
	name   string
	source HealthSource

	total      *prometheus.Desc
	numMsg     *prometheus.Desc
	numMsgEcho *prometheus.Desc
	numHB      *prometheus.Desc
	numHBEcho  *prometheus.Desc
	avgMsgRTT  *prometheus.Desc
	avgHBRTT   *prometheus.Desc
	subscriber *prometheus.Desc
}

// NewCollector returns a Collector reporting on source, labelling every
// metric with name (typically the local peer's configured Name).
func NewCollector(name string, source HealthSource) *Collector {
	constLabels := prometheus.Labels{"peer": name}
	return &Collector{
		name:   name,
		source: source,
		total:      prometheus.NewDesc("netpeer_packets_total", "Total packets observed on the receive path.", nil, constLabels),
		numMsg:     prometheus.NewDesc("netpeer_messages_received_total", "Message packets received.", nil, constLabels),
		numMsgEcho: prometheus.NewDesc("netpeer_message_echoes_received_total", "Echo packets received.", nil, constLabels),
		numHB:      prometheus.NewDesc("netpeer_heartbeats_received_total", "Heartbeat packets received.", nil, constLabels),
		numHBEcho:  prometheus.NewDesc("netpeer_heartbeat_echoes_received_total", "HeartbeatEcho packets received.", nil, constLabels),
		avgMsgRTT:  prometheus.NewDesc("netpeer_message_roundtrip_microseconds_avg", "Average Message roundtrip time.", nil, constLabels),
		avgHBRTT:   prometheus.NewDesc("netpeer_heartbeat_roundtrip_microseconds_avg", "Average Heartbeat roundtrip time.", nil, constLabels),
		subscriber: prometheus.NewDesc("netpeer_subscriber", "One sample per live subscriber stream, value always 1.", []string{"addr"}, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.total
	descs <- c.numMsg
	descs <- c.numMsgEcho
	descs <- c.numHB
	descs <- c.numHBEcho
	descs <- c.avgMsgRTT
	descs <- c.avgHBRTT
	descs <- c.subscriber
}

// Collect implements prometheus.Collector, pulling a fresh snapshot from
// the source on every scrape.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	health := c.source.GetHealth()

	metrics <- prometheus.MustNewConstMetric(c.total, prometheus.CounterValue, float64(health.Total))
	metrics <- prometheus.MustNewConstMetric(c.numMsg, prometheus.CounterValue, float64(health.NumMsg))
	metrics <- prometheus.MustNewConstMetric(c.numMsgEcho, prometheus.CounterValue, float64(health.NumMsgEcho))
	metrics <- prometheus.MustNewConstMetric(c.numHB, prometheus.CounterValue, float64(health.NumHB))
	metrics <- prometheus.MustNewConstMetric(c.numHBEcho, prometheus.CounterValue, float64(health.NumHBEcho))
	metrics <- prometheus.MustNewConstMetric(c.avgMsgRTT, prometheus.GaugeValue, health.AvgRoundtripMsg())
	metrics <- prometheus.MustNewConstMetric(c.avgHBRTT, prometheus.GaugeValue, health.AvgRoundtripHeartbeat())

	for _, addr := range c.source.Subscribers() {
		metrics <- prometheus.MustNewConstMetric(c.subscriber, prometheus.GaugeValue, 1, addr)
	}
}
