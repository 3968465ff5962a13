// Package cdsmetrics exposes the CDS node's Prometheus metrics,
// following the teacher's bfdmetrics.Collector pattern: a struct of
// Gauge/CounterVecs constructed once and registered against a
// prometheus.Registerer, with plain increment methods so the rest of
// the codebase never imports prometheus directly.
package cdsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nu-iot-lab/lora-mesh-cds/internal/cds"
)

const namespace = "cdsnode"

// Label names.
const labelPacketType = "packet_type"

// Collector holds all CDS Prometheus metrics and implements
// cds.MetricsReporter, so an *Engine can be built with WithMetrics(c)
// directly.
type Collector struct {
	// Neighbors tracks the current size of the neighbor table.
	Neighbors prometheus.Gauge

	// BeaconsSent counts transmitted BEACON frames.
	BeaconsSent prometheus.Counter

	// BeaconsReceived counts received BEACON frames.
	BeaconsReceived prometheus.Counter

	// NeighborSetsSent counts transmitted NEIGHBOR_SET/UPD_NEIGHBOR_SET
	// frames, labeled by which of the two tags was sent.
	NeighborSetsSent *prometheus.CounterVec

	// NeighborSetsReceived counts received NEIGHBOR_SET/UPD_NEIGHBOR_SET
	// frames, labeled the same way.
	NeighborSetsReceived *prometheus.CounterVec

	// DecodeErrors counts frames dropped for failing to decode.
	DecodeErrors prometheus.Counter

	// SendErrors counts failed Radio.Send calls.
	SendErrors prometheus.Counter

	// DiscoveryEntries counts transitions into discovery state (boot plus
	// every re-entry triggered by an unknown beacon sender).
	DiscoveryEntries prometheus.Counter

	// BecameDominant and LostDominance count is_dominant flips, split by
	// direction.
	BecameDominant prometheus.Counter
	LostDominance  prometheus.Counter

	// LeaverEvictions counts neighbor records removed by the leaver sweep.
	LeaverEvictions prometheus.Counter
}

// NewCollector creates a Collector with all CDS metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Neighbors,
		c.BeaconsSent,
		c.BeaconsReceived,
		c.NeighborSetsSent,
		c.NeighborSetsReceived,
		c.DecodeErrors,
		c.SendErrors,
		c.DiscoveryEntries,
		c.BecameDominant,
		c.LostDominance,
		c.LeaverEvictions,
	)

	return c
}

func newMetrics() *Collector {
	packetTypeLabels := []string{labelPacketType}

	return &Collector{
		Neighbors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "neighbors",
			Help:      "Current number of records in the neighbor table.",
		}),
		BeaconsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_sent_total",
			Help:      "Total BEACON frames transmitted.",
		}),
		BeaconsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_received_total",
			Help:      "Total BEACON frames received.",
		}),
		NeighborSetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "neighbor_sets_sent_total",
			Help:      "Total NEIGHBOR_SET/UPD_NEIGHBOR_SET frames transmitted.",
		}, packetTypeLabels),
		NeighborSetsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "neighbor_sets_received_total",
			Help:      "Total NEIGHBOR_SET/UPD_NEIGHBOR_SET frames received.",
		}, packetTypeLabels),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total frames dropped for failing to decode.",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Total failed radio send attempts.",
		}),
		DiscoveryEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_entries_total",
			Help:      "Total transitions into discovery state.",
		}),
		BecameDominant: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "became_dominant_total",
			Help:      "Total is_dominant false->true transitions.",
		}),
		LostDominance: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_dominance_total",
			Help:      "Total is_dominant true->false transitions.",
		}),
		LeaverEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaver_evictions_total",
			Help:      "Total neighbor records removed by the leaver sweep.",
		}),
	}
}

// -------------------------------------------------------------------------
// cds.MetricsReporter
// -------------------------------------------------------------------------

func (c *Collector) BeaconSent()     { c.BeaconsSent.Inc() }
func (c *Collector) BeaconReceived() { c.BeaconsReceived.Inc() }

func (c *Collector) NeighborSetSent(packetType cds.PacketType) {
	c.NeighborSetsSent.WithLabelValues(packetType.String()).Inc()
}

func (c *Collector) NeighborSetReceived(packetType cds.PacketType) {
	c.NeighborSetsReceived.WithLabelValues(packetType.String()).Inc()
}

func (c *Collector) DecodeError() { c.DecodeErrors.Inc() }
func (c *Collector) SendError()   { c.SendErrors.Inc() }

func (c *Collector) DiscoveryEntered() { c.DiscoveryEntries.Inc() }

func (c *Collector) DominanceTransition(isDominant bool) {
	if isDominant {
		c.BecameDominant.Inc()
	} else {
		c.LostDominance.Inc()
	}
}

func (c *Collector) LeaverEvicted() { c.LeaverEvictions.Inc() }

func (c *Collector) NeighborCount(n int) { c.Neighbors.Set(float64(n)) }
