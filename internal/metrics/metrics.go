// Package metrics exposes the Instance's state and directive throughput
// as Prometheus gauges and counters, sampled by internal/daemon after
// every drained directive list. The swim package itself never imports
// prometheus — the Instance returns directives; this package is one of
// the things a shell does with them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds every metric this node publishes.
type Recorder struct {
	AliveMembers       prometheus.Gauge
	SuspectMembers     prometheus.Gauge
	UnreachableMembers prometheus.Gauge
	DeadMembers        prometheus.Gauge
	LocalHealth        prometheus.Gauge
	ProtocolPeriod     prometheus.Gauge
	Incarnation        prometheus.Gauge

	DirectivesEmitted *prometheus.CounterVec
}

// NewRecorder registers every metric against reg (pass
// prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests).
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		AliveMembers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "members_alive",
			Help:      "Number of members currently believed alive.",
		}),
		SuspectMembers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "members_suspect",
			Help:      "Number of members currently suspect.",
		}),
		UnreachableMembers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "members_unreachable",
			Help:      "Number of members currently unreachable.",
		}),
		DeadMembers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "members_dead",
			Help:      "Number of members marked dead.",
		}),
		LocalHealth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "local_health_multiplier",
			Help:      "Current Lifeguard local health multiplier.",
		}),
		ProtocolPeriod: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "protocol_period",
			Help:      "Current SWIM protocol period.",
		}),
		Incarnation: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swimguard",
			Name:      "self_incarnation",
			Help:      "This node's own current incarnation number.",
		}),
		DirectivesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swimguard",
			Name:      "directives_emitted_total",
			Help:      "Directives emitted by the Instance, by kind.",
		}, []string{"kind"}),
	}
}

// MemberCounts is a snapshot of the member-status tallies used by
// SampleMembership.
type MemberCounts struct {
	Alive, Suspect, Unreachable, Dead int
}

// SampleMembership updates the gauge set from a fresh member-count
// snapshot, LHM reading, protocol period, and incarnation.
func (r *Recorder) SampleMembership(counts MemberCounts, lhm int, protocolPeriod, incarnation uint64) {
	r.AliveMembers.Set(float64(counts.Alive))
	r.SuspectMembers.Set(float64(counts.Suspect))
	r.UnreachableMembers.Set(float64(counts.Unreachable))
	r.DeadMembers.Set(float64(counts.Dead))
	r.LocalHealth.Set(float64(lhm))
	r.ProtocolPeriod.Set(float64(protocolPeriod))
	r.Incarnation.Set(float64(incarnation))
}

// RecordDirective increments the per-kind directive counter.
func (r *Recorder) RecordDirective(kind string) {
	r.DirectivesEmitted.WithLabelValues(kind).Inc()
}
