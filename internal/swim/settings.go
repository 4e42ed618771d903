package swim

import "time"

// NeedsMoreGossipFunc decides whether a gossip entry should be reinserted
// into the heap after being drained into a payload, given the cluster
// size. The standard SWIM dissemination count is ceil(lambda * log(n+1))
// for a tuning constant lambda; StandardDissemination below builds one.
type NeedsMoreGossipFunc func(timesGossiped, clusterSize int) bool

// Settings is the exhaustive configuration surface of an Instance (spec
// §6). The Instance never reads environment variables, files, or flags
// itself; the shell resolves all of this before constructing an Instance.
type Settings struct {
	// ProbeInterval is the base periodic tick interval.
	ProbeInterval time.Duration
	// PingTimeout is the base direct-ping timeout.
	PingTimeout time.Duration
	// IndirectProbeCount (k) is the number of peers queried on indirect
	// probe.
	IndirectProbeCount int
	// IndirectPingTimeoutMultiplier is applied to PingTimeout for
	// indirect pings; expected to be < 1.
	IndirectPingTimeoutMultiplier float64

	// MaxLocalHealthMultiplier is the ceiling for LHM.
	MaxLocalHealthMultiplier int
	// SuspicionTimeoutMin is Min in the suspicion-timeout formula.
	SuspicionTimeoutMin time.Duration
	// SuspicionTimeoutMax is Max in the suspicion-timeout formula.
	SuspicionTimeoutMax time.Duration
	// MaxIndependentSuspicions (K) caps the suspectedBy set and appears
	// in the suspicion-timeout denominator.
	MaxIndependentSuspicions int

	// MaxMessagesPerGossip is the per-payload rumor cap.
	MaxMessagesPerGossip int
	// NeedsToBeGossipedMoreTimes decides whether an entry survives
	// another round in the heap after being included in a payload.
	NeedsToBeGossipedMoreTimes NeedsMoreGossipFunc

	// ExtensionUnreachability enables the unreachable status; when
	// false, any transition that would produce it is promoted to dead.
	ExtensionUnreachability bool
}

// DefaultSettings returns reasonable defaults, matching the magnitudes
// used throughout the Lifeguard paper and spec §8's worked examples.
func DefaultSettings() Settings {
	return Settings{
		ProbeInterval:                 1 * time.Second,
		PingTimeout:                   500 * time.Millisecond,
		IndirectProbeCount:            3,
		IndirectPingTimeoutMultiplier: 0.6,

		MaxLocalHealthMultiplier: 8,
		SuspicionTimeoutMin:      1 * time.Second,
		SuspicionTimeoutMax:      10 * time.Second,
		MaxIndependentSuspicions: 3,

		MaxMessagesPerGossip:       6,
		NeedsToBeGossipedMoreTimes: StandardDissemination(3),

		ExtensionUnreachability: false,
	}
}

// StandardDissemination returns the classic SWIM dissemination-count
// predicate: an entry survives for ceil(lambda * log(n+1)) total
// inclusions in a payload.
func StandardDissemination(lambda float64) NeedsMoreGossipFunc {
	return func(timesGossiped, clusterSize int) bool {
		limit := disseminationLimit(lambda, clusterSize)
		return timesGossiped < limit
	}
}

func disseminationLimit(lambda float64, clusterSize int) int {
	n := clusterSize
	if n < 1 {
		n = 1
	}
	limit := int(ceilLog(lambda, n))
	if limit < 1 {
		limit = 1
	}
	return limit
}
