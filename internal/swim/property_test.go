package swim

import (
	"math/rand"
	"testing"

	"pgregory.net/rapid"

	"swimguard/internal/clock"
)

// Property 2 (partial order) and its antisymmetry corollary: supersedes
// never holds in both directions for two distinct statuses.
func TestProperty_SupersedesIsAntisymmetric(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		a := genStatus(tt, "a")
		b := genStatus(tt, "b")

		ab := supersedes(a, b)
		ba := supersedes(b, a)
		if ab && ba {
			tt.Fatalf("supersedes held both ways: a=%+v b=%+v", a, b)
		}
	})
}

// supersedes is reflexive-false: a status never supersedes an identical
// copy of itself (there is nothing strictly older to drop).
func TestProperty_SupersedesIrreflexive(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		a := genStatus(tt, "a")
		b := cloneStatusValue(a)
		if supersedes(a, b) {
			tt.Fatalf("a identical status supersedes an exact copy of itself: %+v", a)
		}
	})
}

// Property 5: mergeSuspicions never exceeds the configured cap.
func TestProperty_MergeSuspicionsRespectsCap(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		k := rapid.IntRange(0, 6).Draw(tt, "k")
		previous := genNodeSet(tt, "previous", 0, 8)
		incoming := genNodeSet(tt, "incoming", 0, 8)

		merged := mergeSuspicions(incoming, previous, k)
		if k > 0 && len(merged) > max(k, len(previous)) {
			tt.Fatalf("merged set size %d exceeds cap %d given |previous|=%d", len(merged), k, len(previous))
		}
		for n := range previous {
			if _, ok := merged[n]; !ok {
				tt.Fatalf("merge dropped a previously-suspecting node %+v", n)
			}
		}
	})
}

// Properties 1, 4, 5, 6: drive an Instance through a random sequence of
// direct-probe outcomes for a single peer and check incarnation
// monotonicity, LHM bounds, the suspect-set cap, and dead terminality.
func TestProperty_InstanceInvariantsUnderRandomProbes(t *testing.T) {
	rapid.Check(t, func(tt *rapid.T) {
		m := clock.NewManual()
		settings := DefaultSettings()
		settings.MaxIndependentSuspicions = 3
		rng := rand.New(rand.NewSource(int64(rapid.Int64().Draw(tt, "seed"))))
		inst := NewInstance(Node{Endpoint: "self:7000", UID: "self"}, settings, m.Source(), rng)

		peer := Node{Endpoint: "peer:7000", UID: "peer"}
		inst.table.addMember(peer, Alive(0), 0)

		lastIncarnation := inst.Incarnation()
		steps := rapid.IntRange(1, 40).Draw(tt, "steps")
		for i := 0; i < steps; i++ {
			action := rapid.SampledFrom([]string{"timeout", "ack", "gossip-suspect", "gossip-dead"}).Draw(tt, "action")

			switch action {
			case "timeout":
				inst.OnPingResponse(PingResponse{Kind: PingTimeout, Target: peer, SequenceNumber: uint64(i)}, nil)
			case "ack":
				inc := rapid.Uint64Range(0, 10).Draw(tt, "ack-inc")
				inst.OnPingResponse(PingResponse{Kind: PingAck, Target: peer, Incarnation: inc, SequenceNumber: uint64(i)}, nil)
			case "gossip-suspect":
				by := genNodeSet(tt, "by", 1, 5)
				inc := rapid.Uint64Range(0, 10).Draw(tt, "suspect-inc")
				inst.foldGossipPayload([]Member{{Peer: peer, Status: Suspect(inc, by)}})
			case "gossip-dead":
				inst.foldGossipPayload([]Member{{Peer: peer, Status: Dead()}})
			}

			if inst.Incarnation() < lastIncarnation {
				tt.Fatalf("incarnation decreased: %d -> %d", lastIncarnation, inst.Incarnation())
			}
			lastIncarnation = inst.Incarnation()

			if lhm := inst.LHM(); lhm < 0 || lhm > settings.MaxLocalHealthMultiplier {
				tt.Fatalf("LHM left bounds: %d", lhm)
			}

			mem, ok := inst.Member(peer)
			if !ok {
				tt.Fatal("peer unexpectedly disappeared from the table")
			}
			if mem.Status.Kind == KindSuspect && len(mem.Status.SuspectedBy) > settings.MaxIndependentSuspicions {
				tt.Fatalf("suspectedBy exceeded cap: %d", len(mem.Status.SuspectedBy))
			}
			if mem.Status.Kind == KindDead {
				// Dead terminality: hammer it with more events and
				// confirm nothing moves it off dead for the rest of
				// this run.
				inst.OnPingResponse(PingResponse{Kind: PingTimeout, Target: peer, SequenceNumber: uint64(i) + 1000}, nil)
				inst.foldGossipPayload([]Member{{Peer: peer, Status: Alive(inc(mem.Status.Incarnation))}})
				after, _ := inst.Member(peer)
				if after.Status.Kind != KindDead {
					tt.Fatalf("dead member resurrected by a later event: %+v", after.Status)
				}
			}
		}
	})
}

func inc(v uint64) uint64 { return v + 1 }

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func genStatus(t *rapid.T, label string) Status {
	kind := rapid.SampledFrom([]Kind{KindAlive, KindSuspect, KindUnreachable, KindDead}).Draw(t, label+"-kind")
	incarnation := rapid.Uint64Range(0, 5).Draw(t, label+"-inc")
	switch kind {
	case KindSuspect:
		return Suspect(incarnation, genNodeSet(t, label+"-by", 0, 4))
	case KindDead:
		return Dead()
	case KindUnreachable:
		return Unreachable(incarnation)
	default:
		return Alive(incarnation)
	}
}

func cloneStatusValue(s Status) Status {
	out := s
	if s.SuspectedBy != nil {
		by := make(map[Node]struct{}, len(s.SuspectedBy))
		for n := range s.SuspectedBy {
			by[n] = struct{}{}
		}
		out.SuspectedBy = by
	}
	return out
}

func genNodeSet(t *rapid.T, label string, min, max int) map[Node]struct{} {
	n := rapid.IntRange(min, max).Draw(t, label+"-size")
	set := make(map[Node]struct{}, n)
	for i := 0; i < n; i++ {
		set[Node{Endpoint: label, UID: rapid.StringMatching(`[a-z]{1,6}`).Draw(t, label+"-uid")}] = struct{}{}
	}
	return set
}
