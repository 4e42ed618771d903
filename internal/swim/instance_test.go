package swim

import (
	"math/rand"
	"testing"
	"time"

	"swimguard/internal/clock"
)

func testSelf() Node { return Node{Endpoint: "self:7000", UID: "self-uid"} }

func newTestInstance(t *testing.T, c clock.Source) *Instance {
	t.Helper()
	settings := DefaultSettings()
	rng := rand.New(rand.NewSource(1))
	return NewInstance(testSelf(), settings, c, rng)
}

// A. Fresh instance, empty membership.
func TestScenarioA_FreshInstanceEmptyTick(t *testing.T) {
	m := clock.NewManual()
	inst := newTestInstance(t, m.Source())

	directives := inst.OnPeriodicPingTick()
	if len(directives) != 0 {
		t.Fatalf("expected no directives on an empty tick, got %v", directives)
	}
	if inst.ProtocolPeriod() != 1 {
		t.Fatalf("expected protocolPeriod to advance 0 -> 1, got %d", inst.ProtocolPeriod())
	}
}

// B. Refutation: a gossip payload suspecting self at the current
// incarnation bumps the incarnation and rebroadcasts an alive record.
func TestScenarioB_Refutation(t *testing.T) {
	m := clock.NewManual()
	inst := newTestInstance(t, m.Source())
	inst.incarnation = 5
	inst.table.members[inst.myself] = newMember(inst.myself, Alive(5), 0, nil)

	n := Node{Endpoint: "n:7000", UID: "n-uid"}
	payload := []Member{
		{Peer: inst.myself, Status: Suspect(5, map[Node]struct{}{n: {}})},
	}

	directives := inst.OnPing(n, payload, 1)

	if inst.Incarnation() != 6 {
		t.Fatalf("expected incarnation 5 -> 6, got %d", inst.Incarnation())
	}
	if inst.LHM() != 1 {
		t.Fatalf("expected one LHM increment from the refutation, got %d", inst.LHM())
	}

	var sawApplied bool
	for _, d := range directives {
		if gp, ok := d.(GossipProcessed); ok && gp.Peer == inst.myself {
			if gp.Outcome != GossipApplied {
				t.Fatalf("expected GossipApplied for the self refutation, got %v", gp.Outcome)
			}
			if gp.Previous == nil {
				t.Fatal("expected Previous to be populated for the refutation")
			}
			sawApplied = true
		}
	}
	if !sawApplied {
		t.Fatal("expected a GossipProcessed directive for the self refutation")
	}

	self := inst.table.members[inst.myself]
	if self.Status.Kind != KindAlive || self.Status.Incarnation != 6 {
		t.Fatalf("expected self to be alive(6), got %+v", self.Status)
	}
}

// C. Direct probe timeout installs suspicion and (when other reachable
// peers exist) requests indirect probes.
func TestScenarioC_DirectProbeTimeout(t *testing.T) {
	m := clock.NewManual()
	inst := newTestInstance(t, m.Source())

	p := Node{Endpoint: "p:7000", UID: "p-uid"}
	inst.table.addMember(p, Alive(3), 0)

	directives := inst.OnPingResponse(PingResponse{Kind: PingTimeout, Target: p, SequenceNumber: 1}, nil)

	mem, ok := inst.Member(p)
	if !ok || mem.Status.Kind != KindSuspect {
		t.Fatalf("expected P to become suspect, got %+v", mem.Status)
	}
	if _, isSelf := mem.Status.SuspectedBy[inst.myself]; !isSelf {
		t.Fatal("expected self to be in P's suspectedBy set")
	}
	if inst.LHM() != 1 {
		t.Fatalf("expected one LHM increment from the failed probe, got %d", inst.LHM())
	}

	var sawChange, sawPingRequests bool
	for _, d := range directives {
		switch v := d.(type) {
		case MembershipChanged:
			if v.Peer == p && v.Current.Kind == KindSuspect {
				sawChange = true
			}
		case SendPingRequests:
			sawPingRequests = true
		}
	}
	if !sawChange {
		t.Fatal("expected a MembershipChanged directive for P's suspicion")
	}
	// No other reachable peer besides self exists, so no candidates are
	// available for indirect probing.
	if sawPingRequests {
		t.Fatal("expected no SendPingRequests with zero other reachable peers")
	}
}

// D. Indirect success relays the ack to the ping-request origin without
// touching LHM (the successfulProbe adjustment only applies to direct
// probes this Instance issued itself).
func TestScenarioD_IndirectSuccessRelaysAck(t *testing.T) {
	m := clock.NewManual()
	inst := newTestInstance(t, m.Source())

	p := Node{Endpoint: "p:7000", UID: "p-uid"}
	o := Node{Endpoint: "o:7000", UID: "o-uid"}
	inst.table.addMember(p, Alive(3), 0)

	directives := inst.OnPingResponse(PingResponse{
		Kind:           PingAck,
		Target:         p,
		Incarnation:    7,
		SequenceNumber: 42,
	}, &o)

	if inst.LHM() != 0 {
		t.Fatalf("expected LHM unchanged on a relayed ack, got %d", inst.LHM())
	}

	var found bool
	for _, d := range directives {
		ack, ok := d.(SendAck)
		if !ok {
			continue
		}
		if ack.To == o && ack.AckTarget == p && ack.Incarnation == 7 && ack.SequenceNumber == 42 {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a SendAck relaying the result to the ping-request origin")
	}
}

// E. Suspicion expiry promotes a timed-out suspect directly to dead when
// the unreachability extension is disabled, and removes it from the ping
// queue.
func TestScenarioE_SuspicionExpiry(t *testing.T) {
	m := clock.NewManual()
	settings := DefaultSettings()
	settings.SuspicionTimeoutMin = 1 * time.Second
	settings.SuspicionTimeoutMax = 10 * time.Second
	settings.MaxIndependentSuspicions = 3
	settings.ExtensionUnreachability = false
	rng := rand.New(rand.NewSource(1))
	inst := NewInstance(testSelf(), settings, m.Source(), rng)

	p := Node{Endpoint: "p:7000", UID: "p-uid"}
	inst.table.addMember(p, Alive(4), 0)
	inst.table.mark(p, Suspect(4, map[Node]struct{}{inst.myself: {}}), 0)

	m.Advance(11 * time.Second)
	directives := inst.OnPeriodicPingTick()

	var sawDead bool
	for _, d := range directives {
		if mc, ok := d.(MembershipChanged); ok && mc.Peer == p {
			if mc.Previous == nil || mc.Previous.Kind != KindSuspect {
				t.Fatalf("expected previous status suspect, got %+v", mc.Previous)
			}
			if mc.Current.Kind != KindDead {
				t.Fatalf("expected current status dead, got %+v", mc.Current)
			}
			sawDead = true
		}
	}
	if !sawDead {
		t.Fatal("expected a MembershipChanged(suspect -> dead) directive")
	}
	if inst.table.inPingQueue(p) {
		t.Fatal("expected P to be removed from the ping queue once dead")
	}
}

// F. UID-less alias replacement: a bootstrap entry with no UID is replaced
// wholesale by a fully identified record for the same endpoint.
func TestScenarioF_UIDLessAliasReplacement(t *testing.T) {
	m := clock.NewManual()
	inst := newTestInstance(t, m.Source())

	endpoint := "bootstrap:7000"
	bootstrap := Node{Endpoint: endpoint}
	inst.table.addMember(bootstrap, Alive(0), 0)

	identified := Node{Endpoint: endpoint, UID: "real-uid"}
	directives := inst.foldGossipPayload([]Member{
		{Peer: identified, Status: Alive(2)},
	})

	if _, stillThere := inst.Member(bootstrap); stillThere {
		t.Fatal("expected the UID-less alias to be gone")
	}
	mem, ok := inst.Member(identified)
	if !ok || mem.Status.Kind != KindAlive || mem.Status.Incarnation != 2 {
		t.Fatalf("expected a single alive(2) entry for the identified peer, got %+v ok=%v", mem, ok)
	}

	var sawChange bool
	for _, d := range directives {
		if mc, ok := d.(MembershipChanged); ok && mc.Peer == identified {
			if mc.Previous != nil {
				t.Fatal("expected Previous to be nil: the UID-less entry is a distinct, replaced identity")
			}
			sawChange = true
		}
	}
	if !sawChange {
		t.Fatal("expected a MembershipChanged(previous: None) directive")
	}
}
