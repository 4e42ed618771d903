package swim

import (
	"math/rand"
	"time"

	"swimguard/internal/clock"
)

// Instance is the pure SWIM-with-Lifeguard state machine. It owns the
// membership table, the incarnation counter, the protocol period, the
// sequence-number source, and the local health multiplier. Every exported
// method here is a `(state, event) -> (state', directives)` reduction: no
// method performs I/O, blocks, or spawns anything. The surrounding shell is
// expected to serialize event delivery — an Instance has no internal
// synchronization of its own.
type Instance struct {
	myself         Node
	incarnation    uint64
	protocolPeriod uint64
	sequenceNumber uint64

	settings *Settings
	clock    clock.Source
	lhm      *localHealthMultiplier
	table    *table
}

// NewInstance constructs a fresh Instance owning self, alive at incarnation
// zero. rng seeds both the round-robin insertion policy and indirect-probe
// candidate selection; pass a deterministic source in tests.
func NewInstance(self Node, settings Settings, c clock.Source, rng *rand.Rand) *Instance {
	s := settings
	inst := &Instance{
		myself:   self,
		settings: &s,
		clock:    c,
		lhm:      newLocalHealthMultiplier(s.MaxLocalHealthMultiplier),
	}
	inst.table = newTable(self, Alive(0), 0, c, rng, inst.settings)
	return inst
}

// --- introspection, used by the shell/daemon and by tests ---

// Incarnation returns the Instance's own current incarnation.
func (inst *Instance) Incarnation() uint64 { return inst.incarnation }

// ProtocolPeriod returns the current protocol period.
func (inst *Instance) ProtocolPeriod() uint64 { return inst.protocolPeriod }

// LHM returns the current local health multiplier value.
func (inst *Instance) LHM() int { return inst.lhm.get() }

// DynamicProbeInterval returns baseProbeInterval dilated by the current
// LHM. The shell must reschedule its periodic tick to this value after
// every LHM-modifying event; the Instance itself never schedules timers.
func (inst *Instance) DynamicProbeInterval() time.Duration {
	return inst.lhm.dynamicProbeInterval(inst.settings.ProbeInterval)
}

// DynamicPingTimeout returns basePingTimeout dilated by the current LHM,
// the same value a fresh direct SendPing directive would have carried.
// The shell uses it to size the wait on an outstanding indirect-probe
// relay, which carries no per-item timeout of its own.
func (inst *Instance) DynamicPingTimeout() time.Duration {
	return inst.lhm.dynamicPingTimeout(inst.settings.PingTimeout)
}

// Self returns the Instance's own peer identifier.
func (inst *Instance) Self() Node { return inst.myself }

// Member returns the stored record for peer, if any.
func (inst *Instance) Member(peer Node) (Member, bool) {
	return inst.table.member(peer)
}

// Members returns a snapshot of every known member record, in a
// deterministic (endpoint, UID) order.
func (inst *Instance) Members() []Member {
	peers := make([]Node, 0, len(inst.table.members))
	for p := range inst.table.members {
		peers = append(peers, p)
	}
	peers = sortNodes(peers)
	out := make([]Member, 0, len(peers))
	for _, p := range peers {
		out = append(out, inst.table.members[p].clone())
	}
	return out
}

// PingResponseKind tags the three ways an outstanding ping can resolve.
type PingResponseKind int

const (
	PingAck PingResponseKind = iota
	PingNack
	PingTimeout
)

// PingResponse is how the shell reports the outcome of a ping it sent on
// this Instance's behalf, whether a direct SendPing or one relayed through
// a ping-request.
type PingResponse struct {
	Kind           PingResponseKind
	Target         Node
	Incarnation    uint64   // meaningful when Kind == PingAck
	Payload        []Member // meaningful when Kind == PingAck
	SequenceNumber uint64
}

// OnPeriodicPingTick advances the protocol period by one, expires any
// suspicion whose timeout has elapsed, and (if the round-robin queue is
// non-empty) emits a SendPing at the next target.
func (inst *Instance) OnPeriodicPingTick() []Directive {
	var directives []Directive

	peers := make([]Node, 0, len(inst.table.members))
	for p := range inst.table.members {
		peers = append(peers, p)
	}
	for _, peer := range sortNodes(peers) {
		if peer == inst.myself {
			continue
		}
		m := inst.table.members[peer]
		if m.Status.Kind != KindSuspect || m.SuspicionStartedAt == nil {
			continue
		}
		timeout := suspicionTimeout(inst.settings.SuspicionTimeoutMin, inst.settings.SuspicionTimeoutMax, m.suspectedByCount(), inst.settings.MaxIndependentSuspicions)
		if inst.clock() < *m.SuspicionStartedAt+timeout.Nanoseconds() {
			continue
		}

		var next Status
		if inst.settings.ExtensionUnreachability {
			next = Unreachable(m.Status.Incarnation)
		} else {
			next = Dead()
		}
		result := inst.table.mark(peer, next, inst.protocolPeriod)
		if result.applied {
			directives = append(directives, MembershipChanged{
				Peer:     peer,
				Previous: previousPtr(result),
				Current:  result.member.Status,
			})
		}
	}

	if target, ok := inst.table.nextMemberToPing(); ok {
		directives = append(directives, SendPing{
			Target:         target,
			Timeout:        inst.lhm.dynamicPingTimeout(inst.settings.PingTimeout),
			SequenceNumber: inst.nextSequenceNumber(),
		})
	}

	inst.protocolPeriod++
	return directives
}

// OnPing handles an incoming direct ping from pingOrigin: folds the
// attached gossip payload into membership, then acks with a fresh payload
// of its own (buddy-system-aware via makeGossipPayload).
func (inst *Instance) OnPing(pingOrigin Node, payload []Member, sequenceNumber uint64) []Directive {
	directives := inst.foldGossipPayload(payload)

	self := inst.table.members[inst.myself]
	directives = append(directives, SendAck{
		To:             pingOrigin,
		AckTarget:      inst.myself,
		Incarnation:    self.Status.Incarnation,
		Payload:        inst.table.makeGossipPayload(&pingOrigin),
		SequenceNumber: sequenceNumber,
	})
	return directives
}

// OnPingRequest handles an incoming request to probe target on behalf of
// replyTo. If target is this Instance's own peer the request is a no-op;
// an unknown target is provisionally added as alive(0) before the probe is
// issued.
func (inst *Instance) OnPingRequest(target Node, replyTo Node, payload []Member) []Directive {
	directives := inst.foldGossipPayload(payload)

	if target.Equal(inst.myself) {
		return append(directives, Ignore{Reason: "ping-request targeting self"})
	}

	if _, known := inst.table.member(target); !known {
		inst.table.addMember(target, Alive(0), inst.protocolPeriod)
	}

	rt := replyTo
	return append(directives, SendPing{
		Target:         target,
		Timeout:        time.Duration(float64(inst.settings.PingTimeout) * inst.settings.IndirectPingTimeoutMultiplier),
		SequenceNumber: inst.nextSequenceNumber(),
		ReplyTo:        &rt,
	})
}

// OnPingResponse handles the resolution (ack, nack, or timeout) of a ping
// this Instance sent, whether issued directly by OnPeriodicPingTick or on
// behalf of a ping-request (pingRequestOrigin non-nil in the latter case).
func (inst *Instance) OnPingResponse(response PingResponse, pingRequestOrigin *Node) []Directive {
	switch response.Kind {
	case PingAck:
		directives := inst.foldGossipPayload(response.Payload)
		result := inst.table.mark(response.Target, Alive(response.Incarnation), inst.protocolPeriod)
		if result.applied {
			directives = append(directives, MembershipChanged{
				Peer:     response.Target,
				Previous: previousPtr(result),
				Current:  result.member.Status,
			})
		}

		if pingRequestOrigin != nil {
			directives = append(directives, SendAck{
				To:             *pingRequestOrigin,
				AckTarget:      response.Target,
				Incarnation:    response.Incarnation,
				Payload:        response.Payload,
				SequenceNumber: response.SequenceNumber,
			})
		} else {
			inst.lhm.adjust(lhmSuccessfulProbe)
		}
		return directives

	case PingNack:
		// No state change here; the LHM adjustment for a missed nack
		// happens in OnEveryPingRequestResponse, not here.
		return nil

	case PingTimeout:
		if pingRequestOrigin != nil {
			return []Directive{SendNack{
				To:             *pingRequestOrigin,
				AckTarget:      response.Target,
				SequenceNumber: response.SequenceNumber,
			}}
		}

		m, known := inst.table.member(response.Target)
		if !known || m.Status.Kind == KindDead {
			return []Directive{Ignore{Reason: "direct probe timeout for unknown or already-dead peer"}}
		}

		var directives []Directive
		result := inst.table.mark(response.Target, Suspect(m.Status.Incarnation, inst.suspectByWithSelf(m.Status)), inst.protocolPeriod)
		if result.applied {
			directives = append(directives, MembershipChanged{
				Peer:     response.Target,
				Previous: previousPtr(result),
				Current:  result.member.Status,
			})
		}
		inst.lhm.adjust(lhmFailedProbe)
		directives = append(directives, inst.preparePingRequests(response.Target)...)
		return directives
	}
	return nil
}

// preparePingRequests picks up to IndirectProbeCount candidates to probe
// response.Target on this Instance's behalf. When no candidate is
// available it falls back to a direct (already-applied, by this point)
// suspicion and emits nothing further.
func (inst *Instance) preparePingRequests(target Node) []Directive {
	candidates := inst.table.membersToPingRequest(target, inst.settings.IndirectProbeCount)
	if len(candidates) == 0 {
		if m, known := inst.table.member(target); known {
			inst.table.mark(target, Suspect(m.Status.Incarnation, inst.suspectByWithSelf(m.Status)), inst.protocolPeriod)
		}
		return nil
	}

	items := make([]PingRequestItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, PingRequestItem{
			Candidate:      c,
			Payload:        inst.table.makeGossipPayload(&target),
			SequenceNumber: inst.nextSequenceNumber(),
		})
	}
	return []Directive{SendPingRequests{Target: target, Requests: items}}
}

// OnPingRequestResponse reports the outcome of an indirect probe — a reply
// relayed back through a node this Instance asked to ping pingedMember.
func (inst *Instance) OnPingRequestResponse(response PingResponse, pingedMember Node) []Directive {
	m, known := inst.table.member(pingedMember)
	if !known {
		return []Directive{IndirectProbeOutcome{Peer: pingedMember, Outcome: IndirectUnknownMember}}
	}

	switch response.Kind {
	case PingAck:
		directives := inst.foldGossipPayload(response.Payload)
		result := inst.table.mark(pingedMember, Alive(response.Incarnation), inst.protocolPeriod)
		if result.applied {
			directives = append(directives, IndirectProbeOutcome{
				Peer:     pingedMember,
				Outcome:  IndirectAlive,
				Previous: previousPtr(result),
				Current:  result.member.Status,
			})
		} else {
			directives = append(directives, IndirectProbeOutcome{
				Peer:    pingedMember,
				Outcome: IndirectIgnoredOlder,
				Current: result.current,
			})
		}
		return directives

	case PingNack:
		return []Directive{IndirectProbeOutcome{Peer: pingedMember, Outcome: IndirectNackReceived, Current: m.Status}}

	case PingTimeout:
		switch m.Status.Kind {
		case KindAlive, KindSuspect:
			result := inst.table.mark(pingedMember, Suspect(m.Status.Incarnation, inst.suspectByWithSelf(m.Status)), inst.protocolPeriod)
			if result.applied {
				return []Directive{IndirectProbeOutcome{
					Peer:     pingedMember,
					Outcome:  IndirectNewlySuspect,
					Previous: previousPtr(result),
					Current:  result.member.Status,
				}}
			}
			return []Directive{IndirectProbeOutcome{Peer: pingedMember, Outcome: IndirectIgnoredOlder, Current: result.current}}
		case KindUnreachable:
			return []Directive{IndirectProbeOutcome{Peer: pingedMember, Outcome: IndirectAlreadyUnreachable, Current: m.Status}}
		default: // KindDead
			return []Directive{IndirectProbeOutcome{Peer: pingedMember, Outcome: IndirectAlreadyDead, Current: m.Status}}
		}
	}
	return nil
}

// OnEveryPingRequestResponse runs before OnPingRequestResponse on every
// reply to an indirect probe, including nacks and timeouts, and feeds the
// missed-nack LHM signal. It never emits directives of its own.
func (inst *Instance) OnEveryPingRequestResponse(response PingResponse) []Directive {
	if response.Kind == PingTimeout {
		inst.lhm.adjust(lhmProbeWithMissedNack)
	}
	return nil
}

// Join installs peer as a freshly known alive(0) member, the same
// provisional status an unknown ping-request target gets (§4.5's
// OnPingRequest). It is how the shell's admin surface seeds an
// operator-supplied bootstrap address into a running Instance outside
// of the gossip/probe event stream. A peer this Instance already
// supersedes is a no-op.
func (inst *Instance) Join(peer Node) []Directive {
	existing, known := inst.table.member(peer)
	result := inst.table.addMember(peer, Alive(0), inst.protocolPeriod)
	if !result.added {
		return nil
	}
	var previous *Status
	if known {
		p := existing.Status
		previous = &p
	}
	return []Directive{MembershipChanged{Peer: peer, Previous: previous, Current: result.member.Status}}
}

// ConfirmDead promotes peer straight to dead, used by higher layers (an
// operator command, a retention sweep) independent of suspicion expiry. An
// unknown or already-dead peer is a no-op.
func (inst *Instance) ConfirmDead(peer Node) ConfirmDeadResult {
	m, known := inst.table.member(peer)
	if !known || m.Status.Kind == KindDead {
		return ConfirmDeadResult{Peer: peer, Outcome: ConfirmDeadIgnored}
	}

	result := inst.table.mark(peer, Dead(), inst.protocolPeriod)
	if !result.applied {
		return ConfirmDeadResult{Peer: peer, Outcome: ConfirmDeadIgnored}
	}

	change := MembershipChanged{Peer: peer, Previous: previousPtr(result), Current: result.member.Status}
	return ConfirmDeadResult{Peer: peer, Outcome: ConfirmDeadApplied, Change: &change}
}

// --- gossip fold-in (§4.6) ---

// foldGossipPayload dispatches each record in an incoming gossip payload
// to the self-record or other-record handler.
func (inst *Instance) foldGossipPayload(payload []Member) []Directive {
	var directives []Directive
	for _, rec := range payload {
		if inst.myself.Equal(rec.Peer) {
			directives = append(directives, inst.foldSelfRecord(rec)...)
			continue
		}
		directives = append(directives, inst.foldOtherRecord(rec)...)
	}
	return directives
}

func (inst *Instance) foldSelfRecord(rec Member) []Directive {
	switch rec.Status.Kind {
	case KindSuspect:
		return inst.foldSelfSuspectOrUnreachable(rec.Status)
	case KindUnreachable:
		if !inst.settings.ExtensionUnreachability {
			current := inst.table.members[inst.myself].Status
			return []Directive{GossipProcessed{Peer: inst.myself, Outcome: GossipSelfNoop, Current: current}}
		}
		return inst.foldSelfSuspectOrUnreachable(rec.Status)
	case KindDead:
		prev := inst.table.members[inst.myself].Status
		inst.table.members[inst.myself] = newMember(inst.myself, Dead(), inst.protocolPeriod, nil)
		return []Directive{GossipProcessed{Peer: inst.myself, Outcome: GossipApplied, Previous: &prev, Current: Dead()}}
	default: // KindAlive
		current := inst.table.members[inst.myself].Status
		return []Directive{GossipProcessed{Peer: inst.myself, Outcome: GossipSelfNoop, Current: current}}
	}
}

// foldSelfSuspectOrUnreachable implements the incarnation-refutation
// protocol: a suspicion or unreachability report about this Instance's own
// peer, at this Instance's current incarnation, bumps the incarnation and
// rebroadcasts an alive record so the cluster sees the refutation.
func (inst *Instance) foldSelfSuspectOrUnreachable(incoming Status) []Directive {
	current := inst.table.members[inst.myself].Status
	if incoming.Incarnation != current.Incarnation {
		return []Directive{GossipProcessed{Peer: inst.myself, Outcome: GossipSelfNoop, Current: current}}
	}

	prev := current
	inst.incarnation++
	inst.lhm.adjust(lhmRefutingSuspectAboutSelf)
	newStatus := Alive(inst.incarnation)
	inst.table.members[inst.myself] = newMember(inst.myself, newStatus, inst.protocolPeriod, nil)
	inst.table.addToGossip(inst.table.members[inst.myself])

	return []Directive{GossipProcessed{Peer: inst.myself, Outcome: GossipApplied, Previous: &prev, Current: newStatus}}
}

func (inst *Instance) foldOtherRecord(rec Member) []Directive {
	if _, known := inst.table.member(rec.Peer); !known {
		if !rec.Peer.HasUID() {
			return nil
		}
		result := inst.table.addMember(rec.Peer, rec.Status, inst.protocolPeriod)
		if !result.added {
			return nil
		}
		return []Directive{MembershipChanged{Peer: rec.Peer, Previous: nil, Current: result.member.Status}}
	}

	result := inst.table.mark(rec.Peer, rec.Status, inst.protocolPeriod)
	if !result.applied {
		return nil
	}
	return []Directive{MembershipChanged{Peer: rec.Peer, Previous: previousPtr(result), Current: result.member.Status}}
}

// --- small shared helpers ---

func previousPtr(result markResult) *Status {
	if !result.hadPrevious {
		return nil
	}
	p := result.previous
	return &p
}

// suspectByWithSelf builds a SuspectedBy set for a fresh or continuing
// suspicion this Instance itself is raising: its own peer, union any
// SuspectedBy the member already carried.
func (inst *Instance) suspectByWithSelf(existing Status) map[Node]struct{} {
	by := map[Node]struct{}{inst.myself: {}}
	if existing.Kind == KindSuspect {
		for n := range existing.SuspectedBy {
			by[n] = struct{}{}
		}
	}
	return by
}

func (inst *Instance) nextSequenceNumber() uint64 {
	inst.sequenceNumber++
	return inst.sequenceNumber
}
