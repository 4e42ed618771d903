package swim

import (
	"math/rand"

	"swimguard/internal/clock"
)

// table owns the authoritative member records, the round-robin ping
// selector, and the gossip dissemination heap. It is the Instance's only
// mutable state besides incarnation/LHM bookkeeping; every method here is a
// direct translation of spec §4.1 and §4.4.
type table struct {
	self  Node
	clock clock.Source
	rng   *rand.Rand

	settings *Settings

	members       map[Node]Member
	membersToPing []Node
	pingIndex     int

	gossip *gossipHeap
}

func newTable(self Node, selfStatus Status, protocolPeriod uint64, c clock.Source, rng *rand.Rand, settings *Settings) *table {
	t := &table{
		self:     self,
		clock:    c,
		rng:      rng,
		settings: settings,
		members:  make(map[Node]Member),
		gossip:   newGossipHeap(),
	}
	t.members[self] = newMember(self, selfStatus, protocolPeriod, nil)
	return t
}

func (t *table) member(peer Node) (Member, bool) {
	m, ok := t.members[peer]
	return m, ok
}

func (t *table) clusterSize() int {
	return len(t.members)
}

func (t *table) inPingQueue(peer Node) bool {
	for _, p := range t.membersToPing {
		if p == peer {
			return true
		}
	}
	return false
}

// insertIntoPingQueue inserts peer at a uniformly random index in
// [0, len(membersToPing)], advancing pingIndex by one if the queue was
// non-empty and the insertion index falls at or before it.
func (t *table) insertIntoPingQueue(peer Node) {
	n := len(t.membersToPing)
	idx := t.rng.Intn(n + 1)
	t.membersToPing = append(t.membersToPing, Node{})
	copy(t.membersToPing[idx+1:], t.membersToPing[idx:n])
	t.membersToPing[idx] = peer
	if n > 0 && idx <= t.pingIndex {
		t.pingIndex++
	}
}

// removeFromMembersToPing removes any queue entry whose endpoint matches
// peer's, adjusting pingIndex to preserve round-robin fairness.
func (t *table) removeFromMembersToPing(peer Node) {
	idx := -1
	for i, p := range t.membersToPing {
		if p.Endpoint == peer.Endpoint {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	t.membersToPing = append(t.membersToPing[:idx], t.membersToPing[idx+1:]...)
	if idx < t.pingIndex {
		t.pingIndex--
	}
	if len(t.membersToPing) == 0 {
		t.pingIndex = 0
	} else if t.pingIndex >= len(t.membersToPing) {
		t.pingIndex = 0
	}
}

// removeMemberRecord deletes peer's record entirely: both the member map
// entry and any membersToPing/gossip presence. Used only when a UID-less
// alias is superseded by a fully identified record for the same endpoint.
func (t *table) removeMemberRecord(peer Node) {
	delete(t.members, peer)
	t.removeFromMembersToPing(peer)
	t.gossip.removeByPeer(peer)
}

// addMemberResult reports the outcome of addMember.
type addMemberResult struct {
	added    bool
	member   Member
	existing Status // valid when !added
}

// addMember installs a brand-new peer record, or refreshes one already
// superseded by the incoming status. If an existing entry supersedes the
// incoming status, the call is a no-op reporting newerAlreadyPresent.
func (t *table) addMember(peer Node, status Status, protocolPeriod uint64) addMemberResult {
	if status.Kind == KindSuspect {
		status = Suspect(status.Incarnation, mergeSuspicions(status.SuspectedBy, nil, t.settings.MaxIndependentSuspicions))
	}
	if existing, ok := t.members[peer]; ok {
		if supersedes(existing.Status, status) {
			return addMemberResult{added: false, existing: existing.Status}
		}
	}

	if peer.HasUID() {
		for other := range t.members {
			if !other.HasUID() && other.Endpoint == peer.Endpoint {
				t.removeMemberRecord(other)
				break
			}
		}
	}

	var suspicionStartedAt *int64
	if status.Kind == KindSuspect {
		now := t.clock()
		suspicionStartedAt = &now
	}
	member := newMember(peer, status, protocolPeriod, suspicionStartedAt)
	_, wasKnown := t.members[peer]
	t.members[peer] = member

	if !wasKnown && peer != t.self && !t.inPingQueue(peer) {
		t.insertIntoPingQueue(peer)
	}
	t.resetGossipPayloads()

	return addMemberResult{added: true, member: member}
}

// markResult reports the outcome of mark.
type markResult struct {
	applied     bool
	hadPrevious bool
	previous    Status // valid when applied && hadPrevious
	member      Member // valid when applied
	current     Status // valid when !applied: the status that won
}

// mark folds an observed status for an already-known peer into the table,
// applying the suspect-merge and unreachability-demotion rules of §4.1
// before comparing against the existing record via supersedes.
func (t *table) mark(peer Node, incoming Status, protocolPeriod uint64) markResult {
	existing, exists := t.members[peer]

	effective := incoming
	var suspicionStartedAt *int64
	protocolStamp := protocolPeriod
	if exists {
		suspicionStartedAt = existing.SuspicionStartedAt
	}

	switch {
	case incoming.Kind == KindSuspect && exists && existing.Status.Kind == KindSuspect && existing.Status.Incarnation == incoming.Incarnation:
		merged := mergeSuspicions(incoming.SuspectedBy, existing.Status.SuspectedBy, t.settings.MaxIndependentSuspicions)
		effective = Suspect(incoming.Incarnation, merged)
		protocolStamp = existing.ProtocolPeriodStamp
	case incoming.Kind == KindSuspect:
		effective = Suspect(incoming.Incarnation, mergeSuspicions(incoming.SuspectedBy, nil, t.settings.MaxIndependentSuspicions))
		now := t.clock()
		suspicionStartedAt = &now
	case incoming.Kind == KindUnreachable && !t.settings.ExtensionUnreachability:
		effective = Dead()
	}

	if exists && supersedes(existing.Status, effective) {
		return markResult{applied: false, current: existing.Status}
	}

	member := newMember(peer, effective, protocolStamp, suspicionStartedAt)
	t.members[peer] = member

	if effective.Kind == KindDead {
		t.removeFromMembersToPing(peer)
	}
	t.resetGossipPayloads()

	if exists {
		return markResult{applied: true, hadPrevious: true, previous: existing.Status, member: member}
	}
	return markResult{applied: true, member: member}
}

// nextMemberToPing returns the next round-robin ping target, wrapping the
// cursor back to zero once the queue is exhausted.
func (t *table) nextMemberToPing() (Node, bool) {
	if len(t.membersToPing) == 0 {
		return Node{}, false
	}
	peer := t.membersToPing[t.pingIndex]
	t.pingIndex = (t.pingIndex + 1) % len(t.membersToPing)
	return peer, true
}

// membersToPingRequest picks up to k distinct alive-or-suspect members,
// excluding target and self, as indirect-probe candidates. Selection order
// is seeded off t.rng, so it is reproducible given the same rng state.
func (t *table) membersToPingRequest(target Node, k int) []Node {
	candidates := make([]Node, 0, len(t.members))
	for peer, m := range t.members {
		if peer == target || peer == t.self {
			continue
		}
		if m.Status.Kind == KindAlive || m.Status.Kind == KindSuspect {
			candidates = append(candidates, peer)
		}
	}
	candidates = sortNodes(candidates)
	t.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// addToGossip enqueues member for dissemination at timesGossiped = 0,
// displacing any pending entry for the same peer.
func (t *table) addToGossip(member Member) {
	t.gossip.add(member)
}

// resetGossipPayloads rebuilds the dissemination heap from scratch: every
// current member record re-enters at timesGossiped = 0. Called whenever a
// status is newly installed, so the freshest view of the table always gets
// redistributed in full.
func (t *table) resetGossipPayloads() {
	t.gossip = newGossipHeap()
	peers := make([]Node, 0, len(t.members))
	for peer := range t.members {
		peers = append(peers, peer)
	}
	for _, peer := range sortNodes(peers) {
		t.gossip.add(t.members[peer])
	}
}

// makeGossipPayload assembles up to MaxMessagesPerGossip records to attach
// to an outgoing message. When target is non-nil and currently suspect,
// its record is always prepended (Lifeguard's buddy system: a suspect that
// receives the payload learns of its own suspicion and can refute it),
// even if the dissemination heap itself is empty.
func (t *table) makeGossipPayload(target *Node) []Member {
	var payload []Member
	var prepended *Node

	if target != nil {
		if m, ok := t.members[*target]; ok && m.Status.Kind == KindSuspect {
			payload = append(payload, m.clone())
			prepended = target
		}
	}

	if t.gossip.Len() == 0 && prepended == nil {
		if self, ok := t.members[t.self]; ok {
			return []Member{self.clone()}
		}
		return payload
	}

	clusterSize := t.clusterSize()
	max := t.settings.MaxMessagesPerGossip
	drained := make([]*gossipEntry, 0, max)
	for len(drained) < max {
		e, ok := t.gossip.popLeastGossiped()
		if !ok {
			break
		}
		drained = append(drained, e)
	}

	for _, e := range drained {
		if prepended != nil && e.member.Peer == *prepended {
			continue
		}
		e.timesGossiped++
		payload = append(payload, e.member.clone())
		if t.settings.NeedsToBeGossipedMoreTimes(e.timesGossiped, clusterSize) {
			t.gossip.reinsert(e)
		}
	}

	return payload
}
