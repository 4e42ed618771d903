package swim

import "time"

// Directive is an instruction the Instance hands back to the shell after
// processing one event. The Instance performs no I/O, spawns no tasks, and
// never sleeps: every externally visible effect travels through a
// Directive, in the order the handler produced it.
type Directive interface {
	isDirective()
}

// SendPing asks the shell to send a direct ping to Target and arm a timer
// for Timeout, delivering a PingResponse with Kind PingTimeout back to this
// Instance's OnPingResponse if nothing arrives before it fires.
type SendPing struct {
	Target         Node
	Timeout        time.Duration
	SequenceNumber uint64
	// ReplyTo is set only when this ping is issued on behalf of a
	// ping-request: the shell must remember it and pass it back as the
	// pingRequestOrigin argument to OnPingResponse once a reply (or a
	// synthesized timeout) arrives for SequenceNumber.
	ReplyTo *Node
}

func (SendPing) isDirective() {}

// SendAck asks the shell to send an ack about AckTarget (at Incarnation,
// carrying Payload) to To, acknowledging SequenceNumber. When AckTarget
// equals the Instance's own peer this is a direct reply to an incoming
// ping; when it differs, this is the relay of an indirect probe's result
// back to the node that issued the ping-request.
type SendAck struct {
	To             Node
	AckTarget      Node
	Incarnation    uint64
	Payload        []Member
	SequenceNumber uint64
}

func (SendAck) isDirective() {}

// SendNack asks the shell to relay a negative or timed-out result about
// AckTarget back to To, acknowledging SequenceNumber.
type SendNack struct {
	To             Node
	AckTarget      Node
	SequenceNumber uint64
}

func (SendNack) isDirective() {}

// PingRequestItem is one outgoing ping-request, part of a
// SendPingRequests directive.
type PingRequestItem struct {
	Candidate      Node
	Payload        []Member
	SequenceNumber uint64
}

// SendPingRequests asks the shell to ask each item's Candidate to ping
// Target on this Instance's behalf and relay the result back.
type SendPingRequests struct {
	Target   Node
	Requests []PingRequestItem
}

func (SendPingRequests) isDirective() {}

// MembershipChanged reports a status transition for Peer driven directly by
// an event handler: a probe timeout or ack, a suspicion expiry, a gossip
// record about another peer, a Join, or a confirmDead call. A refutation
// about this Instance's own peer is reported as GossipProcessed instead.
// Previous is nil when Peer was not previously a member.
type MembershipChanged struct {
	Peer     Node
	Previous *Status
	Current  Status
}

func (MembershipChanged) isDirective() {}

// GossipOutcomeKind tags what happened to one record folded in from an
// incoming gossip payload (§4.6).
type GossipOutcomeKind int

const (
	// GossipApplied means the record was installed, possibly creating a
	// new member.
	GossipApplied GossipOutcomeKind = iota
	// GossipIgnoredOlder means the record was strictly older information
	// than what this Instance already held.
	GossipIgnoredOlder
	// GossipIgnoredNoUID means a not-yet-known peer was reported with no
	// UID, so it was not installed: a concrete identity is required to
	// add a new peer.
	GossipIgnoredNoUID
	// GossipSelfNoop means the record was about this Instance's own peer
	// and required no action (an alive record, or a suspicion/
	// unreachability at a stale or future incarnation).
	GossipSelfNoop
)

// GossipProcessed reports what happened to one gossip record about this
// Instance's own peer. A record about another peer that changes the table
// is reported as MembershipChanged; one that changes nothing (older
// information, or an unknown peer with no UID) produces no directive.
type GossipProcessed struct {
	Peer     Node
	Outcome  GossipOutcomeKind
	Previous *Status
	Current  Status
}

func (GossipProcessed) isDirective() {}

// Ignore is a no-op marker: the event required no action (a ping-request
// targeting self, or a direct probe timeout for an unknown or already-dead
// peer). A plain nack response returns no directive at all, and a no-op
// confirmDead is reported as ConfirmDeadResult with ConfirmDeadIgnored.
type Ignore struct {
	Reason string
}

func (Ignore) isDirective() {}

// IndirectProbeOutcomeKind tags the result categories of
// onPingRequestResponse: the outcome of an indirect probe, as observed by
// the node that issued the ping-requests.
type IndirectProbeOutcomeKind int

const (
	IndirectUnknownMember IndirectProbeOutcomeKind = iota
	IndirectAlive
	IndirectIgnoredOlder
	IndirectNackReceived
	IndirectNewlySuspect
	IndirectAlreadyUnreachable
	IndirectAlreadyDead
)

// IndirectProbeOutcome reports the result of one indirect probe response.
type IndirectProbeOutcome struct {
	Peer     Node
	Outcome  IndirectProbeOutcomeKind
	Previous *Status
	Current  Status
}

func (IndirectProbeOutcome) isDirective() {}

// ConfirmDeadOutcomeKind tags the result of a confirmDead call.
type ConfirmDeadOutcomeKind int

const (
	ConfirmDeadApplied ConfirmDeadOutcomeKind = iota
	ConfirmDeadIgnored
)

// ConfirmDeadResult reports the outcome of a confirmDead call.
type ConfirmDeadResult struct {
	Peer    Node
	Outcome ConfirmDeadOutcomeKind
	Change  *MembershipChanged
}

func (ConfirmDeadResult) isDirective() {}
