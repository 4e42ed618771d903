package transport

import "swimguard/internal/swim"

// The wire types below are gob-encodable mirrors of the swim package's
// value types. The Instance's own types are never registered with gob
// directly (Status carries an interface-free map, which gob handles fine,
// but keeping the wire format as its own explicit type means a change to
// swim's internals can never silently change the bytes on the wire).

// WireNode mirrors swim.Node.
type WireNode struct {
	Endpoint string
	UID      string
}

// ToWireNode converts a swim.Node to its wire form.
func ToWireNode(n swim.Node) WireNode {
	return WireNode{Endpoint: n.Endpoint, UID: n.UID}
}

// FromWireNode converts a wire node back to a swim.Node.
func FromWireNode(n WireNode) swim.Node {
	return swim.Node{Endpoint: n.Endpoint, UID: n.UID}
}

// WireStatus mirrors swim.Status.
type WireStatus struct {
	Kind        int
	Incarnation uint64
	SuspectedBy []WireNode
}

// ToWireStatus converts a swim.Status to its wire form.
func ToWireStatus(s swim.Status) WireStatus {
	w := WireStatus{Kind: int(s.Kind), Incarnation: s.Incarnation}
	for n := range s.SuspectedBy {
		w.SuspectedBy = append(w.SuspectedBy, ToWireNode(n))
	}
	return w
}

// FromWireStatus converts a wire status back to a swim.Status.
func FromWireStatus(w WireStatus) swim.Status {
	s := swim.Status{Kind: swim.Kind(w.Kind), Incarnation: w.Incarnation}
	if len(w.SuspectedBy) > 0 {
		s.SuspectedBy = make(map[swim.Node]struct{}, len(w.SuspectedBy))
		for _, n := range w.SuspectedBy {
			s.SuspectedBy[FromWireNode(n)] = struct{}{}
		}
	}
	return s
}

// WireMember mirrors the fields of swim.Member that travel over the wire:
// a gossip payload entry carries only peer identity and status, never the
// receiving node's local bookkeeping (protocol-period stamp, suspicion
// start time).
type WireMember struct {
	Peer   WireNode
	Status WireStatus
}

// ToWireMembers converts a slice of swim.Member to their wire form.
func ToWireMembers(members []swim.Member) []WireMember {
	out := make([]WireMember, len(members))
	for i, m := range members {
		out[i] = WireMember{Peer: ToWireNode(m.Peer), Status: ToWireStatus(m.Status)}
	}
	return out
}

// FromWireMembers converts a slice of wire members back to swim.Member.
func FromWireMembers(members []WireMember) []swim.Member {
	out := make([]swim.Member, len(members))
	for i, m := range members {
		out[i] = swim.Member{Peer: FromWireNode(m.Peer), Status: FromWireStatus(m.Status)}
	}
	return out
}

// PingMessage is the body of an outgoing direct or indirect ping.
type PingMessage struct {
	From           WireNode
	Payload        []WireMember
	SequenceNumber uint64
}

// AckMessage is both a direct ack and the relay of an indirect probe's
// successful result: AckTarget identifies whose aliveness is being
// reported, which may differ from From when relaying.
type AckMessage struct {
	From           WireNode
	AckTarget      WireNode
	Incarnation    uint64
	Payload        []WireMember
	SequenceNumber uint64
}

// NackMessage relays a negative or timed-out indirect probe result.
type NackMessage struct {
	From           WireNode
	AckTarget      WireNode
	SequenceNumber uint64
}

// PingRequestMessage asks the receiver to probe Target on ReplyTo's
// behalf. The RPC itself is fire-and-forget: the eventual result travels
// back as a separate Ack/Nack call to ReplyTo, not as this call's return
// value, mirroring how the Instance models it (SendPingRequests and
// SendAck/SendNack are independent directives).
type PingRequestMessage struct {
	Target         WireNode
	ReplyTo        WireNode
	Payload        []WireMember
	SequenceNumber uint64
}

// Empty is the trivial response for fire-and-forget RPCs.
type Empty struct{}
