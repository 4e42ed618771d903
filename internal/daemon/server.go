package daemon

import (
	"context"

	"swimguard/internal/swim"
	"swimguard/internal/transport"
)

// Ping handles an incoming direct or indirect ping: fold the attached
// gossip, then return the ack the Instance's OnPing produced as this
// RPC's synchronous response rather than as a second outgoing call.
func (d *Daemon) Ping(ctx context.Context, in *transport.PingMessage) (*transport.AckMessage, error) {
	d.mu.Lock()
	directives := d.inst.OnPing(transport.FromWireNode(in.From), transport.FromWireMembers(in.Payload), in.SequenceNumber)
	d.mu.Unlock()

	ack, rest := extractSendAck(directives)
	d.drain(rest)

	if ack == nil {
		// OnPing always emits exactly one SendAck; this is unreachable
		// for a conforming Instance, but an empty ack keeps the RPC
		// contract well-defined rather than returning a nil pointer.
		return &transport.AckMessage{From: transport.ToWireNode(d.inst.Self())}, nil
	}
	return &transport.AckMessage{
		From:           transport.ToWireNode(d.inst.Self()),
		AckTarget:      transport.ToWireNode(ack.AckTarget),
		Incarnation:    ack.Incarnation,
		Payload:        transport.ToWireMembers(ack.Payload),
		SequenceNumber: ack.SequenceNumber,
	}, nil
}

// extractSendAck pulls the (expected, exactly one) SendAck directive out
// of a directive list, returning the rest unchanged for normal draining.
func extractSendAck(directives []swim.Directive) (*swim.SendAck, []swim.Directive) {
	var ack *swim.SendAck
	rest := make([]swim.Directive, 0, len(directives))
	for _, dir := range directives {
		if a, ok := dir.(swim.SendAck); ok && ack == nil {
			v := a
			ack = &v
			continue
		}
		rest = append(rest, dir)
	}
	return ack, rest
}

// PingRequest handles an incoming request to probe Target on ReplyTo's
// behalf. It is fire-and-forget on the wire (transport.Empty response);
// the resulting probe and its eventual Ack/Nack relay run in the
// background.
func (d *Daemon) PingRequest(ctx context.Context, in *transport.PingRequestMessage) (*transport.Empty, error) {
	d.mu.Lock()
	directives := d.inst.OnPingRequest(transport.FromWireNode(in.Target), transport.FromWireNode(in.ReplyTo), transport.FromWireMembers(in.Payload))
	d.mu.Unlock()
	d.drain(directives)
	return &transport.Empty{}, nil
}

// Ack handles the relay of an indirect probe's successful result: a
// candidate this daemon asked to ping pingedMember reporting back via
// SequenceNumber.
func (d *Daemon) Ack(ctx context.Context, in *transport.AckMessage) (*transport.Empty, error) {
	d.resolveIndirect(in.SequenceNumber, swim.PingResponse{
		Kind:           swim.PingAck,
		Incarnation:    in.Incarnation,
		Payload:        transport.FromWireMembers(in.Payload),
		SequenceNumber: in.SequenceNumber,
	})
	return &transport.Empty{}, nil
}

// Nack handles the relay of a negative or timed-out indirect probe
// result.
func (d *Daemon) Nack(ctx context.Context, in *transport.NackMessage) (*transport.Empty, error) {
	d.resolveIndirect(in.SequenceNumber, swim.PingResponse{
		Kind:           swim.PingNack,
		SequenceNumber: in.SequenceNumber,
	})
	return &transport.Empty{}, nil
}

// --- admin / debug service ---

// GetMembership returns every member record this node currently holds.
func (d *Daemon) GetMembership(ctx context.Context, _ *transport.Empty) (*transport.MembershipSnapshot, error) {
	d.mu.Lock()
	members := d.inst.Members()
	self := d.inst.Self()
	d.mu.Unlock()

	out := make([]transport.WireMember, 0, len(members))
	for _, m := range members {
		out = append(out, transport.WireMember{
			Peer:   transport.ToWireNode(m.Peer),
			Status: transport.ToWireStatus(m.Status),
		})
	}
	return &transport.MembershipSnapshot{
		Self:    transport.ToWireNode(self),
		Members: out,
	}, nil
}

// Join adds an operator-supplied bootstrap peer to the membership table
// as a fresh alive(0) record, the same provisional status OnPingRequest
// gives a not-yet-known target.
func (d *Daemon) Join(ctx context.Context, in *transport.JoinRequest) (*transport.Empty, error) {
	peer := transport.FromWireNode(in.Peer)
	d.mu.Lock()
	directives := d.inst.Join(peer)
	d.mu.Unlock()
	d.drain(directives)
	return &transport.Empty{}, nil
}

// Health reports a coarse liveness summary for a readiness probe.
func (d *Daemon) Health(ctx context.Context, _ *transport.Empty) (*transport.HealthStatus, error) {
	d.mu.Lock()
	members := d.inst.Members()
	lhm := d.inst.LHM()
	period := d.inst.ProtocolPeriod()
	d.mu.Unlock()

	status := &transport.HealthStatus{LocalHealth: lhm, ProtocolPeriod: period}
	for _, m := range members {
		switch m.Status.Kind {
		case swim.KindAlive:
			status.AliveCount++
		case swim.KindSuspect:
			status.SuspectCount++
		case swim.KindUnreachable:
			status.UnreachableCount++
		case swim.KindDead:
			status.DeadCount++
		}
	}
	return status, nil
}

// ConfirmDead promotes peer straight to dead (spec.md §1's "external
// confirm dead command" input event), independent of suspicion-timeout
// expiry.
func (d *Daemon) ConfirmDead(ctx context.Context, in *transport.ConfirmDeadRequest) (*transport.ConfirmDeadReply, error) {
	peer := transport.FromWireNode(in.Peer)
	d.mu.Lock()
	result := d.inst.ConfirmDead(peer)
	d.mu.Unlock()

	if result.Outcome == swim.ConfirmDeadApplied && result.Change != nil {
		d.drain([]swim.Directive{*result.Change})
	} else {
		d.observe(swim.Ignore{Reason: "confirm-dead on unknown or already-dead peer"})
	}
	return &transport.ConfirmDeadReply{Applied: result.Outcome == swim.ConfirmDeadApplied}, nil
}
