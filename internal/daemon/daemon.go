package daemon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"swimguard/internal/metrics"
	"swimguard/internal/swim"
	"swimguard/internal/transport"
)

// Daemon drains a swim.Instance: it owns the periodic tick, dials peers
// to execute SendPing/SendAck/SendNack/SendPingRequests directives, and
// implements both the SWIM wire service and the admin/debug service. The
// Instance it wraps is the only piece of state this package does not
// invent: everything here exists to serialize events into it (spec.md
// §5: "the shell serializes all event deliveries into the Instance") and
// carry out what it returns.
type Daemon struct {
	inst    *swim.Instance
	mu      sync.Mutex // serializes all Instance event delivery
	dialer  peerDialer
	metrics *metrics.Recorder
	log     *logrus.Entry

	grpcServer *grpc.Server
	listenAddr string

	resetTick chan struct{}
	stop      chan struct{}
	wg        sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[uint64]*pendingRelay
}

// pendingRelay tracks one outstanding indirect-probe relay: this daemon
// asked candidatePeer to ping pingedMember on its behalf (a
// SendPingRequests item) and is waiting for an Ack/Nack RPC carrying
// sequenceNumber, or for timer to fire first.
type pendingRelay struct {
	pingedMember swim.Node
	timer        *time.Timer
}

// New constructs a Daemon around inst, dialing peers through dialer and
// recording metrics through rec. log carries any fields the caller wants
// attached to every line (e.g. the node's own UID).
func New(inst *swim.Instance, dialer *transport.Dialer, rec *metrics.Recorder, log *logrus.Entry, listenAddr string) *Daemon {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Daemon{
		inst:       inst,
		dialer:     newDialerAdapter(dialer),
		metrics:    rec,
		log:        log.WithField("peer", inst.Self().Endpoint),
		listenAddr: listenAddr,
		resetTick:  make(chan struct{}, 1),
		stop:       make(chan struct{}),
		pending:    make(map[uint64]*pendingRelay),
	}
}

// Start listens on the daemon's configured address, registers the SWIM
// and admin gRPC services plus reflection (mirroring the teacher's
// node.Node.Start, which registers kvstorepb services the same way), and
// launches the periodic tick loop. It blocks until Stop is called or
// Serve returns an error.
func (d *Daemon) Start() error {
	lis, err := net.Listen("tcp", d.listenAddr)
	if err != nil {
		return fmt.Errorf("daemon: listen on %s: %w", d.listenAddr, err)
	}

	d.grpcServer = grpc.NewServer()
	transport.RegisterSWIMServer(d.grpcServer, d)
	transport.RegisterAdminServer(d.grpcServer, d)
	reflection.Register(d.grpcServer)

	d.wg.Add(1)
	go d.tickLoop()

	d.log.WithField("listen_addr", d.listenAddr).Info("swim daemon starting")
	if err := d.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("daemon: serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the gRPC server and the tick loop.
func (d *Daemon) Stop() {
	close(d.stop)
	d.wg.Wait()
	if d.grpcServer != nil {
		d.grpcServer.GracefulStop()
	}
	d.pendingMu.Lock()
	for _, p := range d.pending {
		p.timer.Stop()
	}
	d.pendingMu.Unlock()
}

// tickLoop drives OnPeriodicPingTick at the Instance's current dynamic
// probe interval, re-reading that interval after every tick (and
// whenever nudged by a handler that may have just changed the LHM) so a
// busy node slows its own probing per Lifeguard's design.
func (d *Daemon) tickLoop() {
	defer d.wg.Done()
	timer := time.NewTimer(d.currentProbeInterval())
	defer timer.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-d.resetTick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.currentProbeInterval())
		case <-timer.C:
			d.mu.Lock()
			directives := d.inst.OnPeriodicPingTick()
			d.mu.Unlock()
			d.drain(directives)
			timer.Reset(d.currentProbeInterval())
		}
	}
}

func (d *Daemon) currentProbeInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inst.DynamicProbeInterval()
}

// nudgeTick asks the tick loop to recompute its interval immediately,
// for the case an RPC handler (not the tick itself) just changed the
// LHM — e.g. a successful ack or a refutation arriving out of band.
func (d *Daemon) nudgeTick() {
	select {
	case d.resetTick <- struct{}{}:
	default:
	}
}

// --- directive draining ---

// drain executes every directive's side effect in order (spec.md §5:
// "Directives within a single returned list must be acted upon in
// order"). Directives whose effect is a network send are dispatched onto
// their own goroutine so the caller (the tick loop, or an RPC handler)
// is never blocked on a peer's reply; everything else is handled inline.
func (d *Daemon) drain(directives []swim.Directive) {
	for _, dir := range directives {
		d.observe(dir)
		switch v := dir.(type) {
		case swim.SendPing:
			go d.doSendPing(v)
		case swim.SendAck:
			go d.doSendAck(v)
		case swim.SendNack:
			go d.doSendNack(v)
		case swim.SendPingRequests:
			for _, item := range v.Requests {
				go d.doSendPingRequest(v.Target, item)
			}
		}
	}
	d.nudgeTick()
	d.sampleMembership()
}

// observe logs and counts every directive kind, independent of whether
// it also carries a network side effect.
func (d *Daemon) observe(dir swim.Directive) {
	kind := directiveKind(dir)
	if d.metrics != nil {
		d.metrics.RecordDirective(kind)
	}
	switch v := dir.(type) {
	case swim.MembershipChanged:
		d.log.WithFields(logrus.Fields{
			"target":          v.Peer.Endpoint,
			"status":          v.Current.Kind.String(),
			"incarnation":     v.Current.Incarnation,
			"protocol_period": d.inst.ProtocolPeriod(),
		}).Info("membership changed")
	case swim.GossipProcessed:
		if v.Outcome == swim.GossipApplied {
			d.log.WithFields(logrus.Fields{
				"target": v.Peer.Endpoint,
				"status": v.Current.Kind.String(),
			}).Debug("gossip applied")
		}
	case swim.IndirectProbeOutcome:
		d.log.WithFields(logrus.Fields{
			"target":  v.Peer.Endpoint,
			"outcome": v.Outcome,
		}).Debug("indirect probe outcome")
	case swim.Ignore:
		d.log.WithField("reason", v.Reason).Debug("ignored event")
	}
}

func directiveKind(dir swim.Directive) string {
	switch dir.(type) {
	case swim.SendPing:
		return "send_ping"
	case swim.SendAck:
		return "send_ack"
	case swim.SendNack:
		return "send_nack"
	case swim.SendPingRequests:
		return "send_ping_requests"
	case swim.MembershipChanged:
		return "membership_changed"
	case swim.GossipProcessed:
		return "gossip_processed"
	case swim.IndirectProbeOutcome:
		return "indirect_probe_outcome"
	case swim.Ignore:
		return "ignore"
	case swim.ConfirmDeadResult:
		return "confirm_dead_result"
	default:
		return "unknown"
	}
}

func (d *Daemon) sampleMembership() {
	if d.metrics == nil {
		return
	}
	d.mu.Lock()
	members := d.inst.Members()
	lhm := d.inst.LHM()
	period := d.inst.ProtocolPeriod()
	incarnation := d.inst.Incarnation()
	d.mu.Unlock()

	var counts metrics.MemberCounts
	for _, m := range members {
		switch m.Status.Kind {
		case swim.KindAlive:
			counts.Alive++
		case swim.KindSuspect:
			counts.Suspect++
		case swim.KindUnreachable:
			counts.Unreachable++
		case swim.KindDead:
			counts.Dead++
		}
	}
	d.metrics.SampleMembership(counts, lhm, period, incarnation)
}

// --- outgoing RPCs executing directives ---

func (d *Daemon) doSendPing(dir swim.SendPing) {
	client, err := d.dialer.SWIMClientFor(dir.Target.Endpoint)
	if err != nil {
		d.log.WithError(err).WithField("target", dir.Target.Endpoint).Warn("dial failed for ping")
		d.resolvePing(dir, swim.PingResponse{Kind: swim.PingTimeout, Target: dir.Target, SequenceNumber: dir.SequenceNumber})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dir.Timeout)
	defer cancel()

	// A bare SendPing carries no payload of its own: spec.md's directive
	// surface only attaches a gossip payload to acks (OnPing's SendAck)
	// and ping-requests (preparePingRequests); this call mirrors that.
	ack, err := client.Ping(ctx, &transport.PingMessage{
		From:           transport.ToWireNode(d.inst.Self()),
		SequenceNumber: dir.SequenceNumber,
	})
	if err != nil {
		d.resolvePing(dir, swim.PingResponse{Kind: swim.PingTimeout, Target: dir.Target, SequenceNumber: dir.SequenceNumber})
		return
	}

	d.resolvePing(dir, swim.PingResponse{
		Kind:           swim.PingAck,
		Target:         dir.Target,
		Incarnation:    ack.Incarnation,
		Payload:        transport.FromWireMembers(ack.Payload),
		SequenceNumber: dir.SequenceNumber,
	})
}

// resolvePing feeds a ping's outcome back into the Instance as
// OnPingResponse, passing ReplyTo through as the pingRequestOrigin
// argument exactly when this ping was issued on this daemon's behalf by
// a ping-request (spec.md §4.5: "SendPing.ReplyTo ... the shell must
// remember it and pass it back as the pingRequestOrigin argument").
func (d *Daemon) resolvePing(dir swim.SendPing, response swim.PingResponse) {
	d.mu.Lock()
	directives := d.inst.OnPingResponse(response, dir.ReplyTo)
	d.mu.Unlock()
	d.drain(directives)
}

func (d *Daemon) doSendAck(dir swim.SendAck) {
	client, err := d.dialer.SWIMClientFor(dir.To.Endpoint)
	if err != nil {
		d.log.WithError(err).WithField("to", dir.To.Endpoint).Warn("dial failed for ack relay")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialRPCTimeout)
	defer cancel()
	_, err = client.Ack(ctx, &transport.AckMessage{
		From:           transport.ToWireNode(d.inst.Self()),
		AckTarget:      transport.ToWireNode(dir.AckTarget),
		Incarnation:    dir.Incarnation,
		Payload:        transport.ToWireMembers(dir.Payload),
		SequenceNumber: dir.SequenceNumber,
	})
	if err != nil {
		d.log.WithError(err).WithField("to", dir.To.Endpoint).Warn("ack relay failed")
	}
}

func (d *Daemon) doSendNack(dir swim.SendNack) {
	client, err := d.dialer.SWIMClientFor(dir.To.Endpoint)
	if err != nil {
		d.log.WithError(err).WithField("to", dir.To.Endpoint).Warn("dial failed for nack relay")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialRPCTimeout)
	defer cancel()
	_, err = client.Nack(ctx, &transport.NackMessage{
		From:           transport.ToWireNode(d.inst.Self()),
		AckTarget:      transport.ToWireNode(dir.AckTarget),
		SequenceNumber: dir.SequenceNumber,
	})
	if err != nil {
		d.log.WithError(err).WithField("to", dir.To.Endpoint).Warn("nack relay failed")
	}
}

// doSendPingRequest asks candidate to ping target on this daemon's
// behalf (fire-and-forget, per transport.PingRequestMessage's doc
// comment) and registers a pending relay so the eventual Ack/Nack (or a
// timeout if neither arrives) resolves via OnEveryPingRequestResponse +
// OnPingRequestResponse.
func (d *Daemon) doSendPingRequest(target swim.Node, item swim.PingRequestItem) {
	// Register the pending relay before attempting to dial, so that a
	// dial failure below resolves through the same timeout path as a
	// candidate that never replies, rather than finding nothing in
	// d.pending and silently dropping the outcome.
	timeout := d.currentPingTimeout()
	timer := time.AfterFunc(timeout, func() {
		d.resolveIndirect(item.SequenceNumber, swim.PingResponse{Kind: swim.PingTimeout, Target: target, SequenceNumber: item.SequenceNumber})
	})
	d.pendingMu.Lock()
	d.pending[item.SequenceNumber] = &pendingRelay{pingedMember: target, timer: timer}
	d.pendingMu.Unlock()

	client, err := d.dialer.SWIMClientFor(item.Candidate.Endpoint)
	if err != nil {
		d.log.WithError(err).WithField("candidate", item.Candidate.Endpoint).Warn("dial failed for ping-request")
		d.resolveIndirect(item.SequenceNumber, swim.PingResponse{Kind: swim.PingTimeout, Target: target, SequenceNumber: item.SequenceNumber})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialRPCTimeout)
	defer cancel()
	_, err = client.PingRequest(ctx, &transport.PingRequestMessage{
		Target:         transport.ToWireNode(target),
		ReplyTo:        transport.ToWireNode(d.inst.Self()),
		Payload:        transport.ToWireMembers(item.Payload),
		SequenceNumber: item.SequenceNumber,
	})
	if err != nil {
		d.log.WithError(err).WithField("candidate", item.Candidate.Endpoint).Warn("ping-request send failed")
		d.resolveIndirect(item.SequenceNumber, swim.PingResponse{Kind: swim.PingTimeout, Target: target, SequenceNumber: item.SequenceNumber})
	}
}

func (d *Daemon) currentPingTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inst.DynamicPingTimeout()
}

// resolveIndirect pops the pending relay for sequenceNumber (idempotent:
// a late Ack/Nack racing the timer, or vice versa, resolves exactly
// once) and feeds response into OnEveryPingRequestResponse followed by
// OnPingRequestResponse.
func (d *Daemon) resolveIndirect(sequenceNumber uint64, response swim.PingResponse) {
	d.pendingMu.Lock()
	p, ok := d.pending[sequenceNumber]
	if ok {
		delete(d.pending, sequenceNumber)
	}
	d.pendingMu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	response.Target = p.pingedMember

	d.mu.Lock()
	d.inst.OnEveryPingRequestResponse(response)
	directives := d.inst.OnPingRequestResponse(response, p.pingedMember)
	d.mu.Unlock()
	d.drain(directives)
}

const dialRPCTimeout = 5 * time.Second
