package daemon

import (
	"context"

	"google.golang.org/grpc"

	"swimguard/internal/transport"
)

// swimClient is the subset of *transport.SWIMClient the daemon calls.
// Declaring it as an interface here (rather than depending on the
// concrete type directly) lets tests substitute a fake peer without
// dialing a real connection, the same way swim.Instance takes an
// injected clock.Source and *rand.Rand instead of reading global state.
type swimClient interface {
	Ping(ctx context.Context, in *transport.PingMessage, opts ...grpc.CallOption) (*transport.AckMessage, error)
	PingRequest(ctx context.Context, in *transport.PingRequestMessage, opts ...grpc.CallOption) (*transport.Empty, error)
	Ack(ctx context.Context, in *transport.AckMessage, opts ...grpc.CallOption) (*transport.Empty, error)
	Nack(ctx context.Context, in *transport.NackMessage, opts ...grpc.CallOption) (*transport.Empty, error)
}

// peerDialer resolves a peer endpoint to a swimClient, lazily dialing.
type peerDialer interface {
	SWIMClientFor(endpoint string) (swimClient, error)
}

// dialerAdapter adapts *transport.Dialer (whose SWIMClientFor returns the
// concrete *transport.SWIMClient) to peerDialer.
type dialerAdapter struct {
	dialer *transport.Dialer
}

func newDialerAdapter(d *transport.Dialer) *dialerAdapter {
	return &dialerAdapter{dialer: d}
}

func (a *dialerAdapter) SWIMClientFor(endpoint string) (swimClient, error) {
	return a.dialer.SWIMClientFor(endpoint)
}
