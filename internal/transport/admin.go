package transport

import (
	"context"

	"google.golang.org/grpc"
)

// MembershipSnapshot is the response to GetMembership: every member
// record this node currently holds, for operator tooling (swimctl
// members) and debugging via grpcurl.
type MembershipSnapshot struct {
	Self    WireNode
	Members []WireMember
}

// JoinRequest asks a running node to add an operator-supplied bootstrap
// peer to its membership table.
type JoinRequest struct {
	Peer WireNode
}

// ConfirmDeadRequest asks a running node to promote a peer straight to
// dead, independent of suspicion-timeout expiry (spec's "external confirm
// dead command" input event).
type ConfirmDeadRequest struct {
	Peer WireNode
}

// ConfirmDeadReply reports whether the confirm-dead command changed
// anything.
type ConfirmDeadReply struct {
	Applied bool
}

// HealthStatus reports a coarse liveness summary: counts by status kind
// plus the current LHM, useful for a readiness probe.
type HealthStatus struct {
	AliveCount       int
	SuspectCount     int
	UnreachableCount int
	DeadCount        int
	LocalHealth      int
	ProtocolPeriod   uint64
}

// AdminServer is the debug/operator-facing service: membership
// introspection and manual join, separate from the SWIM wire protocol
// itself so it can be firewalled off independently in production.
type AdminServer interface {
	GetMembership(context.Context, *Empty) (*MembershipSnapshot, error)
	Join(context.Context, *JoinRequest) (*Empty, error)
	Health(context.Context, *Empty) (*HealthStatus, error)
	ConfirmDead(context.Context, *ConfirmDeadRequest) (*ConfirmDeadReply, error)
}

const adminServiceName = "swimguard.Admin"

func adminGetMembershipHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).GetMembership(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: adminServiceName + "/GetMembership"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).GetMembership(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func adminJoinHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JoinRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Join(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: adminServiceName + "/Join"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).Join(ctx, req.(*JoinRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func adminHealthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: adminServiceName + "/Health"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).Health(ctx, req.(*Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func adminConfirmDeadHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ConfirmDeadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServer).ConfirmDead(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: adminServiceName + "/ConfirmDead"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServer).ConfirmDead(ctx, req.(*ConfirmDeadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var adminServiceDesc = grpc.ServiceDesc{
	ServiceName: adminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMembership", Handler: adminGetMembershipHandler},
		{MethodName: "Join", Handler: adminJoinHandler},
		{MethodName: "Health", Handler: adminHealthHandler},
		{MethodName: "ConfirmDead", Handler: adminConfirmDeadHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "admin.proto",
}

// RegisterAdminServer registers srv's methods on s using the hand-built
// service descriptor above.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&adminServiceDesc, srv)
}

// AdminClient is the client-side stub used by cmd/swimctl.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) GetMembership(ctx context.Context, opts ...grpc.CallOption) (*MembershipSnapshot, error) {
	out := new(MembershipSnapshot)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+adminServiceName+"/GetMembership", new(Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Join(ctx context.Context, in *JoinRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+adminServiceName+"/Join", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Health(ctx context.Context, opts ...grpc.CallOption) (*HealthStatus, error) {
	out := new(HealthStatus)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+adminServiceName+"/Health", new(Empty), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) ConfirmDead(ctx context.Context, in *ConfirmDeadRequest, opts ...grpc.CallOption) (*ConfirmDeadReply, error) {
	out := new(ConfirmDeadReply)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+adminServiceName+"/ConfirmDead", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
