package transport

import (
	"context"

	"google.golang.org/grpc"
)

// SWIMServer is the server-side contract for the membership protocol's
// wire service: one method per message kind the Instance's directives
// produce or consume. The concrete implementation is internal/daemon.Daemon
// (see internal/daemon/server.go).
type SWIMServer interface {
	Ping(context.Context, *PingMessage) (*AckMessage, error)
	PingRequest(context.Context, *PingRequestMessage) (*Empty, error)
	Ack(context.Context, *AckMessage) (*Empty, error)
	Nack(context.Context, *NackMessage) (*Empty, error)
}

const swimServiceName = "swimguard.SWIM"

func swimPingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SWIMServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: swimServiceName + "/Ping"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SWIMServer).Ping(ctx, req.(*PingMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func swimPingRequestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequestMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SWIMServer).PingRequest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: swimServiceName + "/PingRequest"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SWIMServer).PingRequest(ctx, req.(*PingRequestMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func swimAckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AckMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SWIMServer).Ack(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: swimServiceName + "/Ack"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SWIMServer).Ack(ctx, req.(*AckMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func swimNackHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(NackMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SWIMServer).Nack(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: swimServiceName + "/Nack"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SWIMServer).Nack(ctx, req.(*NackMessage))
	}
	return interceptor(ctx, in, info, handler)
}

// swimServiceDesc is the hand-built equivalent of what protoc-gen-go-grpc
// would emit for a "service SWIM { rpc Ping ... }" .proto.
var swimServiceDesc = grpc.ServiceDesc{
	ServiceName: swimServiceName,
	HandlerType: (*SWIMServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: swimPingHandler},
		{MethodName: "PingRequest", Handler: swimPingRequestHandler},
		{MethodName: "Ack", Handler: swimAckHandler},
		{MethodName: "Nack", Handler: swimNackHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "swim.proto",
}

// RegisterSWIMServer registers srv's methods on s using the hand-built
// service descriptor above.
func RegisterSWIMServer(s grpc.ServiceRegistrar, srv SWIMServer) {
	s.RegisterService(&swimServiceDesc, srv)
}

// SWIMClient is the client-side stub mirroring SWIMServer, used by the
// daemon to execute SendPing/SendAck/SendNack/SendPingRequests directives.
type SWIMClient struct {
	cc grpc.ClientConnInterface
}

// NewSWIMClient wraps a dialed connection for RPCs against the swim
// service, forcing the gob codec registered in codec.go.
func NewSWIMClient(cc grpc.ClientConnInterface) *SWIMClient {
	return &SWIMClient{cc: cc}
}

func (c *SWIMClient) Ping(ctx context.Context, in *PingMessage, opts ...grpc.CallOption) (*AckMessage, error) {
	out := new(AckMessage)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+swimServiceName+"/Ping", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SWIMClient) PingRequest(ctx context.Context, in *PingRequestMessage, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+swimServiceName+"/PingRequest", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SWIMClient) Ack(ctx context.Context, in *AckMessage, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+swimServiceName+"/Ack", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SWIMClient) Nack(ctx context.Context, in *NackMessage, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	opts = append(opts, grpc.CallContentSubtype(codecName))
	if err := c.cc.Invoke(ctx, "/"+swimServiceName+"/Nack", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
