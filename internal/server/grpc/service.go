package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tokenkeeper.v1.TokenService"

// Full method names.
const (
	MethodGenerate = "/" + ServiceName + "/Generate"
	MethodListMine = "/" + ServiceName + "/ListMine"
	MethodExtend   = "/" + ServiceName + "/Extend"
	MethodRevoke   = "/" + ServiceName + "/Revoke"
)

// TokenServiceServer is the server API of tokenkeeper.v1.TokenService.
// Messages are google.protobuf.Struct values.
type TokenServiceServer interface {
	Generate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMine(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Extend(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Revoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TokenServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TokenServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TokenServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TokenServiceDesc describes tokenkeeper.v1.TokenService for grpc.Server.
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: unaryHandler(MethodGenerate, TokenServiceServer.Generate)},
		{MethodName: "ListMine", Handler: unaryHandler(MethodListMine, TokenServiceServer.ListMine)},
		{MethodName: "Extend", Handler: unaryHandler(MethodExtend, TokenServiceServer.Extend)},
		{MethodName: "Revoke", Handler: unaryHandler(MethodRevoke, TokenServiceServer.Revoke)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tokenkeeper/v1/token_service.proto",
}

// RegisterTokenServiceServer registers srv on s.
func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}
