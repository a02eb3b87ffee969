// Package grpc exposes the token lifecycle over gRPC with a hand-registered
// service whose messages are google.protobuf.Struct values.
package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

// TokenService is the lifecycle surface the gRPC layer depends on.
type TokenService interface {
	Generate(ctx context.Context, req services.GenerateRequest) (*services.GenerateResult, error)
	Authorize(ctx context.Context, presented string) (*services.Principal, error)
	List(ctx context.Context, callerOwnerID string, filter services.ListFilter) ([]services.TokenSummary, error)
	Extend(ctx context.Context, callerOwnerID, tokenID string, minutes int) (*services.ExtendResult, error)
	Revoke(ctx context.Context, callerOwnerID, tokenID, reason string) (*services.RevokeResult, error)
}

type GRPCServer struct {
	address            string
	logger             logging.Logger
	tokens             TokenService
	collapseAuthErrors bool
	health             *health.Server
}

func NewGRPCServer(a string, l logging.Logger, ts TokenService, collapseAuthErrors bool) *GRPCServer {
	return &GRPCServer{
		address:            a,
		logger:             l.With("module", "grpc_server"),
		tokens:             ts,
		collapseAuthErrors: collapseAuthErrors,
		health:             health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.authInterceptor))

	RegisterTokenServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv
}

// Run listens on the configured address until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	return srv.Serve(lis)
}
