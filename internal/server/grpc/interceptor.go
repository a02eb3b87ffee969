package grpc

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

var protectedMethods = map[string]bool{
	MethodListMine: true,
	MethodExtend:   true,
	MethodRevoke:   true,
}

var authMetadataKey = strings.ToLower(common.AuthorizationHeaderName)

func bearerFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", common.ErrMissingCredential
	}
	values := md.Get(authMetadataKey)
	if len(values) == 0 {
		return "", common.ErrMissingCredential
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) || strings.TrimSpace(token) == "" {
		return "", common.ErrMissingCredential
	}
	return strings.TrimSpace(token), nil
}

// authInterceptor authorizes protected methods and binds the principal to
// the handler context.
func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !protectedMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	token, err := bearerFromMetadata(ctx)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	p, err := s.tokens.Authorize(ctx, token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return handler(services.ContextWithPrincipal(ctx, p), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Info(ctx, "grpc request",
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start).String(),
	)
	return resp, err
}
