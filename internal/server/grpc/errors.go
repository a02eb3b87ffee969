package grpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

func codeOf(err error) codes.Code {
	switch {
	case common.IsAuthorizationFailure(err):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrForbidden):
		return codes.PermissionDenied
	case errors.Is(err, common.ErrorNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrInvalidDuration),
		errors.Is(err, common.ErrInvalidClaims),
		errors.Is(err, common.ErrInvalidAudience),
		errors.Is(err, common.ErrInvalidRequest),
		errors.Is(err, common.ErrBulkLimitExceeded):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrAlreadyRevoked),
		errors.Is(err, common.ErrAlreadyExpired):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrConcurrencyConflict):
		return codes.Aborted
	default:
		return codes.Internal
	}
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	code := codeOf(err)
	switch {
	case code == codes.Internal:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(code, common.ErrorInternal.Error())
	case code == codes.Unauthenticated && s.collapseAuthErrors:
		return status.Error(code, common.ErrorUnauthorized.Error())
	}
	return status.Error(code, err.Error())
}
