// Package common defines shared constants and sentinel errors used across
// the codec, store, lifecycle and transport layers. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound       = errors.New("not found")
	ErrDuplicateTokenID = errors.New("duplicate token id")
	ErrVersionConflict  = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal          = errors.New("internal error")
	ErrorUnauthorized      = errors.New("unauthorized")
	ErrConcurrencyConflict = errors.New("concurrency conflict, retry the operation")

	// Codec errors.
	ErrMalformedToken   = errors.New("malformed token")
	ErrSignatureInvalid = errors.New("token signature is invalid")

	// Authorization errors.
	ErrMissingCredential = errors.New("missing bearer credential")
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenRevoked      = errors.New("token revoked")
	ErrForbidden         = errors.New("forbidden")

	// Lifecycle errors.
	ErrAlreadyRevoked = errors.New("token already revoked")
	ErrAlreadyExpired = errors.New("token already expired")

	// Validation errors.
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidClaims     = errors.New("invalid claims")
	ErrInvalidAudience   = errors.New("invalid audience")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrBulkLimitExceeded = errors.New("bulk limit exceeded")
)

// IsAuthorizationFailure reports whether err is one of the failures Authorize
// can produce for a presented credential.
func IsAuthorizationFailure(err error) bool {
	switch {
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenRevoked),
		errors.Is(err, ErrorUnauthorized):
		return true
	}
	return false
}
