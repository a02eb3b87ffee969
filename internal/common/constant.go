// Package common contains shared constants and sentinel errors used across
// tokenkeeper components.
package common

// AuthorizationHeaderName is the HTTP header (and gRPC metadata key, in lower
// case) that carries the bearer credential.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the authentication scheme prefix expected in the
// authorization header.
const BearerScheme = "Bearer"

// TokenIDBytes is the number of random bytes behind a token identifier.
const TokenIDBytes = 16
