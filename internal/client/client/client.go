// Package client is an HTTP client for the tokenkeeper JSON API.
package client

import (
	"context"
	"time"
)

// Client is the token API as seen by tokenctl.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	ListMine(ctx context.Context, filter ListFilter) ([]TokenSummary, error)
	Extend(ctx context.Context, tokenID string, minutes int) (*ExtendResponse, error)
	Revoke(ctx context.Context, tokenID, reason string) (*RevokeResponse, error)
	BulkRevoke(ctx context.Context, tokenIDs []string, reason string) (*BulkRevokeResponse, error)
	Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error)
}

type GenerateRequest struct {
	JWTName             string         `json:"JWTName"`
	Content             map[string]any `json:"content"`
	ExpirationInMinutes int            `json:"expirationInMinutes"`
	Audience            []string       `json:"audience,omitempty"`
}

type GenerateResponse struct {
	Status    string    `json:"status"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	TokenID   string    `json:"tokenId"`
	Audience  []string  `json:"audience"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ListFilter struct {
	Status  string `json:"status,omitempty"`
	JWTName string `json:"jwtName,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

type TokenSummary struct {
	TokenID          string     `json:"tokenId"`
	JWTName          string     `json:"jwtName"`
	Status           string     `json:"status"`
	IssuedAt         time.Time  `json:"issuedAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	Audience         []string   `json:"audience,omitempty"`
}

type ExtendResponse struct {
	Status    string    `json:"status"`
	TokenID   string    `json:"tokenId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type RevokeResponse struct {
	TokenID        string    `json:"tokenId"`
	Status         string    `json:"status"`
	AlreadyRevoked bool      `json:"alreadyRevoked"`
	RevokedAt      time.Time `json:"revokedAt"`
}

type BulkOutcome struct {
	TokenID string `json:"tokenId"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type BulkRevokeResponse struct {
	Status         string        `json:"status"`
	Total          int           `json:"total"`
	Revoked        int           `json:"revoked"`
	AlreadyRevoked int           `json:"alreadyRevoked"`
	Failed         int           `json:"failed"`
	Results        []BulkOutcome `json:"results"`
}

type ValidateRequest struct {
	Token    string `json:"token"`
	Audience string `json:"audience,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
}

type ValidateResponse struct {
	Valid     bool           `json:"valid"`
	Active    bool           `json:"active"`
	Message   string         `json:"message"`
	Subject   string         `json:"subject,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	Audience  []string       `json:"audience,omitempty"`
	TokenID   string         `json:"tokenId,omitempty"`
	IssuedAt  *time.Time     `json:"issuedAt,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
}
