package rest

import (
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

type generateRequest struct {
	JWTName             string         `json:"JWTName" binding:"required,notblank"`
	Content             map[string]any `json:"content"`
	ExpirationInMinutes int            `json:"expirationInMinutes"`
	Audience            []string       `json:"audience"`
	SetCookie           bool           `json:"setCookie"`
}

type generateResponse struct {
	Status    string    `json:"status"`
	Name      string    `json:"name"`
	Token     string    `json:"token"`
	TokenID   string    `json:"tokenId"`
	Audience  []string  `json:"audience"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type listRequest struct {
	Status        string     `json:"status" binding:"tokenstatus"`
	JWTName       string     `json:"jwtName"`
	IssuedAfter   *time.Time `json:"issuedAfter"`
	IssuedBefore  *time.Time `json:"issuedBefore"`
	ExpiresAfter  *time.Time `json:"expiresAfter"`
	ExpiresBefore *time.Time `json:"expiresBefore"`
	Limit         int        `json:"limit" binding:"min=0"`
	Offset        int        `json:"offset" binding:"min=0"`
}

func (r listRequest) filter() services.ListFilter {
	return services.ListFilter{
		Status:        models.Status(r.Status),
		Name:          r.JWTName,
		IssuedAfter:   r.IssuedAfter,
		IssuedBefore:  r.IssuedBefore,
		ExpiresAfter:  r.ExpiresAfter,
		ExpiresBefore: r.ExpiresBefore,
		Limit:         r.Limit,
		Offset:        r.Offset,
	}
}

type tokenSummary struct {
	TokenID          string     `json:"tokenId"`
	JWTName          string     `json:"jwtName"`
	Status           string     `json:"status"`
	IssuedAt         time.Time  `json:"issuedAt"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	Audience         []string   `json:"audience,omitempty"`
}

func toSummaries(in []services.TokenSummary) []tokenSummary {
	out := make([]tokenSummary, 0, len(in))
	for _, t := range in {
		out = append(out, tokenSummary{
			TokenID:          t.TokenID,
			JWTName:          t.Name,
			Status:           string(t.Status),
			IssuedAt:         t.IssuedAt,
			ExpiresAt:        t.ExpiresAt,
			RevokedAt:        t.RevokedAt,
			RevocationReason: t.RevocationReason,
			Audience:         t.Audience,
		})
	}
	return out
}

// An empty tokenId targets the token presented as the bearer credential.
type extendRequest struct {
	TokenID            string `json:"tokenId"`
	ExtensionInMinutes int    `json:"extensionInMinutes"`
	SetCookie          bool   `json:"setCookie"`
}

type extendResponse struct {
	Status    string    `json:"status"`
	TokenID   string    `json:"tokenId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type revokeRequest struct {
	TokenID string `json:"tokenId"`
	Reason  string `json:"reason"`
}

type revokeResponse struct {
	TokenID        string    `json:"tokenId"`
	Status         string    `json:"status"`
	AlreadyRevoked bool      `json:"alreadyRevoked"`
	RevokedAt      time.Time `json:"revokedAt"`
}

type bulkRevokeRequest struct {
	TokenIDs []string `json:"tokenIds"`
	Reason   string   `json:"reason"`
}

type bulkOutcome struct {
	TokenID string `json:"tokenId"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type bulkRevokeResponse struct {
	Status         string        `json:"status"`
	Total          int           `json:"total"`
	Revoked        int           `json:"revoked"`
	AlreadyRevoked int           `json:"alreadyRevoked"`
	Failed         int           `json:"failed"`
	Reason         string        `json:"reason,omitempty"`
	Results        []bulkOutcome `json:"results"`
}

func toBulkResponse(res *services.BulkRevokeResult, reason string) bulkRevokeResponse {
	out := bulkRevokeResponse{
		Status:         "completed",
		Total:          len(res.Outcomes),
		Revoked:        res.Revoked,
		AlreadyRevoked: res.AlreadyRevoked,
		Failed:         res.Failed,
		Reason:         reason,
		Results:        make([]bulkOutcome, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		bo := bulkOutcome{TokenID: o.TokenID, Status: o.Status}
		if o.Err != nil {
			bo.Error = o.Err.Error()
		}
		out.Results = append(out.Results, bo)
	}
	return out
}

type validateRequest struct {
	Token    string `json:"token" binding:"required,notblank"`
	Audience string `json:"audience"`
	Issuer   string `json:"issuer"`
}

type validateResponse struct {
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

func toValidateResponse(r *services.ValidationResult) validateResponse {
	out := validateResponse{
		Valid:    r.Valid,
		Active:   r.Active,
		Message:  r.Message,
		Subject:  r.Subject,
		Issuer:   r.Issuer,
		Audience: r.Audience,
		TokenID:  r.TokenID,
		Claims:   r.Claims,
	}
	if !r.IssuedAt.IsZero() {
		out.IssuedAt = &r.IssuedAt
	}
	if !r.ExpiresAt.IsZero() {
		out.ExpiresAt = &r.ExpiresAt
	}
	return out
}
