package rest

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

// ExtendedTokenCookie names the cookie set by extend when requested.
const ExtendedTokenCookie = "EXTENDED_TOKEN"

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	// The owner is the subject the caller asks the token to be issued for.
	owner, _ := req.Content["sub"].(string)

	res, err := s.tokens.Generate(c.Request.Context(), services.GenerateRequest{
		OwnerID:           owner,
		Name:              req.JWTName,
		Claims:            req.Content,
		ExpirationMinutes: req.ExpirationInMinutes,
		Audience:          req.Audience,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	if req.SetCookie {
		setTokenCookie(c, res.Name, res.Token, res.ExpiresAt)
	}

	c.JSON(http.StatusOK, generateResponse{
		Status:    "created",
		Name:      res.Name,
		Token:     res.Token,
		TokenID:   res.TokenID,
		Audience:  res.Audience,
		IssuedAt:  res.IssuedAt,
		ExpiresAt: res.ExpiresAt,
	})
}

func (s *HTTPServer) listMine(c *gin.Context) {
	var req listRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(c, bindError(err))
		return
	}

	out, err := s.tokens.List(c.Request.Context(), principal(c).OwnerID, req.filter())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSummaries(out))
}

func (s *HTTPServer) extend(c *gin.Context) {
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	p := principal(c)
	if req.TokenID == "" {
		req.TokenID = p.TokenID
	}

	res, err := s.tokens.Extend(c.Request.Context(), p.OwnerID, req.TokenID, req.ExtensionInMinutes)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if req.SetCookie {
		setTokenCookie(c, ExtendedTokenCookie, res.Token, res.ExpiresAt)
	}

	c.JSON(http.StatusOK, extendResponse{
		Status:    "extended",
		TokenID:   res.TokenID,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
	})
}

func (s *HTTPServer) revoke(c *gin.Context) {
	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(c, bindError(err))
		return
	}

	p := principal(c)
	if req.TokenID == "" {
		req.TokenID = p.TokenID
	}

	res, err := s.tokens.Revoke(c.Request.Context(), p.OwnerID, req.TokenID, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, revokeResponse{
		TokenID:        res.TokenID,
		Status:         "revoked",
		AlreadyRevoked: res.AlreadyRevoked,
		RevokedAt:      res.RevokedAt,
	})
}

func (s *HTTPServer) bulkRevoke(c *gin.Context) {
	var req bulkRevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, bindError(err))
		return
	}

	res, err := s.tokens.BulkRevoke(c.Request.Context(), principal(c).OwnerID, req.TokenIDs, req.Reason)
	if err != nil {
		s.writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.Failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, toBulkResponse(res, req.Reason))
}

func (s *HTTPServer) validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, validateResponse{Message: "token is required"})
		return
	}

	res := s.tokens.Validate(c.Request.Context(), req.Token, req.Audience, req.Issuer)
	out := toValidateResponse(res)
	if !res.Valid {
		if s.opts.CollapseAuthErrors && common.IsAuthorizationFailure(res.Err) {
			out.Message = common.ErrorUnauthorized.Error()
		}
		c.JSON(http.StatusUnauthorized, out)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) validateBoolean(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "false")
		return
	}

	res := s.tokens.Validate(c.Request.Context(), req.Token, req.Audience, req.Issuer)
	if res.Valid && res.Active {
		c.String(http.StatusOK, "true")
		return
	}
	c.String(http.StatusUnauthorized, "false")
}

func setTokenCookie(c *gin.Context, name, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, token, maxAge, "/", "", false, true)
}
