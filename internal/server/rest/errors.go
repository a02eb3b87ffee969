package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: authorization failures wrap ErrorNotFound when the record
// is gone, so they are matched first.
var errorMappings = []errorMapping{
	{common.ErrMissingCredential, http.StatusUnauthorized, "missing_credential"},
	{common.ErrMalformedToken, http.StatusUnauthorized, "malformed_token"},
	{common.ErrSignatureInvalid, http.StatusUnauthorized, "invalid_signature"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{common.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrForbidden, http.StatusForbidden, "forbidden"},
	{common.ErrorNotFound, http.StatusNotFound, "not_found"},
	{common.ErrInvalidDuration, http.StatusBadRequest, "invalid_duration"},
	{common.ErrInvalidClaims, http.StatusBadRequest, "invalid_claims"},
	{common.ErrInvalidAudience, http.StatusBadRequest, "invalid_audience"},
	{common.ErrBulkLimitExceeded, http.StatusBadRequest, "request_too_large"},
	{common.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{common.ErrAlreadyRevoked, http.StatusConflict, "already_revoked"},
	{common.ErrAlreadyExpired, http.StatusConflict, "already_expired"},
	{common.ErrConcurrencyConflict, http.StatusConflict, "concurrency_conflict"},
}

// classify maps a service error to an HTTP status and error code. Unknown
// errors are reported as 500 with a generic message.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func (s *HTTPServer) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()

	switch {
	case status == http.StatusInternalServerError:
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		msg = common.ErrorInternal.Error()
	case status == http.StatusUnauthorized && s.opts.CollapseAuthErrors:
		code, msg = "unauthorized", common.ErrorUnauthorized.Error()
	}

	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: msg})
}
