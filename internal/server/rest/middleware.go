package rest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

const principalKey = "principal"

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", common.ErrMissingCredential
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", common.ErrMissingCredential
	}
	return token, nil
}

// authGuard authorizes the bearer credential and binds the caller identity
// to both the gin context and the request context.
func (s *HTTPServer) authGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if err != nil {
			s.writeError(c, err)
			return
		}

		p, err := s.tokens.Authorize(c.Request.Context(), token)
		if err != nil {
			s.logger.Debug(c.Request.Context(), "authorization failed", "error", err)
			s.writeError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(services.ContextWithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func principal(c *gin.Context) *services.Principal {
	p, _ := services.PrincipalFromContext(c.Request.Context())
	return p
}

// rateLimit throttles the routes it is attached to with one shared token
// bucket. A non-positive rps disables it.
func rateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	limit := strconv.FormatFloat(rps, 'f', -1, 64)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
				Error:   "rate_limited",
				Message: "rate limit exceeded, try again later",
			})
			return
		}
		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens())))
		c.Next()
	}
}

// requestLogger writes one structured line per request.
func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
