// Package rest exposes the token lifecycle over HTTP/JSON using gin.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/tracing"
)

const shutdownTimeout = 10 * time.Second

// TokenService is the lifecycle surface the HTTP layer depends on.
type TokenService interface {
	Generate(ctx context.Context, req services.GenerateRequest) (*services.GenerateResult, error)
	Authorize(ctx context.Context, presented string) (*services.Principal, error)
	List(ctx context.Context, callerOwnerID string, filter services.ListFilter) ([]services.TokenSummary, error)
	Extend(ctx context.Context, callerOwnerID, tokenID string, minutes int) (*services.ExtendResult, error)
	Revoke(ctx context.Context, callerOwnerID, tokenID, reason string) (*services.RevokeResult, error)
	BulkRevoke(ctx context.Context, callerOwnerID string, ids []string, reason string) (*services.BulkRevokeResult, error)
	Validate(ctx context.Context, presented, expectedAudience, expectedIssuer string) *services.ValidationResult
}

// Options tune the HTTP server.
type Options struct {
	CollapseAuthErrors bool
	RateLimitRPS       float64
	RateLimitBurst     int
	// Metrics, when set, instruments every route and serves /metrics.
	Metrics *metrics.Metrics
}

type HTTPServer struct {
	address string
	logger  logging.Logger
	tokens  TokenService
	opts    Options
	engine  *gin.Engine
}

func NewHTTPServer(a string, l logging.Logger, ts TokenService, o Options) (*HTTPServer, error) {
	if err := registerValidators(); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}

	s := &HTTPServer{
		address: a,
		logger:  l.With("module", "http_server"),
		tokens:  ts,
		opts:    o,
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler { return s.engine }

func (s *HTTPServer) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(tracing.ServiceName))
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}
	r.Use(s.requestLogger())

	r.GET("/healthz", s.health)

	limited := rateLimit(s.opts.RateLimitRPS, s.opts.RateLimitBurst)

	jwt := r.Group("/jwt/custom")
	{
		jwt.POST("/generate", limited, s.generate)
		jwt.POST("/validate", limited, s.validate)
		jwt.POST("/validate/boolean", limited, s.validateBoolean)
	}

	protected := jwt.Group("", s.authGuard())
	{
		protected.POST("/list/me", s.listMine)
		protected.POST("/extend", s.extend)
		protected.POST("/revoke", s.revoke)
		protected.POST("/revoke/bulk", s.bulkRevoke)
	}

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
