// Package server wires the token service: storage, codec, revocation cache,
// audit sinks, observability and the HTTP and gRPC transports.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/auth"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/denylist"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/rest"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/tracing"

	gs "github.com/dmitrijs2005/tokenkeeper/internal/server/grpc"
)

var openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var newS3Client = func(ctx context.Context, o audit.S3Options) (audit.PutObjectAPI, error) {
	return audit.NewS3Client(ctx, o)
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	tokens  *services.TokenService
	metrics *metrics.Metrics
	revoked *denylist.Cache
	s3sink  *audit.S3Sink

	logCloser     io.Closer
	traceShutdown tracing.ShutdownFunc
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	slogger, logCloser := logging.New(logging.Options{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	})
	app := &App{config: c, logger: slogger, logCloser: logCloser, metrics: metrics.New()}

	if err := app.init(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	var rm repomanager.RepositoryManager
	switch c.StorageBackend {
	case config.StoragePostgres:
		db, err := openDB(ctx, c.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		rm = repomanager.NewPostgresRepositoryManager(c.CASMaxRetries)
	default:
		rm = repomanager.NewMemoryRepositoryManager(c.CASMaxRetries)
	}
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey), c.SigningKeyID)
	if err != nil {
		return fmt.Errorf("codec init error: %w", err)
	}

	app.revoked, err = denylist.New(c.DenylistCacheSize)
	if err != nil {
		return fmt.Errorf("denylist init error: %w", err)
	}

	sinks := audit.MultiSink{audit.NewLogSink(app.logger)}
	if c.AuditS3Enabled {
		client, err := newS3Client(ctx, audit.S3Options{
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return fmt.Errorf("s3 client init error: %w", err)
		}
		app.s3sink = audit.NewS3Sink(client, c.S3Bucket, c.AuditBatchSize, app.logger)
		sinks = append(sinks, app.s3sink)
	}

	app.traceShutdown, err = tracing.Setup(ctx, c.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracing init error: %w", err)
	}

	app.tokens = services.NewTokenService(app.db, rm, codec, c,
		services.WithDenylist(app.revoked),
		services.WithEventSink(sinks),
		services.WithLogger(app.logger),
		services.WithObserver(app.metrics),
	)
	return nil
}

// Close releases resources acquired by NewApp.
func (app *App) Close(ctx context.Context) {
	if app.traceShutdown != nil {
		if err := app.traceShutdown(ctx); err != nil {
			app.logger.Error(ctx, "tracing shutdown", "error", err)
		}
	}
	if app.revoked != nil {
		app.revoked.Close()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close", "error", err)
		}
	}
	if app.logCloser != nil {
		_ = app.logCloser.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s, err := rest.NewHTTPServer(app.config.HTTPAddr, app.logger, app.tokens, rest.Options{
		CollapseAuthErrors: app.config.CollapseAuthErrors,
		RateLimitRPS:       app.config.RateLimitRPS,
		RateLimitBurst:     app.config.RateLimitBurst,
		Metrics:            app.metrics,
	})
	if err == nil {
		err = s.Run(ctx)
	}
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.tokens, app.config.CollapseAuthErrors)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a termination signal arrives or a
// server fails, then shuts everything down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.tokens.RunReconciler(ctx, app.config.ReconcileInterval)
	}()

	if app.s3sink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.s3sink.Run(ctx, app.config.AuditFlushInterval)
		}()
	}

	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
	app.Close(context.Background())
}
