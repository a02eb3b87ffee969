package server

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/audit"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.StorageBackend = config.StorageMemory
	c.HTTPAddr = freeAddr(t)
	c.GRPCAddr = freeAddr(t)
	return c
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

type nopPutter struct{}

func (nopPutter) PutObject(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func TestNewApp_InvalidConfig(t *testing.T) {
	c := memoryConfig(t)
	c.SecretKey = ""

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret key is empty")
}

func TestNewApp_DBError(t *testing.T) {
	orig := openDB
	openDB = func(context.Context, string) (*sql.DB, error) { return nil, errors.New("refused") }
	t.Cleanup(func() { openDB = orig })

	c := memoryConfig(t)
	c.StorageBackend = config.StoragePostgres

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}

func TestNewApp_PostgresRunsMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	orig := openDB
	openDB = func(context.Context, string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = orig })

	// No statement is expected, so the first goose query fails.
	mock.ExpectClose()

	c := memoryConfig(t)
	c.StorageBackend = config.StoragePostgres

	_, err = NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations error")
}

func TestNewApp_S3Sink(t *testing.T) {
	var got audit.S3Options
	orig := newS3Client
	newS3Client = func(_ context.Context, o audit.S3Options) (audit.PutObjectAPI, error) {
		got = o
		return nopPutter{}, nil
	}
	t.Cleanup(func() { newS3Client = orig })

	c := memoryConfig(t)
	c.AuditS3Enabled = true
	c.S3Region = "eu-west-1"

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	assert.NotNil(t, app.s3sink)
	assert.Equal(t, "eu-west-1", got.Region)
}

func TestApp_RunServesAndStops(t *testing.T) {
	c := memoryConfig(t)
	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + c.HTTPAddr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	res, err := app.tokens.Generate(context.Background(), services.GenerateRequest{
		OwnerID: "u1", Name: "n", ExpirationMinutes: 5,
	})
	require.NoError(t, err)
	_, err = app.tokens.Authorize(context.Background(), res.Token)
	require.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after context cancel")
	}
}
