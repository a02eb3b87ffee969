package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

type fakePutter struct {
	mu    sync.Mutex
	err   error
	calls []*s3.PutObjectInput
	lines [][]Event
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	var events []Event
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err == nil {
			events = append(events, e)
		}
	}
	f.lines = append(f.lines, events)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func sampleEvent(typ EventType) Event {
	tok := &models.Token{ID: "t1", OwnerID: "u1", ExpiresAt: time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)}
	return NewEvent(typ, tok, time.Date(2026, 7, 3, 0, 0, 0, 0, time.UTC))
}

func TestNewEvent(t *testing.T) {
	e := sampleEvent(EventRevoked)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, EventRevoked, e.Type)
	assert.Equal(t, "t1", e.TokenID)
	assert.Equal(t, "u1", e.OwnerID)
	assert.NotEqual(t, e.ID, sampleEvent(EventRevoked).ID)
}

// runSink starts Run with an interval long enough that only batch signals
// and shutdown trigger uploads.
func runSink(t *testing.T, s *S3Sink) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestS3Sink_UploadsFullBatchFromRun(t *testing.T) {
	p := &fakePutter{}
	s := NewS3Sink(p, "bucket", 2, logging.Nop())
	s.now = func() time.Time { return time.Date(2026, 7, 3, 15, 0, 0, 0, time.UTC) }
	runSink(t, s)

	s.Emit(context.Background(), sampleEvent(EventGenerated))
	assert.Never(t, func() bool { return p.callCount() > 0 }, 50*time.Millisecond, 5*time.Millisecond, "batch not full yet")

	s.Emit(context.Background(), sampleEvent(EventExtended))
	require.Eventually(t, func() bool { return p.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	in := p.calls[0]
	assert.Equal(t, "bucket", aws.ToString(in.Bucket))
	assert.Equal(t, "application/x-ndjson", aws.ToString(in.ContentType))
	assert.Regexp(t, regexp.MustCompile(`^audit/2026/07/03/[0-9a-f-]{36}\.ndjson$`), aws.ToString(in.Key))
	require.Len(t, p.lines[0], 2)
	assert.Equal(t, EventGenerated, p.lines[0][0].Type)
	assert.Equal(t, EventExtended, p.lines[0][1].Type)
}

type blockingPutter struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingPutter) PutObject(ctx context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return &s3.PutObjectOutput{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestS3Sink_EmitDoesNotWaitForUpload(t *testing.T) {
	p := &blockingPutter{release: make(chan struct{})}
	s := NewS3Sink(p, "bucket", 1, logging.Nop())
	runSink(t, s)
	t.Cleanup(func() { close(p.release) })

	s.Emit(context.Background(), sampleEvent(EventGenerated))
	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The upload above is stuck; further events still return at once.
	start := time.Now()
	for i := 0; i < 5; i++ {
		s.Emit(context.Background(), sampleEvent(EventRevoked))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 5, s.Pending())
}

func TestS3Sink_DropsOldestWhenBacklogged(t *testing.T) {
	s := NewS3Sink(&fakePutter{}, "bucket", 2, logging.Nop())
	for i := 0; i < 25; i++ {
		s.Emit(context.Background(), sampleEvent(EventGenerated))
	}
	assert.Equal(t, 20, s.Pending())
	assert.Equal(t, uint64(5), s.Dropped())
}

func TestS3Sink_FlushEmptyIsNoop(t *testing.T) {
	p := &fakePutter{}
	s := NewS3Sink(p, "bucket", 10, logging.Nop())
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 0, p.callCount())
}

func TestS3Sink_RequeuesOnFailure(t *testing.T) {
	p := &fakePutter{err: errors.New("s3 down")}
	s := NewS3Sink(p, "bucket", 10, logging.Nop())

	s.Emit(context.Background(), sampleEvent(EventGenerated))
	err := s.Flush(context.Background())
	require.ErrorContains(t, err, "s3 down")

	p.err = nil
	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, p.lines, 1)
	assert.Len(t, p.lines[0], 1, "failed batch is retried")
}

func TestS3Sink_RunFlushesOnShutdown(t *testing.T) {
	p := &fakePutter{}
	s := NewS3Sink(p, "bucket", 100, logging.Nop())
	s.Emit(context.Background(), sampleEvent(EventRevoked))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, p.callCount())
}

func TestNewS3Client_UsesSeams(t *testing.T) {
	origLoad, origNew := loadAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() { loadAWSConfig, newS3ClientFromConfig = origLoad, origNew })

	loadAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		return aws.Config{Region: lo.Region}, nil
	}
	var got s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&got)
		}
		return &s3.Client{}
	}

	c, err := NewS3Client(context.Background(), S3Options{Region: "eu-west-1", BaseEndpoint: "http://minio:9000"})
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.True(t, got.UsePathStyle)
	assert.Equal(t, "http://minio:9000", aws.ToString(got.BaseEndpoint))

	loadAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}
	_, err = NewS3Client(context.Background(), S3Options{})
	require.ErrorContains(t, err, "load aws config")
}

func TestLogAndMultiSink(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	var count int
	counter := sinkFunc(func(context.Context, Event) { count++ })

	MultiSink{NewLogSink(log), counter, Discard{}}.Emit(context.Background(), sampleEvent(EventExpired))

	assert.Equal(t, 1, count)
	assert.Contains(t, buf.String(), `"msg":"token expired"`)
	assert.Contains(t, buf.String(), `"token_id":"t1"`)
	assert.Contains(t, buf.String(), `"module":"audit"`)
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }
