package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
)

const ndjsonContentType = "application/x-ndjson"

// PutObjectAPI is the slice of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options locate the bucket and credentials of an S3-compatible store.
type S3Options struct {
	AccessKey    string
	SecretKey    string
	Region       string
	BaseEndpoint string
}

// seams for tests
var (
	loadAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx, optFns...)
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds a path-style S3 client with static credentials,
// suitable for MinIO as well as AWS.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	cfg, err := loadAWSConfig(ctx,
		awsconfig.WithRegion(o.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(opts *s3.Options) {
		if o.BaseEndpoint != "" {
			opts.BaseEndpoint = aws.String(o.BaseEndpoint)
		}
		opts.UsePathStyle = true
	}), nil
}

// S3Sink buffers events and uploads them as NDJSON objects under
// audit/YYYY/MM/DD/<uuid>.ndjson.
type S3Sink struct {
	client    PutObjectAPI
	bucket    string
	batchSize int
	log       logging.Logger
	now       func() time.Time

	mu      sync.Mutex
	buf     []Event
	dropped uint64

	// notify has capacity one; a pending signal means a full batch waits.
	notify chan struct{}
}

// NewS3Sink returns a sink that uploads from Run, when batchSize events are
// pending or the flush interval ticks. Emit never touches the network.
func NewS3Sink(client PutObjectAPI, bucket string, batchSize int, log logging.Logger) *S3Sink {
	if batchSize < 1 {
		batchSize = 1
	}
	return &S3Sink{
		client:    client,
		bucket:    bucket,
		batchSize: batchSize,
		log:       log.With("module", "audit_s3"),
		now:       time.Now,
		notify:    make(chan struct{}, 1),
	}
}

// Emit queues e and wakes Run once a batch is full. When uploads fall
// behind by more than ten batches the oldest events are dropped.
func (s *S3Sink) Emit(_ context.Context, e Event) {
	s.mu.Lock()
	s.buf = append(s.buf, e)
	s.trim()
	full := len(s.buf) >= s.batchSize
	s.mu.Unlock()

	if full {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of queued events.
func (s *S3Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Dropped returns how many events were discarded because the queue was full.
func (s *S3Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Flush uploads all pending events as one object. On failure the events are
// put back, bounded to ten batches.
func (s *S3Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range pending {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}

	key := s.objectKey()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String(ndjsonContentType),
	})
	if err != nil {
		s.requeue(pending)
		return fmt.Errorf("put %s: %w", key, err)
	}

	s.log.Debug(ctx, "audit batch uploaded", "key", key, "events", len(pending))
	return nil
}

func (s *S3Sink) requeue(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(events, s.buf...)
	s.trim()
}

// trim must be called with mu held.
func (s *S3Sink) trim() {
	if limit := 10 * s.batchSize; len(s.buf) > limit {
		s.dropped += uint64(len(s.buf) - limit)
		s.buf = s.buf[len(s.buf)-limit:]
	}
}

func (s *S3Sink) objectKey() string {
	d := s.now().UTC()
	return fmt.Sprintf("audit/%04d/%02d/%02d/%s.ndjson", d.Year(), d.Month(), d.Day(), uuid.New())
}

// Run uploads whenever Emit signals a full batch and every interval, until
// ctx is done; then it flushes once more with a short deadline.
func (s *S3Sink) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.log.Error(flushCtx, "final audit upload failed", "error", err)
			}
			cancel()
			return
		case <-s.notify:
			if err := s.Flush(ctx); err != nil {
				s.log.Error(ctx, "audit upload failed", "error", err)
			}
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.log.Error(ctx, "audit upload failed", "error", err)
			}
		}
	}
}
