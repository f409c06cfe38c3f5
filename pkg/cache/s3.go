package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hydrant-dev/hydrant/pkg/drain"
)

// S3API is the subset of the S3 client used by S3Store.
// *s3.Client satisfies it.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store is a durable cache store backed by an S3 bucket. Response
// metadata travels in object metadata; the body is the object payload.
//
// S3 has no native per-object TTL with second granularity, so expiry is
// enforced on read: an expired object is treated as a miss and queued for
// asynchronous deletion. The pending delete queue is drained via Flush,
// which the write-through layer awaits before a Put.
type S3Store struct {
	client S3API
	bucket string
	prefix string

	deletes chan s3DeleteJob
	pending *drain.Barrier
	stopped sync.Once
	done    chan struct{}
}

type s3DeleteJob struct {
	id  string
	key string
}

// Object metadata field names.
const (
	s3MetaResponse  = "response-meta"
	s3MetaExpiresAt = "expires-at"
	s3MetaHasBody   = "has-body"
)

// S3StoreOption configures S3Store behavior.
type S3StoreOption func(*s3StoreConfig)

type s3StoreConfig struct {
	prefix string
	queue  int
}

// WithS3Prefix sets the object key prefix. Default: "pages/".
func WithS3Prefix(prefix string) S3StoreOption {
	return func(c *s3StoreConfig) {
		c.prefix = prefix
	}
}

// NewS3Store creates an S3-backed cache store.
func NewS3Store(client S3API, bucket string, opts ...S3StoreOption) *S3Store {
	cfg := &s3StoreConfig{
		prefix: "pages/",
		queue:  64,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  cfg.prefix,
		deletes: make(chan s3DeleteJob, cfg.queue),
		pending: drain.New(),
		done:    make(chan struct{}),
	}
	go store.deleteLoop()
	return store
}

func (s *S3Store) objectKey(key, namespace string) string {
	return s.prefix + namespace + "/" + key
}

// Get retrieves an entry, treating missing and expired objects as misses.
func (s *S3Store) Get(ctx context.Context, key, namespace string) (Entry, error) {
	miss := Entry{Key: key, Namespace: namespace}
	objectKey := s.objectKey(key, namespace)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return miss, nil
		}
		return miss, fmt.Errorf("s3 get: %w", err)
	}
	defer out.Body.Close()

	expiresAt, err := time.Parse(time.RFC3339Nano, out.Metadata[s3MetaExpiresAt])
	if err != nil {
		return miss, fmt.Errorf("s3 entry expiry decode: %w", err)
	}
	if time.Now().After(expiresAt) {
		s.queueDelete(objectKey)
		return miss, nil
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(out.Metadata[s3MetaResponse]), &meta); err != nil {
		return miss, fmt.Errorf("s3 entry metadata decode: %w", err)
	}

	hasBody, _ := strconv.ParseBool(out.Metadata[s3MetaHasBody])
	var data []byte
	if hasBody {
		data, err = io.ReadAll(out.Body)
		if err != nil {
			return miss, fmt.Errorf("s3 entry body read: %w", err)
		}
	}

	return Entry{
		Found:     true,
		Key:       key,
		Namespace: namespace,
		Data:      data,
		Meta:      meta,
		ExpiresAt: expiresAt,
	}, nil
}

// Put stores an entry. Last write wins; concurrent writers for the same
// key are not coordinated.
func (s *S3Store) Put(ctx context.Context, key, namespace string, data []byte, meta Metadata, expiresAt time.Time) error {
	rawMeta, err := json.Marshal(cloneMetadata(meta))
	if err != nil {
		return fmt.Errorf("s3 entry metadata encode: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key, namespace)),
		Body:   bytes.NewReader(data),
		Metadata: map[string]string{
			s3MetaResponse:  string(rawMeta),
			s3MetaExpiresAt: expiresAt.Format(time.RFC3339Nano),
			s3MetaHasBody:   strconv.FormatBool(data != nil),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}

// Delete removes an entry synchronously.
func (s *S3Store) Delete(ctx context.Context, key, namespace string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key, namespace)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

// Flush blocks until every queued asynchronous delete has settled.
func (s *S3Store) Flush(ctx context.Context) error {
	return s.pending.Wait(ctx)
}

// Close stops the delete worker and releases any queued deletes so a
// later Flush cannot block on work that will never run. The dropped
// objects stay until a later read queues them again.
func (s *S3Store) Close() error {
	s.stopped.Do(func() {
		close(s.done)
		for {
			select {
			case job := <-s.deletes:
				s.pending.Finish(job.id)
			default:
				return
			}
		}
	})
	return nil
}

func (s *S3Store) queueDelete(objectKey string) {
	select {
	case <-s.done:
		return
	default:
	}
	id := fmt.Sprintf("%s#%d", objectKey, time.Now().UnixNano())
	s.pending.Start(id)
	select {
	case s.deletes <- s3DeleteJob{id: id, key: objectKey}:
	default:
		// Queue full: drop the job. The object stays until a later read
		// queues it again, which is harmless — expiry is checked on read.
		s.pending.Finish(id)
	}
}

func (s *S3Store) deleteLoop() {
	for {
		select {
		case <-s.done:
			return
		case job := <-s.deletes:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, _ = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(job.key),
			})
			cancel()
			s.pending.Finish(job.id)
		}
	}
}
