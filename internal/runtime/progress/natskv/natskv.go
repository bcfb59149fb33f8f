// Package natskv stores progress records in a NATS JetStream key-value
// bucket. JetStream applies expiry per bucket, so the bucket TTL is the
// record TTL.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
	"github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/natsconn"
)

// Bucket is the subset of nats.KeyValue the store uses.
type Bucket interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
}

// Config selects the server and bucket.
type Config struct {
	URL    string
	Bucket string
	TTL    time.Duration
	Name   string
}

// Store implements progress.Store on a KV bucket.
type Store struct {
	bucket Bucket
	ttl    time.Duration
	logger logging.ServiceLogger
	close  func()
}

// Open connects to NATS and binds the bucket, creating it when missing.
func Open(cfg Config, logger logging.ServiceLogger) (*Store, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	client, err := natsconn.Connect(natsconn.Config{URL: cfg.URL, Name: cfg.Name}, logger)
	if err != nil {
		return nil, err
	}

	kv, err := BindBucket(client.JetStream(), cfg.Bucket, cfg.TTL)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Progress store bound to NATS KV", logging.LogFields{
		"bucket": cfg.Bucket,
		"ttl":    cfg.TTL.String(),
	})

	s := New(kv, cfg.TTL, logger)
	s.close = client.Close
	return s, nil
}

// BindBucket returns the named bucket, creating it with ttl if it does not
// exist yet.
func BindBucket(js nats.KeyValueManager, bucket string, ttl time.Duration) (nats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("natskv: bind bucket %s: %w", bucket, err)
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucket,
		Description: "guild relay job progress",
		TTL:         ttl,
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("natskv: create bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// New wraps an already bound bucket.
func New(bucket Bucket, ttl time.Duration, logger logging.ServiceLogger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{bucket: bucket, ttl: ttl, logger: logger}
}

// Key maps a relay key onto the KV key alphabet: ':' is not allowed.
func Key(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.bucket.Get(Key(key))
	if errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted) {
		return nil, errspkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("natskv: get %s: %w", key, err)
	}
	if entry.Operation() != nats.KeyValuePut {
		return nil, errspkg.ErrNotFound
	}
	return entry.Value(), nil
}

// Set writes value. The bucket TTL governs expiry; a ttl longer than the
// bucket's is logged since records would vanish early.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.ttl > 0 && ttl > s.ttl {
		s.logger.Warn("Requested TTL exceeds bucket TTL", logging.LogFields{
			"key":        key,
			"requested":  ttl.String(),
			"bucket_ttl": s.ttl.String(),
		})
	}
	if _, err := s.bucket.Put(Key(key), value); err != nil {
		return fmt.Errorf("natskv: put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, errspkg.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.bucket.Delete(Key(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("natskv: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
