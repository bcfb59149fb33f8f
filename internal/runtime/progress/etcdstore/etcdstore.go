// Package etcdstore stores progress records in etcd. Keys are attached to
// leases so they expire on their own; a key keeps its lease across rewrites,
// so a long job holds one lease per key instead of one per write.
package etcdstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	errspkg "github.com/drblury/guildrelay/internal/runtime/errors"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "/guildrelay/"

// Client is the subset of *clientv3.Client the store uses.
type Client interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Delete(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error)
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Close() error
}

// Config holds connection settings.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	OpTimeout   time.Duration
	Prefix      string
}

// Store implements progress.Store on etcd.
type Store struct {
	client  Client
	timeout time.Duration
	prefix  string
	now     func() time.Time

	mu     sync.Mutex
	leases map[string]lease
}

type lease struct {
	id        clientv3.LeaseID
	seconds   int64
	expiresAt time.Time
}

// Open connects to the cluster.
func Open(cfg Config) (*Store, error) {
	dial := cfg.DialTimeout
	if dial == 0 {
		dial = 5 * time.Second
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: dial,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client Client, cfg Config) *Store {
	timeout := cfg.OpTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		client:  client,
		timeout: timeout,
		prefix:  prefix,
		now:     time.Now,
		leases:  make(map[string]lease),
	}
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("etcd: get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, errspkg.ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

// Set writes value under a lease of ttl, rounded up to whole seconds. The
// first write of a key grants the lease and later writes reuse it, so the key
// expires ttl after its first write. A non-positive ttl stores the key
// without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	full := s.key(key)
	if ttl <= 0 {
		s.forget(full)
		if _, err := s.client.Put(ctx, full, string(value)); err != nil {
			return fmt.Errorf("etcd: put %s: %w", key, err)
		}
		return nil
	}

	id, fresh, err := s.leaseFor(ctx, full, LeaseSeconds(ttl))
	if err != nil {
		return fmt.Errorf("etcd: grant lease for %s: %w", key, err)
	}
	_, err = s.client.Put(ctx, full, string(value), clientv3.WithLease(id))
	if errors.Is(err, rpctypes.ErrLeaseNotFound) && !fresh {
		// Revoked or expired on the server before our local expiry.
		s.forget(full)
		if id, _, err = s.leaseFor(ctx, full, LeaseSeconds(ttl)); err != nil {
			return fmt.Errorf("etcd: grant lease for %s: %w", key, err)
		}
		_, err = s.client.Put(ctx, full, string(value), clientv3.WithLease(id))
	}
	if err != nil {
		return fmt.Errorf("etcd: put %s: %w", key, err)
	}
	return nil
}

// leaseFor returns the live lease of key, granting one when there is none.
// fresh reports a new grant.
func (s *Store) leaseFor(ctx context.Context, key string, seconds int64) (clientv3.LeaseID, bool, error) {
	now := s.now()
	s.mu.Lock()
	l, ok := s.leases[key]
	s.mu.Unlock()
	if ok && l.seconds == seconds && now.Before(l.expiresAt) {
		return l.id, false, nil
	}

	resp, err := s.client.Grant(ctx, seconds)
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, old := range s.leases {
		if !now.Before(old.expiresAt) {
			delete(s.leases, k)
		}
	}
	// One second of slack so a key is never written against a lease that
	// is about to lapse.
	s.leases[key] = lease{
		id:        resp.ID,
		seconds:   seconds,
		expiresAt: now.Add(time.Duration(seconds-1) * time.Second),
	}
	return resp.ID, true, nil
}

func (s *Store) forget(key string) {
	s.mu.Lock()
	delete(s.leases, key)
	s.mu.Unlock()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.Get(ctx, s.key(key), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("etcd: exists %s: %w", key, err)
	}
	return resp.Count > 0, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.forget(s.key(key))
	if _, err := s.client.Delete(ctx, s.key(key)); err != nil {
		return fmt.Errorf("etcd: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// LeaseSeconds converts ttl to the whole-second granularity etcd leases use.
func LeaseSeconds(ttl time.Duration) int64 {
	secs := int64(ttl / time.Second)
	if ttl%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}
