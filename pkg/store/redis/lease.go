// Package redis provides a Redis-backed store.LeaseStore so that editors on
// different machines sharing one scene directory can serialize their edits.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rmax-ai/rigbind/pkg/store"
)

const keyPrefix = "rigbind:lease:"

type RedisLeaseStore struct {
	client *redis.Client
}

var _ store.LeaseStore = (*RedisLeaseStore)(nil)

func NewRedisLeaseStore(client *redis.Client) *RedisLeaseStore {
	return &RedisLeaseStore{client: client}
}

// Dial connects to addr and verifies the connection with a PING.
func Dial(ctx context.Context, addr string) (*RedisLeaseStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return NewRedisLeaseStore(client), nil
}

// Close closes the underlying client.
func (s *RedisLeaseStore) Close() error {
	return s.client.Close()
}

func (s *RedisLeaseStore) makeKey(name string) string {
	return keyPrefix + name
}

func (s *RedisLeaseStore) epochKey(name string) string {
	return keyPrefix + name + ":epoch"
}

func (s *RedisLeaseStore) versionKey(name string) string {
	return keyPrefix + name + ":version"
}

func (s *RedisLeaseStore) Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error) {
	key := s.makeKey(name)

	// NX: only set if nobody holds the scene.
	success, err := s.client.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	if success {
		pipe := s.client.TxPipeline()
		pipe.Incr(ctx, s.epochKey(name))
		pipe.Incr(ctx, s.versionKey(name))
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("failed to bump lease epoch: %w", err)
		}
		return true, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET; the caller can retry.
			return false, nil
		}
		return false, fmt.Errorf("failed to check existing lease: %w", err)
	}

	if val == holderID {
		return true, s.Renew(ctx, name, holderID, ttl)
	}

	return false, nil
}

// renewScript extends the expiry only if the caller still holds the key.
var renewScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		redis.call("INCR", KEYS[2])
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// releaseScript deletes the key only if the caller still holds it.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

func (s *RedisLeaseStore) Renew(ctx context.Context, name, holderID string, ttl time.Duration) error {
	ttlMs := int64(ttl / time.Millisecond)

	res, err := renewScript.Run(ctx, s.client, []string{s.makeKey(name), s.versionKey(name)}, holderID, ttlMs).Int64()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}
	if res != 1 {
		return fmt.Errorf("lease lost or stolen")
	}
	return nil
}

// Release is a no-op when holderID no longer holds the lease.
func (s *RedisLeaseStore) Release(ctx context.Context, name, holderID string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.makeKey(name)}, holderID).Err(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

func (s *RedisLeaseStore) Get(ctx context.Context, name string) (*store.Lease, error) {
	key := s.makeKey(name)

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get lease ttl: %w", err)
	}

	epoch, err := s.client.Get(ctx, s.epochKey(name)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get lease epoch: %w", err)
	}
	version, err := s.client.Get(ctx, s.versionKey(name)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get lease version: %w", err)
	}

	return &store.Lease{
		Name:      name,
		HolderID:  val,
		ExpiresAt: time.Now().Add(ttl),
		Version:   version,
		Epoch:     epoch,
	}, nil
}
