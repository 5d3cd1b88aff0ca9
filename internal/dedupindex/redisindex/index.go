// Package redisindex backs the cross-run dedup index with Redis, giving the
// crawler a shared identity set across replicas with key expiry.
package redisindex

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "jobsift"

// Index implements ingest.DedupIndex on a Redis client. Entries expire after
// TTL so delisted postings eventually age out of the set.
type Index struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given URL. A zero ttl keeps entries forever.
func New(ctx context.Context, redisURL string, ttl time.Duration) (*Index, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Index{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client *redis.Client, ttl time.Duration) *Index {
	return &Index{client: client, ttl: ttl}
}

// Close releases the client.
func (i *Index) Close() error {
	return i.client.Close()
}

// HasKey reports whether the identity key was indexed by any prior run.
func (i *Index) HasKey(ctx context.Context, site, externalID string) (bool, error) {
	n, err := i.client.Exists(ctx, idKey(site, externalID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// HasContent reports whether the content hash was indexed by any prior run.
func (i *Index) HasContent(ctx context.Context, site, contentHash string) (bool, error) {
	n, err := i.client.Exists(ctx, contentKey(site, contentHash)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Add stores both identity keys with the configured TTL.
func (i *Index) Add(ctx context.Context, site, externalID, contentHash string) error {
	pipe := i.client.Pipeline()
	pipe.Set(ctx, idKey(site, externalID), "1", i.ttl)
	if contentHash != "" {
		pipe.Set(ctx, contentKey(site, contentHash), "1", i.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func idKey(site, externalID string) string {
	return fmt.Sprintf("%s:%s:id:%s", keyPrefix, site, externalID)
}

func contentKey(site, contentHash string) string {
	return fmt.Sprintf("%s:%s:content:%s", keyPrefix, site, contentHash)
}
