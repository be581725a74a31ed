package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the subset of go-redis the publisher needs.
type redisClient interface {
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Ping(ctx context.Context) error
	Close() error
}

// errRedisNil marks a missing key in redisClient.Get.
var errRedisNil = errors.New("redis: nil")

type goRedisClient struct {
	client *redis.Client
}

func (c *goRedisClient) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *goRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errRedisNil
	}
	return b, err
}

func (c *goRedisClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *goRedisClient) Close() error {
	return c.client.Close()
}

// RedisConfig configures the shared publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces artifact keys.
	KeyPrefix string
	TTL       time.Duration

	MaxArtifactBytes int
	DialTimeout      time.Duration
}

// RedisPublisher stores artifacts in Redis so several daemons, or a
// separate web tier, can serve them.
type RedisPublisher struct {
	client    redisClient
	keyPrefix string
	ttl       time.Duration
	maxBytes  int
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	return newRedisPublisher(ctx, &goRedisClient{client: redis.NewClient(redisOptions(cfg))}, cfg)
}

func redisOptions(cfg RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	return opts
}

func newRedisPublisher(ctx context.Context, client redisClient, cfg RedisConfig) (*RedisPublisher, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chatproof:artifact:"
	}
	return &RedisPublisher{
		client:    client,
		keyPrefix: prefix,
		ttl:       cfg.TTL,
		maxBytes:  cfg.MaxArtifactBytes,
	}, nil
}

func (p *RedisPublisher) key(id string) string {
	return p.keyPrefix + id
}

// Publish stores the artifact with the configured TTL. A zero TTL keeps
// it until evicted by Redis.
func (p *RedisPublisher) Publish(ctx context.Context, id, contentType string, data []byte) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	if err := checkSize(data, p.maxBytes); err != nil {
		return "", err
	}
	if err := p.client.Set(ctx, p.key(id), encodeEntry(contentType, data), p.ttl); err != nil {
		return "", fmt.Errorf("store artifact %s: %w", id, err)
	}
	return PathFor(id), nil
}

// Fetch returns the artifact stored under id.
func (p *RedisPublisher) Fetch(ctx context.Context, id string) ([]byte, string, error) {
	entry, err := p.client.Get(ctx, p.key(id))
	if err != nil {
		if errors.Is(err, errRedisNil) {
			return nil, "", fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, "", fmt.Errorf("fetch artifact %s: %w", id, err)
	}
	return decodeEntry(entry)
}

// Ping checks the connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close closes the connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
