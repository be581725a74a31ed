package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// MemoryConfig configures the in-process publisher.
type MemoryConfig struct {
	// TTL after which an artifact is evicted.
	TTL time.Duration
	// MaxArtifactBytes rejects larger artifacts. Zero means no limit.
	MaxArtifactBytes int
	// MaxCacheMB bounds total memory; the oldest artifacts are evicted
	// first. Zero means unbounded.
	MaxCacheMB int
}

const (
	defaultShards = 64

	// entryOverhead covers the cache entry header, the id and the
	// content type prefix.
	entryOverhead = 1 << 10
)

// shardsFor picks the largest power-of-two shard count whose per-shard
// capacity still fits one maximum-size artifact. The cache splits its cap
// evenly across shards and cannot store an entry larger than one shard.
func shardsFor(capMB, maxBytes int) (int, error) {
	if capMB <= 0 || maxBytes <= 0 {
		return defaultShards, nil
	}
	capBytes := capMB << 20
	need := maxBytes + entryOverhead
	shards := defaultShards
	for shards > 1 && capBytes/shards < need {
		shards /= 2
	}
	if capBytes/shards < need {
		return 0, fmt.Errorf("cache cap of %d MB cannot hold an artifact of %d bytes", capMB, maxBytes)
	}
	return shards, nil
}

// MemoryPublisher keeps artifacts in a bigcache instance.
type MemoryPublisher struct {
	cache    *bigcache.BigCache
	maxBytes int
}

// NewMemoryPublisher creates the cache. Close releases its janitor.
func NewMemoryPublisher(ctx context.Context, cfg MemoryConfig) (*MemoryPublisher, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	shards, err := shardsFor(cfg.MaxCacheMB, cfg.MaxArtifactBytes)
	if err != nil {
		return nil, err
	}

	bc := bigcache.DefaultConfig(ttl)
	bc.Shards = shards
	bc.CleanWindow = ttl / 4
	if bc.CleanWindow > 10*time.Minute {
		bc.CleanWindow = 10 * time.Minute
	}
	if bc.CleanWindow < time.Second {
		bc.CleanWindow = time.Second
	}
	bc.MaxEntriesInWindow = 1024
	bc.MaxEntrySize = 64 << 10
	bc.HardMaxCacheSize = cfg.MaxCacheMB
	bc.Verbose = false

	cache, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, fmt.Errorf("create artifact cache: %w", err)
	}
	return &MemoryPublisher{cache: cache, maxBytes: cfg.MaxArtifactBytes}, nil
}

// Publish stores the artifact. Re-publishing an id replaces it.
func (p *MemoryPublisher) Publish(_ context.Context, id, contentType string, data []byte) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}
	if err := checkSize(data, p.maxBytes); err != nil {
		return "", err
	}
	if err := p.cache.Set(id, encodeEntry(contentType, data)); err != nil {
		return "", fmt.Errorf("store artifact %s: %w", id, err)
	}
	return PathFor(id), nil
}

// Fetch returns the artifact stored under id.
func (p *MemoryPublisher) Fetch(_ context.Context, id string) ([]byte, string, error) {
	entry, err := p.cache.Get(id)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, "", fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, "", fmt.Errorf("fetch artifact %s: %w", id, err)
	}
	return decodeEntry(entry)
}

// Len returns the number of cached artifacts.
func (p *MemoryPublisher) Len() int {
	return p.cache.Len()
}

// Close stops the cache.
func (p *MemoryPublisher) Close() error {
	return p.cache.Close()
}
