package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Memory publisher
// =============================================================================

func newMemory(t *testing.T, cfg MemoryConfig) *MemoryPublisher {
	t.Helper()
	p, err := NewMemoryPublisher(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestMemoryPublishFetch(t *testing.T) {
	p := newMemory(t, MemoryConfig{TTL: time.Hour})
	ctx := context.Background()

	path, err := p.Publish(ctx, "3f2c", "application/json", []byte(`{"proof":1}`))
	require.NoError(t, err)
	assert.Equal(t, "/3f2c", path)

	data, ct, err := p.Fetch(ctx, "3f2c")
	require.NoError(t, err)
	assert.Equal(t, `{"proof":1}`, string(data))
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, 1, p.Len())
}

func TestMemoryFetchMissing(t *testing.T) {
	p := newMemory(t, MemoryConfig{})
	_, _, err := p.Fetch(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryTooLarge(t *testing.T) {
	p := newMemory(t, MemoryConfig{MaxArtifactBytes: 4})
	_, err := p.Publish(context.Background(), "id", "application/json", []byte("12345"))
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestMemoryCapEvictsOldest(t *testing.T) {
	const size = 10 << 10
	p := newMemory(t, MemoryConfig{TTL: time.Hour, MaxArtifactBytes: 100 << 10, MaxCacheMB: 1})
	ctx := context.Background()

	data := make([]byte, size)
	for i := 0; i < 400; i++ {
		_, err := p.Publish(ctx, fmt.Sprintf("artifact-%03d", i), "application/json", data)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, p.Len(), (1<<20)/size, "cache must stay within its cap")
	got, _, err := p.Fetch(ctx, "artifact-399")
	require.NoError(t, err)
	assert.Len(t, got, size)
	_, _, err = p.Fetch(ctx, "artifact-000")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryCapTooSmall(t *testing.T) {
	_, err := NewMemoryPublisher(context.Background(), MemoryConfig{MaxArtifactBytes: 2 << 20, MaxCacheMB: 1})
	assert.Error(t, err)
}

func TestShardsFor(t *testing.T) {
	tests := []struct {
		capMB, maxBytes, want int
	}{
		{0, 16 << 20, defaultShards},
		{512, 0, defaultShards},
		{512, 16 << 20, 16},
		{4096, 1 << 20, defaultShards},
		{1, 100 << 10, 8},
	}
	for _, tt := range tests {
		got, err := shardsFor(tt.capMB, tt.maxBytes)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "cap=%dMB max=%d", tt.capMB, tt.maxBytes)
	}
}

func TestInvalidIDs(t *testing.T) {
	p := newMemory(t, MemoryConfig{})
	for _, id := range []string{"", "a/b", "a?b", "a#b"} {
		_, err := p.Publish(context.Background(), id, "application/json", []byte("{}"))
		assert.True(t, errors.Is(err, ErrInvalidID), "id %q", id)
	}
}

func TestEntryEncoding(t *testing.T) {
	data, ct, err := decodeEntry(encodeEntry("application/json", []byte("a\x00b")))
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.Equal(t, []byte("a\x00b"), data)

	_, _, err = decodeEntry([]byte("no separator"))
	assert.Error(t, err)
}

// =============================================================================
// Redis publisher
// =============================================================================

type fakeRedis struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	pingErr error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value []byte, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = append([]byte(nil), value...)
	f.ttls[key] = exp
	return nil
}

func (f *fakeRedis) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	if !ok {
		return nil, errRedisNil
	}
	return v, nil
}

func (f *fakeRedis) Ping(context.Context) error { return f.pingErr }

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublisherWithFake(t *testing.T) {
	fake := newFakeRedis()
	p, err := newRedisPublisher(context.Background(), fake, RedisConfig{TTL: 2 * time.Hour})
	require.NoError(t, err)

	ctx := context.Background()
	path, err := p.Publish(ctx, "abc", "application/json", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "/abc", path)
	assert.Contains(t, fake.entries, "chatproof:artifact:abc")
	assert.Equal(t, 2*time.Hour, fake.ttls["chatproof:artifact:abc"])

	data, ct, err := p.Fetch(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Equal(t, "application/json", ct)

	_, _, err = p.Fetch(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisPublisherPingFailure(t *testing.T) {
	fake := newFakeRedis()
	fake.pingErr = errors.New("connection refused")

	_, err := newRedisPublisher(context.Background(), fake, RedisConfig{})
	require.Error(t, err)
	assert.True(t, fake.closed)
}

func TestRedisPublisherRequiresAddr(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(RedisConfig{Addr: "cache:6379", DB: 2, DialTimeout: 750 * time.Millisecond})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 750*time.Millisecond, opts.DialTimeout)

	assert.Zero(t, redisOptions(RedisConfig{Addr: "cache:6379"}).DialTimeout)
}

func TestRedisPublisherLive(t *testing.T) {
	addr := os.Getenv("CHATPROOF_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATPROOF_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	p, err := NewRedisPublisher(ctx, RedisConfig{
		Addr:      addr,
		KeyPrefix: "chatproof:test:",
		TTL:       time.Minute,
	})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Publish(ctx, "live", "application/json", []byte(`{"ok":true}`))
	require.NoError(t, err)

	data, _, err := p.Fetch(ctx, "live")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}
