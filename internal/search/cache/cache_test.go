package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashtree-search/internal/hashtree"
	apperrors "github.com/Adithya-Monish-Kumar-K/hashtree-search/pkg/errors"
)

type memBackend struct {
	mu      sync.Mutex
	data      map[string][]byte
	failGet   bool
	failFlush bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string][]byte)}
}

func (m *memBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("connection refused")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFlush {
		return 0, errors.New("connection refused")
	}
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var apple = hashtree.Record{Key: "apple", Value: "fruit"}

func TestGetOrCompute_CachesResult(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	ctx := context.Background()
	calls := 0
	compute := func() ([]hashtree.Record, error) {
		calls++
		return []hashtree.Record{apple}, nil
	}

	got, hit, err := c.GetOrCompute(ctx, []string{"ap"}, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []hashtree.Record{apple}, got)

	got, hit, err = c.GetOrCompute(ctx, []string{"ap"}, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []hashtree.Record{apple}, got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrCompute_EmptyResultIsCachedAsEmpty(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	ctx := context.Background()
	_, _, err := c.GetOrCompute(ctx, []string{"zz"}, func() ([]hashtree.Record, error) {
		return []hashtree.Record{}, nil
	})
	require.NoError(t, err)

	got, ok := c.Get(ctx, []string{"zz"})
	require.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetOrCompute_PropagatesError(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), []string{"x"}, func() ([]hashtree.Record, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestGetOrCompute_CoalescesConcurrentMisses(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]hashtree.Record, error) {
		calls.Add(1)
		<-release
		return []hashtree.Record{apple}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.GetOrCompute(context.Background(), []string{"apple"}, compute)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestTokenOrderMatters(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	assert.NotEqual(t, c.buildKey([]string{"new", "york"}), c.buildKey([]string{"york", "new"}))
	assert.NotEqual(t, c.buildKey([]string{"ab"}), c.buildKey([]string{"a", "b"}))
}

func TestBumpHidesOldEntries(t *testing.T) {
	c := New(newMemBackend(), time.Minute)
	ctx := context.Background()
	c.Set(ctx, []string{"apple"}, []hashtree.Record{apple})
	_, ok := c.Get(ctx, []string{"apple"})
	require.True(t, ok)

	c.Bump()
	_, ok = c.Get(ctx, []string{"apple"})
	assert.False(t, ok)
}

func TestInvalidateDeletesInstanceKeys(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute)
	other := New(backend, time.Minute)
	ctx := context.Background()
	c.Set(ctx, []string{"apple"}, []hashtree.Record{apple})
	other.Set(ctx, []string{"apple"}, []hashtree.Record{apple})

	require.NoError(t, c.Invalidate(ctx))
	assert.Len(t, backend.data, 1)
}

func TestGet_BackendErrorIsMiss(t *testing.T) {
	backend := newMemBackend()
	backend.failGet = true
	c := New(backend, time.Minute)

	_, ok := c.Get(context.Background(), []string{"apple"})
	assert.False(t, ok)
	_, misses := c.Stats()
	assert.Equal(t, int64(1), misses)
}

func TestInvalidate_BackendDown(t *testing.T) {
	backend := newMemBackend()
	backend.failFlush = true
	c := New(backend, time.Minute)

	err := c.Invalidate(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrCacheUnavailable)
}
