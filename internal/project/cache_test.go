package project

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"huddle/pkg/interfaces"
	"huddle/pkg/types"
)

const testProjectID = "64b7f0c2a1d3e4f5a6b7c8d9"

type countingDirectory struct {
	mu       sync.Mutex
	projects map[string]*types.Project
	err      error
	calls    int
}

func (d *countingDirectory) Lookup(_ context.Context, projectID string) (*types.Project, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	p, ok := d.projects[projectID]
	if !ok {
		return nil, interfaces.ErrProjectNotFound
	}
	copied := *p
	return &copied, nil
}

func (d *countingDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func newTestCache(t *testing.T, dir *countingDirectory, opts ...Option) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCache(dir, rdb, zerolog.Nop(), opts...), mr
}

func newDirectory() *countingDirectory {
	return &countingDirectory{projects: map[string]*types.Project{
		testProjectID: {
			ID:        testProjectID,
			Name:      "apollo",
			Members:   []string{"u-1"},
			CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
}

func TestCache_ReadThrough(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir)
	ctx := context.Background()

	first, err := cache.Lookup(ctx, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, "apollo", first.Name)
	assert.True(t, mr.Exists(cacheKey(testProjectID)))
	assert.Equal(t, DefaultTTL, mr.TTL(cacheKey(testProjectID)))

	second, err := cache.Lookup(ctx, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, []string{"u-1"}, second.Members)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, 1, dir.Calls(), "second lookup should be served from redis")
}

func TestCache_NegativeCaching(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir, WithNegativeTTL(10*time.Second))
	ctx := context.Background()
	unknown := "ffffffffffffffffffffffff"

	_, err := cache.Lookup(ctx, unknown)
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)
	_, err = cache.Lookup(ctx, unknown)
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)
	assert.Equal(t, 1, dir.Calls())

	mr.FastForward(11 * time.Second)
	_, err = cache.Lookup(ctx, unknown)
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)
	assert.Equal(t, 2, dir.Calls(), "expired marker should hit the directory again")
}

func TestCache_NegativeCachingDisabled(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir, WithNegativeTTL(0))

	_, err := cache.Lookup(context.Background(), "ffffffffffffffffffffffff")
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)
	assert.False(t, mr.Exists(cacheKey("ffffffffffffffffffffffff")))
}

func TestCache_DirectoryErrorsAreNotCached(t *testing.T) {
	dir := newDirectory()
	dir.err = errors.New("disk on fire")
	cache, mr := newTestCache(t, dir)

	_, err := cache.Lookup(context.Background(), testProjectID)
	assert.EqualError(t, err, "disk on fire")
	assert.False(t, mr.Exists(cacheKey(testProjectID)))
}

func TestCache_RedisDownFallsThrough(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir)
	mr.Close()

	project, err := cache.Lookup(context.Background(), testProjectID)
	require.NoError(t, err)
	assert.Equal(t, "apollo", project.Name)
	assert.Error(t, cache.HealthCheck(context.Background()))
}

func TestCache_CorruptEntryIsReplaced(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir)
	require.NoError(t, mr.Set(cacheKey(testProjectID), "{not json"))

	project, err := cache.Lookup(context.Background(), testProjectID)
	require.NoError(t, err)
	assert.Equal(t, "apollo", project.Name)
	assert.Equal(t, 1, dir.Calls())

	stored, err := mr.Get(cacheKey(testProjectID))
	require.NoError(t, err)
	assert.Contains(t, stored, `"name":"apollo"`)
}

func TestCache_Invalidate(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir)
	ctx := context.Background()

	_, err := cache.Lookup(ctx, testProjectID)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, testProjectID))
	assert.False(t, mr.Exists(cacheKey(testProjectID)))

	_, err = cache.Lookup(ctx, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.Calls())
	assert.NoError(t, cache.HealthCheck(ctx))
}

func TestCache_ImplementsDirectory(t *testing.T) {
	var _ interfaces.ProjectDirectory = (*Cache)(nil)
}

func TestCache_HexCaseSharesOneEntry(t *testing.T) {
	dir := newDirectory()
	cache, mr := newTestCache(t, dir)
	ctx := context.Background()

	upper, err := cache.Lookup(ctx, strings.ToUpper(testProjectID))
	require.NoError(t, err)
	assert.Equal(t, testProjectID, upper.ID)

	_, err = cache.Lookup(ctx, testProjectID)
	require.NoError(t, err)
	assert.Equal(t, 1, dir.Calls(), "both spellings must hit the same cache entry")
	assert.Len(t, mr.Keys(), 1)

	require.NoError(t, cache.Invalidate(ctx, strings.ToUpper(testProjectID)))
	assert.False(t, mr.Exists(cacheKey(testProjectID)))
}
