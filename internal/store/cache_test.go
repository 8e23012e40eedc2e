package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
)

type countingStore struct {
	projects map[string]*domain.Project
	calls    int
	err      error
}

func (s *countingStore) ValidID(id string) bool { return id != "" }

func (s *countingStore) FindByID(_ context.Context, id string) (*domain.Project, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	return p, nil
}

type mapCache struct {
	entries map[string]*domain.Project
	getErr  error
	setErr  error
}

func newMapCache() *mapCache { return &mapCache{entries: map[string]*domain.Project{}} }

func (c *mapCache) BuildKeyByID(id string) string { return "test:id:" + id }

func (c *mapCache) Get(_ context.Context, key string) (*domain.Project, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	p, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return p, nil
}

func (c *mapCache) Set(_ context.Context, key string, p *domain.Project, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = p
	return nil
}

func TestCachedProjectStoreReadThrough(t *testing.T) {
	inner := &countingStore{projects: map[string]*domain.Project{"p1": {ID: "p1", Name: "one"}}}
	cache := newMapCache()
	s := NewCachedProjectStore(inner, cache, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := s.FindByID(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "one", p.Name)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Contains(t, cache.entries, "test:id:p1")
}

func TestCachedProjectStoreDoesNotCacheMisses(t *testing.T) {
	inner := &countingStore{projects: map[string]*domain.Project{}}
	s := NewCachedProjectStore(inner, newMapCache(), time.Minute)

	_, err := s.FindByID(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrProjectNotFound)

	inner.projects["p1"] = &domain.Project{ID: "p1"}
	p, err := s.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
}

func TestCachedProjectStoreDegradesOnCacheFailure(t *testing.T) {
	inner := &countingStore{projects: map[string]*domain.Project{"p1": {ID: "p1"}}}
	cache := newMapCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")
	s := NewCachedProjectStore(inner, cache, time.Minute)

	p, err := s.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.True(t, s.ValidID("p1"))
}

func TestCachedProjectStorePropagatesBackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	s := NewCachedProjectStore(&countingStore{err: boom}, newMapCache(), time.Minute)

	_, err := s.FindByID(context.Background(), "p1")
	assert.ErrorIs(t, err, boom)
}
