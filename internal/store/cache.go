package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

var ErrCacheMiss = errors.New("cache miss")

// ProjectCache stores resolved projects between handshakes.
type ProjectCache interface {
	Get(ctx context.Context, key string) (*domain.Project, error)
	Set(ctx context.Context, key string, project *domain.Project, ttl time.Duration) error
	BuildKeyByID(projectID string) string
}

// RedisProjectCache implements ProjectCache with go-redis.
type RedisProjectCache struct {
	client *redis.Client
	prefix string
}

// NewRedisProjectCache creates a cache on an existing client.
func NewRedisProjectCache(client *redis.Client, prefix string) *RedisProjectCache {
	return &RedisProjectCache{client: client, prefix: prefix}
}

func (c *RedisProjectCache) BuildKeyByID(projectID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, projectID)
}

func (c *RedisProjectCache) Get(ctx context.Context, key string) (*domain.Project, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var project domain.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &project, nil
}

func (c *RedisProjectCache) Set(ctx context.Context, key string, project *domain.Project, ttl time.Duration) error {
	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// CachedProjectStore is a read-through cache in front of another store.
// Cache failures degrade to the backing store; only hits are cached, so a
// project created after a failed lookup is visible on the next handshake.
type CachedProjectStore struct {
	next  ProjectStore
	cache ProjectCache
	ttl   time.Duration
}

// NewCachedProjectStore wraps next with cache.
func NewCachedProjectStore(next ProjectStore, cache ProjectCache, ttl time.Duration) *CachedProjectStore {
	return &CachedProjectStore{next: next, cache: cache, ttl: ttl}
}

// ValidID implements ProjectStore.
func (s *CachedProjectStore) ValidID(id string) bool {
	return s.next.ValidID(id)
}

// FindByID implements ProjectStore.
func (s *CachedProjectStore) FindByID(ctx context.Context, id string) (*domain.Project, error) {
	l := log.Ctx(ctx)
	key := s.cache.BuildKeyByID(id)

	project, err := s.cache.Get(ctx, key)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l.Warn().Err(err).Str(log.FieldProjectID, id).Msg("project cache read failed")
	}

	project, err = s.next.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, project, s.ttl); err != nil {
		l.Warn().Err(err).Str(log.FieldProjectID, id).Msg("project cache write failed")
	}
	return project, nil
}
