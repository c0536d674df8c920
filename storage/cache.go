package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"devcollab/domain"
)

var _ domain.ProjectEvicter = (*ProjectCache)(nil)

// ProjectCache wraps a directory with Redis-backed caching of project lookups.
// Users are always read from the base directory so that a rotated access
// token is picked up immediately.
type ProjectCache struct {
	base  domain.Directory
	redis *redis.Client
	ttl   time.Duration
}

// NewProjectCache creates a caching directory using the provided Redis client and TTL.
func NewProjectCache(base domain.Directory, client *redis.Client, ttl time.Duration) *ProjectCache {
	if base == nil {
		panic("storage.NewProjectCache: base directory is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &ProjectCache{base: base, redis: client, ttl: ttl}
}

func (c *ProjectCache) Project(ctx context.Context, id string) (*domain.Project, error) {
	if p, ok := c.loadProject(ctx, id); ok {
		return p, nil
	}

	p, err := c.base.Project(ctx, id)
	if err != nil {
		return nil, err
	}

	c.storeProject(ctx, p)
	return p, nil
}

func (c *ProjectCache) User(ctx context.Context, id string) (*domain.User, error) {
	return c.base.User(ctx, id)
}

// Evict drops the cached copy of a project.
func (c *ProjectCache) Evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, projectCacheKey(id)).Result()
}

func (c *ProjectCache) loadProject(ctx context.Context, id string) (*domain.Project, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, projectCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing directory without failing.
			_ = c.redis.Del(ctx, projectCacheKey(id)).Err()
		}
		return nil, false
	}
	var p domain.Project
	if err := sonic.Unmarshal(data, &p); err != nil {
		_ = c.redis.Del(ctx, projectCacheKey(id)).Err()
		return nil, false
	}
	return &p, true
}

func (c *ProjectCache) storeProject(ctx context.Context, p *domain.Project) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(p)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, projectCacheKey(p.ID), data, c.ttl).Err()
}

func projectCacheKey(id string) string {
	return "project:" + id
}
