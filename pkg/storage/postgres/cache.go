package postgres

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quarryhost/quarry/pkg/models"
	"github.com/quarryhost/quarry/pkg/observability"
)

// ProjectSource loads projects from the database by ID
type ProjectSource interface {
	GetProjects(ctx context.Context, ids []int64) ([]*models.Project, error)
}

// ProjectCache is a two-level read-through cache for project lookups:
// an in-process LRU in front of Redis, falling through to PostgreSQL.
// Visibility filtering resolves every version and batch request through
// project lookups, so these rows are by far the hottest reads.
//
// Mutating code paths must call Invalidate after writes; the Redis TTL
// bounds staleness for instances that miss the invalidation.
type ProjectCache struct {
	source  ProjectSource
	redis   *RedisClient // nil disables the L2 tier
	l1      *lru.Cache[int64, *models.Project]
	metrics *observability.Metrics
}

// NewProjectCache creates a project cache with the given L1 capacity
func NewProjectCache(source ProjectSource, redis *RedisClient, l1Size int, metrics *observability.Metrics) (*ProjectCache, error) {
	if l1Size <= 0 {
		l1Size = 1024
	}
	l1, err := lru.New[int64, *models.Project](l1Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create l1 cache: %w", err)
	}

	return &ProjectCache{
		source:  source,
		redis:   redis,
		l1:      l1,
		metrics: metrics,
	}, nil
}

// GetProjects returns the projects for the given IDs, preserving only
// rows that exist. Missing IDs are silently dropped, matching the
// database source behavior.
func (c *ProjectCache) GetProjects(ctx context.Context, ids []int64) ([]*models.Project, error) {
	found := make(map[int64]*models.Project, len(ids))
	var missing []int64

	for _, id := range ids {
		if project, ok := c.l1.Get(id); ok {
			c.recordHit("project_l1")
			found[id] = project
			continue
		}
		c.recordMiss("project_l1")
		missing = append(missing, id)
	}

	if c.redis != nil && len(missing) > 0 {
		still := missing[:0]
		for _, id := range missing {
			project, err := c.redis.GetProject(ctx, id)
			if err != nil {
				// Redis trouble degrades to a database read
				still = append(still, id)
				continue
			}
			if project == nil {
				c.recordMiss("project_l2")
				still = append(still, id)
				continue
			}
			c.recordHit("project_l2")
			found[id] = project
			c.l1.Add(id, project)
		}
		missing = still
	}

	if len(missing) > 0 {
		projects, err := c.source.GetProjects(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, project := range projects {
			found[project.ID] = project
			c.l1.Add(project.ID, project)
			if c.redis != nil {
				// Best effort; a failed backfill only costs a future miss
				_ = c.redis.SetProject(ctx, project)
			}
		}
	}

	result := make([]*models.Project, 0, len(found))
	for _, id := range ids {
		if project, ok := found[id]; ok {
			result = append(result, project)
			delete(found, id)
		}
	}

	return result, nil
}

// Invalidate removes a project from both cache tiers
func (c *ProjectCache) Invalidate(ctx context.Context, id int64) error {
	c.l1.Remove(id)
	if c.redis != nil {
		return c.redis.InvalidateProject(ctx, id)
	}
	return nil
}

// Purge clears the in-process tier
func (c *ProjectCache) Purge() {
	c.l1.Purge()
}

func (c *ProjectCache) recordHit(cache string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(cache).Inc()
	}
}

func (c *ProjectCache) recordMiss(cache string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}
