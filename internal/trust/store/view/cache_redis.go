package view

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
)

// Store is the view persistence surface shared by the memory and Postgres
// stores and the Redis decorator.
type Store interface {
	Get(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error)
	UpsertZero(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error)
	SetPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, points int) error
	AdjustPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, delta int) (int, error)
	ListByCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustViewBreakdown, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.TrustView, error)
	ListAllForCommunity(ctx context.Context, communityID id.CommunityID) ([]*models.TrustView, error)
	GetBatchForUser(ctx context.Context, userID id.UserID, communityIDs []id.CommunityID) (map[id.CommunityID]*models.TrustView, error)
}

const viewKeyPrefix = "trust:view:"

// RedisCache is a read-through cache for single-view lookups. Writes go to
// the inner store and then delete the cached entry, so a reader sees at most
// ttl of staleness if a write's transaction is still open when it reads.
// Redis errors never fail a request: reads fall back to the inner store.
type RedisCache struct {
	inner  Store
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
	rec    CacheRecorder
}

// CacheRecorder counts cache lookups.
type CacheRecorder interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

const cacheName = "trust_view"

type CacheOption func(*RedisCache)

func WithCacheMetrics(r CacheRecorder) CacheOption {
	return func(c *RedisCache) {
		c.rec = r
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *RedisCache) {
		c.logger = logger
	}
}

func NewRedisCache(inner Store, client redis.Cmdable, ttl time.Duration, opts ...CacheOption) *RedisCache {
	c := &RedisCache{inner: inner, client: client, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type cachedView struct {
	ID        string    `json:"id"`
	Points    int       `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *RedisCache) Get(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	key := cacheKey(communityID, userID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cv cachedView
		if jsonErr := json.Unmarshal(raw, &cv); jsonErr == nil {
			if vid, parseErr := uuid.Parse(cv.ID); parseErr == nil {
				c.observe(true)
				return &models.TrustView{
					ID:          id.TrustViewID(vid),
					CommunityID: communityID,
					UserID:      userID,
					Points:      cv.Points,
					UpdatedAt:   cv.UpdatedAt,
				}, nil
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		c.warn(ctx, "trust view cache read failed", err)
	}
	c.observe(false)

	v, err := c.inner.Get(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, v)
	return v, nil
}

func (c *RedisCache) UpsertZero(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	v, err := c.inner.UpsertZero(ctx, communityID, userID)
	c.Invalidate(ctx, communityID, userID)
	return v, err
}

func (c *RedisCache) SetPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, points int) error {
	err := c.inner.SetPoints(ctx, communityID, userID, points)
	c.Invalidate(ctx, communityID, userID)
	return err
}

func (c *RedisCache) AdjustPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, delta int) (int, error) {
	points, err := c.inner.AdjustPoints(ctx, communityID, userID, delta)
	c.Invalidate(ctx, communityID, userID)
	return points, err
}

func (c *RedisCache) ListByCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustViewBreakdown, error) {
	return c.inner.ListByCommunity(ctx, communityID, limit, offset)
}

func (c *RedisCache) ListByUser(ctx context.Context, userID id.UserID) ([]*models.TrustView, error) {
	return c.inner.ListByUser(ctx, userID)
}

func (c *RedisCache) ListAllForCommunity(ctx context.Context, communityID id.CommunityID) ([]*models.TrustView, error) {
	return c.inner.ListAllForCommunity(ctx, communityID)
}

func (c *RedisCache) GetBatchForUser(ctx context.Context, userID id.UserID, communityIDs []id.CommunityID) (map[id.CommunityID]*models.TrustView, error) {
	return c.inner.GetBatchForUser(ctx, userID, communityIDs)
}

// Invalidate drops the cached view for (community, user).
func (c *RedisCache) Invalidate(ctx context.Context, communityID id.CommunityID, userID id.UserID) {
	if err := c.client.Del(ctx, cacheKey(communityID, userID)).Err(); err != nil {
		c.warn(ctx, "trust view cache invalidation failed", err)
	}
}

func (c *RedisCache) store(ctx context.Context, v *models.TrustView) {
	raw, err := json.Marshal(cachedView{ID: v.ID.String(), Points: v.Points, UpdatedAt: v.UpdatedAt})
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(v.CommunityID, v.UserID), raw, c.ttl).Err(); err != nil {
		c.warn(ctx, "trust view cache write failed", err)
	}
}

func (c *RedisCache) observe(hit bool) {
	switch {
	case c.rec == nil:
	case hit:
		c.rec.CacheHit(cacheName)
	default:
		c.rec.CacheMiss(cacheName)
	}
}

func (c *RedisCache) warn(ctx context.Context, msg string, err error) {
	if c.logger != nil {
		c.logger.WarnContext(ctx, msg, "error", err)
	}
}

func cacheKey(communityID id.CommunityID, userID id.UserID) string {
	return viewKeyPrefix + communityID.String() + ":" + userID.String()
}
