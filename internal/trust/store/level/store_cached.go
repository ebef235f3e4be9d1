package level

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
)

// Store is the persistence surface shared by the memory and Postgres stores.
type Store interface {
	Create(ctx context.Context, level *models.TrustLevel) error
	FindByID(ctx context.Context, levelID id.TrustLevelID) (*models.TrustLevel, error)
	FindByCommunityID(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error)
	FindByName(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error)
	Update(ctx context.Context, level *models.TrustLevel) error
	Delete(ctx context.Context, levelID id.TrustLevelID) error
}

// CachedStore keeps each community's level ladder in process for ttl.
// Level names are resolved on every gated request, so FindByName and
// FindByCommunityID read from the cached ladder. Every mutation drops the
// affected community's entry.
type CachedStore struct {
	inner   Store
	cache   *cache.Cache
	metrics CacheRecorder
}

// CacheRecorder counts ladder lookups.
type CacheRecorder interface {
	CacheHit(cache string)
	CacheMiss(cache string)
}

const cacheName = "trust_levels"

type CachedOption func(*CachedStore)

func WithCacheMetrics(r CacheRecorder) CachedOption {
	return func(s *CachedStore) {
		s.metrics = r
	}
}

func NewCachedStore(inner Store, ttl time.Duration, opts ...CachedOption) *CachedStore {
	s := &CachedStore{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedStore) Create(ctx context.Context, level *models.TrustLevel) error {
	err := s.inner.Create(ctx, level)
	s.invalidate(level.CommunityID)
	return err
}

func (s *CachedStore) FindByID(ctx context.Context, levelID id.TrustLevelID) (*models.TrustLevel, error) {
	return s.inner.FindByID(ctx, levelID)
}

func (s *CachedStore) FindByCommunityID(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error) {
	levels, err := s.ladder(ctx, communityID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.TrustLevel, len(levels))
	for i, l := range levels {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

func (s *CachedStore) FindByName(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error) {
	levels, err := s.ladder(ctx, communityID)
	if err != nil {
		return nil, err
	}
	for _, l := range levels {
		if l.Name == name {
			cp := *l
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *CachedStore) Update(ctx context.Context, level *models.TrustLevel) error {
	err := s.inner.Update(ctx, level)
	s.invalidate(level.CommunityID)
	return err
}

// Delete needs the level's community to invalidate, so it reads first.
func (s *CachedStore) Delete(ctx context.Context, levelID id.TrustLevelID) error {
	existing, err := s.inner.FindByID(ctx, levelID)
	if err != nil {
		return err
	}
	err = s.inner.Delete(ctx, levelID)
	s.invalidate(existing.CommunityID)
	return err
}

// Invalidate drops a community's cached ladder.
func (s *CachedStore) Invalidate(communityID id.CommunityID) {
	s.invalidate(communityID)
}

func (s *CachedStore) ladder(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error) {
	key := cacheKey(communityID)
	if v, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.CacheHit(cacheName)
		}
		return v.([]*models.TrustLevel), nil
	}
	if s.metrics != nil {
		s.metrics.CacheMiss(cacheName)
	}
	levels, err := s.inner.FindByCommunityID(ctx, communityID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, levels, cache.DefaultExpiration)
	return levels, nil
}

func (s *CachedStore) invalidate(communityID id.CommunityID) {
	s.cache.Delete(cacheKey(communityID))
}

func cacheKey(communityID id.CommunityID) string {
	return "levels:" + communityID.String()
}
