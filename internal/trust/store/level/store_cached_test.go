package level

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	platformmetrics "trustline/internal/platform/metrics"
	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
)

// countingStore records how often the ladder is read from the backing store.
type countingStore struct {
	*InMemoryStore
	ladderReads int
}

func (c *countingStore) FindByCommunityID(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error) {
	c.ladderReads++
	return c.InMemoryStore.FindByCommunityID(ctx, communityID)
}

type CachedStoreSuite struct {
	suite.Suite
	ctx       context.Context
	inner     *countingStore
	store     *CachedStore
	metrics   *platformmetrics.Metrics
	community id.CommunityID
}

func TestCachedStoreSuite(t *testing.T) {
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.inner = &countingStore{InMemoryStore: NewInMemoryStore()}
	s.metrics = platformmetrics.New(prometheus.NewRegistry())
	s.store = NewCachedStore(s.inner, time.Minute, WithCacheMetrics(s.metrics))
	s.community = id.NewCommunityID()
	s.Require().NoError(s.store.Create(s.ctx, newLevel(s.community, "Stable", 10, time.Now())))
}

func (s *CachedStoreSuite) TestReadsAreServedFromCache() {
	_, err := s.store.FindByName(s.ctx, s.community, "Stable")
	s.Require().NoError(err)
	_, err = s.store.FindByName(s.ctx, s.community, "Stable")
	s.Require().NoError(err)
	_, err = s.store.FindByCommunityID(s.ctx, s.community)
	s.Require().NoError(err)

	s.Equal(1, s.inner.ladderReads)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(cacheName, "miss")))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues(cacheName, "hit")))
}

func (s *CachedStoreSuite) TestMutationsInvalidate() {
	s.Run("create", func() {
		_, err := s.store.FindByName(s.ctx, s.community, "Trusted")
		s.ErrorIs(err, sentinel.ErrNotFound)

		s.Require().NoError(s.store.Create(s.ctx, newLevel(s.community, "Trusted", 50, time.Now())))
		l, err := s.store.FindByName(s.ctx, s.community, "Trusted")
		s.Require().NoError(err)
		s.Equal(50, l.Threshold)
	})

	s.Run("update", func() {
		l, err := s.store.FindByName(s.ctx, s.community, "Stable")
		s.Require().NoError(err)
		l.Threshold = 15
		s.Require().NoError(s.store.Update(s.ctx, l))

		again, err := s.store.FindByName(s.ctx, s.community, "Stable")
		s.Require().NoError(err)
		s.Equal(15, again.Threshold)
	})

	s.Run("delete", func() {
		l, err := s.store.FindByName(s.ctx, s.community, "Stable")
		s.Require().NoError(err)
		s.Require().NoError(s.store.Delete(s.ctx, l.ID))

		_, err = s.store.FindByName(s.ctx, s.community, "Stable")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("delete of an unknown level", func() {
		s.ErrorIs(s.store.Delete(s.ctx, id.NewTrustLevelID()), sentinel.ErrNotFound)
	})
}

func (s *CachedStoreSuite) TestCallersCannotCorruptTheCache() {
	levels, err := s.store.FindByCommunityID(s.ctx, s.community)
	s.Require().NoError(err)
	levels[0].Threshold = 1000

	l, err := s.store.FindByName(s.ctx, s.community, "Stable")
	s.Require().NoError(err)
	s.Equal(10, l.Threshold)
}
