package level

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store     *InMemoryStore
	ctx       context.Context
	community id.CommunityID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
	s.community = id.NewCommunityID()
}

func newLevel(community id.CommunityID, name string, threshold int, at time.Time) *models.TrustLevel {
	return &models.TrustLevel{
		ID:          id.NewTrustLevelID(),
		CommunityID: community,
		Name:        name,
		Threshold:   threshold,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func (s *InMemoryStoreSuite) TestOrderingAndLookup() {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trusted := newLevel(s.community, "Trusted", 50, base)
	newcomer := newLevel(s.community, "New", 0, base.Add(time.Second))
	stable := newLevel(s.community, "Stable", 10, base.Add(2*time.Second))
	twin := newLevel(s.community, "Steady", 10, base.Add(3*time.Second))
	for _, l := range []*models.TrustLevel{trusted, newcomer, stable, twin} {
		s.Require().NoError(s.store.Create(s.ctx, l))
	}
	s.Require().NoError(s.store.Create(s.ctx, newLevel(id.NewCommunityID(), "Other", 1, base)))

	s.Run("listed ascending by threshold, duplicates allowed", func() {
		levels, err := s.store.FindByCommunityID(s.ctx, s.community)
		s.Require().NoError(err)
		var names []string
		for _, l := range levels {
			names = append(names, l.Name)
		}
		s.Equal([]string{"New", "Stable", "Steady", "Trusted"}, names)
	})

	s.Run("name lookup is exact", func() {
		l, err := s.store.FindByName(s.ctx, s.community, "Stable")
		s.Require().NoError(err)
		s.Equal(10, l.Threshold)

		_, err = s.store.FindByName(s.ctx, s.community, "stable")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("empty community lists nothing", func() {
		levels, err := s.store.FindByCommunityID(s.ctx, id.NewCommunityID())
		s.Require().NoError(err)
		s.Empty(levels)
	})
}

func (s *InMemoryStoreSuite) TestNameUniqueness() {
	now := time.Now()
	s.Require().NoError(s.store.Create(s.ctx, newLevel(s.community, "Trusted", 50, now)))

	s.Run("duplicate name conflicts", func() {
		err := s.store.Create(s.ctx, newLevel(s.community, "Trusted", 60, now))
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("case differs is a different name", func() {
		s.NoError(s.store.Create(s.ctx, newLevel(s.community, "trusted", 60, now)))
	})

	s.Run("same name in another community is fine", func() {
		s.NoError(s.store.Create(s.ctx, newLevel(id.NewCommunityID(), "Trusted", 50, now)))
	})

	s.Run("rename onto an existing name conflicts", func() {
		other := newLevel(s.community, "Veteran", 90, now)
		s.Require().NoError(s.store.Create(s.ctx, other))
		other.Name = "Trusted"
		s.ErrorIs(s.store.Update(s.ctx, other), sentinel.ErrConflict)
	})
}

func (s *InMemoryStoreSuite) TestUpdateAndDelete() {
	l := newLevel(s.community, "Stable", 10, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, l))

	s.Run("update keeps the name when unchanged", func() {
		l.Threshold = 12
		s.Require().NoError(s.store.Update(s.ctx, l))
		found, err := s.store.FindByID(s.ctx, l.ID)
		s.Require().NoError(err)
		s.Equal(12, found.Threshold)
	})

	s.Run("returned levels are copies", func() {
		found, err := s.store.FindByID(s.ctx, l.ID)
		s.Require().NoError(err)
		found.Threshold = 999
		again, err := s.store.FindByID(s.ctx, l.ID)
		s.Require().NoError(err)
		s.Equal(12, again.Threshold)
	})

	s.Run("delete then lookups miss", func() {
		s.Require().NoError(s.store.Delete(s.ctx, l.ID))
		_, err := s.store.FindByID(s.ctx, l.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		s.ErrorIs(s.store.Delete(s.ctx, l.ID), sentinel.ErrNotFound)
		s.ErrorIs(s.store.Update(s.ctx, l), sentinel.ErrNotFound)
	})
}
