package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
)

type InMemoryStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *InMemoryStore
	c1    id.CommunityID
	c2    id.CommunityID
	user  id.UserID
	peer  id.UserID
	base  time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = NewInMemoryStore()
	s.c1, s.c2 = id.NewCommunityID(), id.NewCommunityID()
	s.user, s.peer = id.NewUserID(), id.NewUserID()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.append(s.c1, models.ActionAward, 1, 0)
	s.append(s.c1, models.ActionAdminGrant, 5, 1)
	s.append(s.c2, models.ActionAward, 1, 2)
	s.append(s.c1, models.ActionRemove, -1, 3)
}

func (s *InMemoryStoreSuite) append(c id.CommunityID, action models.HistoryAction, delta int, minute int) {
	from := s.peer
	s.Require().NoError(s.store.Append(s.ctx, &models.TrustHistoryEntry{
		ID:          id.NewHistoryEntryID(),
		CommunityID: c,
		FromUserID:  &from,
		ToUserID:    s.user,
		Action:      action,
		PointsDelta: delta,
		CreatedAt:   s.base.Add(time.Duration(minute) * time.Minute),
	}))
}

func (s *InMemoryStoreSuite) TestNewestFirstWithPaging() {
	s.Run("user in community", func() {
		entries, err := s.store.ListForUser(s.ctx, s.c1, s.user, 10, 0)
		s.Require().NoError(err)
		s.Require().Len(entries, 3)
		s.Equal(models.ActionRemove, entries[0].Action)
		s.Equal(models.ActionAward, entries[2].Action)
	})

	s.Run("limit and offset", func() {
		entries, err := s.store.ListForUser(s.ctx, s.c1, s.user, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.ActionAdminGrant, entries[0].Action)
	})

	s.Run("offset past the end", func() {
		entries, err := s.store.ListForUser(s.ctx, s.c1, s.user, 10, 50)
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("all communities", func() {
		entries, err := s.store.ListForUserAllCommunities(s.ctx, s.user, 0, 0)
		s.Require().NoError(err)
		s.Len(entries, 4)
	})

	s.Run("community", func() {
		entries, err := s.store.ListForCommunity(s.ctx, s.c2, 10, 0)
		s.Require().NoError(err)
		s.Len(entries, 1)
	})
}

func (s *InMemoryStoreSuite) TestChronologicalFilter() {
	s.Run("unfiltered is oldest first", func() {
		entries, err := s.store.ListForUserChronological(s.ctx, s.user, models.HistoryFilter{})
		s.Require().NoError(err)
		s.Require().Len(entries, 4)
		s.True(entries[0].CreatedAt.Before(entries[3].CreatedAt))
	})

	s.Run("community and window", func() {
		c := s.c1
		entries, err := s.store.ListForUserChronological(s.ctx, s.user, models.HistoryFilter{
			CommunityID: &c,
			Start:       s.base.Add(time.Minute),
			End:         s.base.Add(3 * time.Minute),
		})
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.ActionAdminGrant, entries[0].Action)
	})
}

func (s *InMemoryStoreSuite) TestAppendOnlyCopies() {
	entries, err := s.store.ListForUser(s.ctx, s.c1, s.user, 10, 0)
	s.Require().NoError(err)
	entries[0].PointsDelta = 100

	again, err := s.store.ListForUser(s.ctx, s.c1, s.user, 10, 0)
	s.Require().NoError(err)
	s.Equal(-1, again[0].PointsDelta)
}
