//go:build integration

package history_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustline/internal/trust/models"
	"trustline/internal/trust/store/history"
	id "trustline/pkg/domain"
	"trustline/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *history.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = history.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "trust_history"))
}

func (s *PostgresStoreSuite) TestOrderingAndFilters() {
	ctx := context.Background()
	c1, c2 := id.NewCommunityID(), id.NewCommunityID()
	user, admin := id.NewUserID(), id.NewUserID()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []*models.TrustHistoryEntry{
		{CommunityID: c1, FromUserID: &admin, Action: models.ActionAward, PointsDelta: 1},
		{CommunityID: c1, Action: models.ActionAdminGrant, PointsDelta: 5},
		{CommunityID: c2, FromUserID: &admin, Action: models.ActionAward, PointsDelta: 1},
	}
	for i, e := range entries {
		e.ID = id.NewHistoryEntryID()
		e.ToUserID = user
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.store.Append(ctx, e))
	}

	s.Run("newest first with nullable from", func() {
		got, err := s.store.ListForUser(ctx, c1, user, 10, 0)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(models.ActionAdminGrant, got[0].Action)
		s.Nil(got[0].FromUserID)
		s.Require().NotNil(got[1].FromUserID)
		s.Equal(admin, *got[1].FromUserID)
	})

	s.Run("paging", func() {
		got, err := s.store.ListForUserAllCommunities(ctx, user, 1, 1)
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(5, got[0].PointsDelta)
	})

	s.Run("chronological filter", func() {
		got, err := s.store.ListForUserChronological(ctx, user, models.HistoryFilter{Start: base.Add(time.Minute)})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(c1, got[0].CommunityID)
		s.Equal(c2, got[1].CommunityID)
	})
}
