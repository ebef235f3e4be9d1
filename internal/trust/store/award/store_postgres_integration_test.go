//go:build integration

package award_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustline/internal/trust/models"
	"trustline/internal/trust/store/award"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *award.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = award.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "trust_awards"))
}

func (s *PostgresStoreSuite) TestLedger() {
	ctx := context.Background()
	cid := id.NewCommunityID()
	alice, bob, carol := id.NewUserID(), id.NewUserID(), id.NewUserID()
	base := time.Now().UTC()

	for i, pair := range [][2]id.UserID{{alice, carol}, {bob, carol}, {alice, bob}} {
		s.Require().NoError(s.store.Create(ctx, &models.TrustAward{
			ID: id.NewAwardID(), CommunityID: cid, FromUserID: pair[0], ToUserID: pair[1],
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	s.Run("unique triple", func() {
		err := s.store.Create(ctx, &models.TrustAward{ID: id.NewAwardID(), CommunityID: cid, FromUserID: alice, ToUserID: carol, CreatedAt: base})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("lists newest first and counts", func() {
		awards, err := s.store.ListToUser(ctx, cid, carol)
		s.Require().NoError(err)
		s.Require().Len(awards, 2)
		s.Equal(bob, awards[0].FromUserID)

		n, err := s.store.CountFromUser(ctx, cid, alice)
		s.Require().NoError(err)
		s.Equal(2, n)
	})

	s.Run("delete returns the row once", func() {
		deleted, err := s.store.Delete(ctx, cid, alice, bob)
		s.Require().NoError(err)
		s.Require().NotNil(deleted)
		s.Equal(bob, deleted.ToUserID)

		again, err := s.store.Delete(ctx, cid, alice, bob)
		s.NoError(err)
		s.Nil(again)

		exists, err := s.store.Exists(ctx, cid, alice, bob)
		s.Require().NoError(err)
		s.False(exists)
	})
}
