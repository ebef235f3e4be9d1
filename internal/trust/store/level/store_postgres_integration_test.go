//go:build integration

package level_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustline/internal/trust/models"
	"trustline/internal/trust/store/level"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *level.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = level.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "trust_levels"))
}

func newLevel(community id.CommunityID, name string, threshold int) *models.TrustLevel {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.TrustLevel{
		ID:          id.NewTrustLevelID(),
		CommunityID: community,
		Name:        name,
		Threshold:   threshold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresStoreSuite) TestLadder() {
	ctx := context.Background()
	cid := id.NewCommunityID()
	for _, l := range []*models.TrustLevel{
		newLevel(cid, "Trusted", 50),
		newLevel(cid, "New", 0),
		newLevel(cid, "Stable", 10),
	} {
		s.Require().NoError(s.store.Create(ctx, l))
	}

	s.Run("ascending by threshold", func() {
		levels, err := s.store.FindByCommunityID(ctx, cid)
		s.Require().NoError(err)
		s.Require().Len(levels, 3)
		s.Equal("New", levels[0].Name)
		s.Equal("Stable", levels[1].Name)
		s.Equal("Trusted", levels[2].Name)
	})

	s.Run("unique constraint maps to conflict", func() {
		s.ErrorIs(s.store.Create(ctx, newLevel(cid, "Stable", 11)), sentinel.ErrConflict)
	})

	s.Run("exact name match", func() {
		l, err := s.store.FindByName(ctx, cid, "Trusted")
		s.Require().NoError(err)
		s.Equal(50, l.Threshold)
		_, err = s.store.FindByName(ctx, cid, "TRUSTED")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("update and delete", func() {
		l, err := s.store.FindByName(ctx, cid, "Stable")
		s.Require().NoError(err)
		l.Threshold = 20
		l.UpdatedAt = time.Now().UTC()
		s.Require().NoError(s.store.Update(ctx, l))

		found, err := s.store.FindByID(ctx, l.ID)
		s.Require().NoError(err)
		s.Equal(20, found.Threshold)

		s.Require().NoError(s.store.Delete(ctx, l.ID))
		s.ErrorIs(s.store.Delete(ctx, l.ID), sentinel.ErrNotFound)
		_, err = s.store.FindByID(ctx, l.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}
