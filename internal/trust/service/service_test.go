package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"trustline/internal/authz"
	"trustline/internal/community"
	"trustline/internal/trust/metrics"
	"trustline/internal/trust/models"
	"trustline/internal/trust/ports/mocks"
	"trustline/internal/trust/store/award"
	"trustline/internal/trust/store/event"
	"trustline/internal/trust/store/grant"
	"trustline/internal/trust/store/history"
	"trustline/internal/trust/store/level"
	"trustline/internal/trust/store/view"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/audit/publisher"
	auditmemory "trustline/pkg/platform/audit/store/memory"
	"trustline/pkg/platform/circuit"
)

type ServiceSuite struct {
	suite.Suite
	ctx  context.Context
	ctrl *gomock.Controller

	oracle      *mocks.MockAuthorizationOracle
	communities *community.InMemoryStore
	members     *community.Service
	awards      *award.InMemoryStore
	grants      *grant.InMemoryStore
	history     *history.InMemoryStore
	events      *event.InMemoryStore
	views       *view.InMemoryStore
	levels      *level.InMemoryStore
	audit       *auditmemory.InMemoryStore
	metrics     *metrics.Metrics
	service     *Service

	community id.CommunityID
	admin     id.UserID
	alice     id.UserID
	bob       id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.oracle = mocks.NewMockAuthorizationOracle(s.ctrl)

	s.communities = community.NewInMemoryStore()
	s.members = community.NewService(s.communities)
	s.awards = award.NewInMemoryStore()
	s.grants = grant.NewInMemoryStore()
	s.history = history.NewInMemoryStore()
	s.events = event.NewInMemoryStore()
	s.views = view.NewInMemoryStore(s.awards, s.grants)
	s.levels = level.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())

	s.community = id.NewCommunityID()
	s.admin = id.NewUserID()
	s.alice = id.NewUserID()
	s.bob = id.NewUserID()
	s.Require().NoError(s.communities.Create(s.ctx, &community.Community{ID: s.community, Name: "Riverside"}))
	s.addMember(s.admin, community.RoleAdmin)
	s.addMember(s.alice, community.RoleMember)
	s.addMember(s.bob, community.RoleMember)

	s.service = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
	}
	svc, err := New(s.stores(), s.levels, s.members, s.members, s.oracle, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

// newTupleService builds a service over the same stores with an in-process
// tuple oracle, so permission checks see exactly what was synced.
func (s *ServiceSuite) newTupleService(opts ...Option) (*Service, *authz.TupleOracle) {
	oracle, err := authz.NewTupleOracle(s.members)
	s.Require().NoError(err)
	base := []Option{
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
		WithMetrics(s.metrics),
		WithRequirementWriter(s.members),
	}
	svc, err := New(s.stores(), s.levels, s.members, s.members, oracle, append(base, opts...)...)
	s.Require().NoError(err)
	return svc, oracle
}

func (s *ServiceSuite) stores() Stores {
	return Stores{Awards: s.awards, Grants: s.grants, History: s.history, Events: s.events, Views: s.views}
}

func (s *ServiceSuite) addMember(userID id.UserID, role string) {
	s.Require().NoError(s.communities.AddMember(s.ctx, &community.Member{
		CommunityID: s.community,
		UserID:      userID,
		Roles:       []string{role},
	}))
}

func (s *ServiceSuite) permitAll() {
	s.oracle.EXPECT().CheckAccess(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
	s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (s *ServiceSuite) pointsOf(userID id.UserID) int {
	v, err := s.views.Get(s.ctx, s.community, userID)
	s.Require().NoError(err)
	return v.Points
}

// requireReconciled checks the view equals the ledger recomputation.
func (s *ServiceSuite) requireReconciled(userID id.UserID) {
	count, err := s.awards.CountToUser(s.ctx, s.community, userID)
	s.Require().NoError(err)
	amount, err := s.grants.GetAmount(s.ctx, s.community, userID)
	s.Require().NoError(err)
	s.Equal(models.Recompute(count, amount), s.pointsOf(userID))
}

func (s *ServiceSuite) auditActions() []string {
	events, err := s.audit.ListAll(s.ctx)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *ServiceSuite) TestNew() {
	s.Run("rejects missing collaborators", func() {
		_, err := New(Stores{}, s.levels, s.members, s.members, s.oracle)
		s.Require().Error(err)

		_, err = New(s.stores(), nil, s.members, s.members, s.oracle)
		s.Require().ErrorContains(err, "level store is required")

		_, err = New(s.stores(), s.levels, s.members, s.members, nil)
		s.Require().ErrorContains(err, "authorization oracle is required")
	})
}

func (s *ServiceSuite) TestAwardTrust() {
	s.Run("self award is rejected", func() {
		_, err := s.service.AwardTrust(s.ctx, s.community, s.alice, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Contains(err.Error(), "Cannot award trust to yourself")
	})

	s.Run("non-member giver is forbidden", func() {
		_, err := s.service.AwardTrust(s.ctx, s.community, id.NewUserID(), s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("oracle denial is forbidden and creates nothing", func() {
		s.oracle.EXPECT().CheckAccess(gomock.Any(), s.bob, "community", s.community.String(), PermissionAwardTrust).Return(false, nil)

		_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		exists, err := s.awards.Exists(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.False(exists)
		s.Contains(s.auditActions(), string(audit.EventTrustActionDenied))
	})

	s.Run("oracle failure is unavailable", func() {
		s.oracle.EXPECT().CheckAccess(gomock.Any(), s.bob, gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("connection refused"))

		_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("award gives the recipient one point and one history entry", func() {
		s.permitAll()

		a, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.Equal(s.bob, a.FromUserID)
		s.Equal(1, s.pointsOf(s.alice))
		s.requireReconciled(s.alice)

		entries, err := s.history.ListForUser(s.ctx, s.community, s.alice, 10, 0)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.ActionAward, entries[0].Action)
		s.Equal(1, entries[0].PointsDelta)
		s.Equal(s.bob, *entries[0].FromUserID)
		s.Contains(s.auditActions(), string(audit.EventTrustAwarded))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AwardsCreated))
	})

	s.Run("duplicate award conflicts and keeps one award", func() {
		_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		count, err := s.awards.CountToUser(s.ctx, s.community, s.alice)
		s.Require().NoError(err)
		s.Equal(1, count)
		s.Equal(1, s.pointsOf(s.alice))
	})
}

func (s *ServiceSuite) TestRemoveTrust() {
	s.permitAll()

	s.Run("removing a missing award is invalid", func() {
		_, err := s.service.RemoveTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("award then remove returns to the original score", func() {
		_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.Equal(1, s.pointsOf(s.alice))

		removed, err := s.service.RemoveTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.Equal(s.alice, removed.ToUserID)
		s.Equal(0, s.pointsOf(s.alice))
		s.requireReconciled(s.alice)

		entries, err := s.history.ListForUser(s.ctx, s.community, s.alice, 10, 0)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal(models.ActionRemove, entries[0].Action)
		s.Equal(-1, entries[0].PointsDelta)
	})
}

func (s *ServiceSuite) TestAdminGrants() {
	s.permitAll()

	s.Run("non-admin cannot set a grant", func() {
		_, err := s.service.SetAdminGrant(s.ctx, s.community, s.bob, s.alice, 5)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("negative amount is invalid", func() {
		_, err := s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, -1)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("award plus grant adds up", func() {
		_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		_, err = s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, 5)
		s.Require().NoError(err)
		s.Equal(6, s.pointsOf(s.alice))
		s.requireReconciled(s.alice)
	})

	s.Run("lowering a grant records the signed change", func() {
		_, err := s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.bob, 10)
		s.Require().NoError(err)
		g, err := s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.bob, 3)
		s.Require().NoError(err)
		s.Equal(3, g.TrustAmount)

		entries, err := s.history.ListForUser(s.ctx, s.community, s.bob, 10, 0)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal(models.ActionAdminGrant, entries[0].Action)
		s.Equal(-7, entries[0].PointsDelta)
		s.Equal(10, entries[1].PointsDelta)
		s.Equal(3, s.pointsOf(s.bob))
	})

	s.Run("delete negates the previous amount", func() {
		deleted, err := s.service.DeleteAdminGrant(s.ctx, s.community, s.admin, s.bob)
		s.Require().NoError(err)
		s.Equal(3, deleted.TrustAmount)
		s.Equal(0, s.pointsOf(s.bob))

		entries, err := s.history.ListForUser(s.ctx, s.community, s.bob, 1, 0)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(-3, entries[0].PointsDelta)
	})

	s.Run("deleting a missing grant is not found", func() {
		_, err := s.service.DeleteAdminGrant(s.ctx, s.community, s.admin, s.bob)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("only admins list grants", func() {
		_, err := s.service.GetAdminGrants(s.ctx, s.community, s.bob)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		grants, err := s.service.GetAdminGrants(s.ctx, s.community, s.admin)
		s.Require().NoError(err)
		s.Len(grants, 1)
	})
}

func (s *ServiceSuite) TestRecalculatePoints() {
	s.permitAll()
	_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
	s.Require().NoError(err)

	s.Run("corrects drift from increments", func() {
		_, err := s.views.AdjustPoints(s.ctx, s.community, s.alice, 4)
		s.Require().NoError(err)
		s.Equal(5, s.pointsOf(s.alice))

		v, err := s.service.RecalculatePoints(s.ctx, s.community, s.alice)
		s.Require().NoError(err)
		s.Equal(1, v.Points)
		s.requireReconciled(s.alice)
	})

	s.Run("is idempotent for a user with no ledger rows", func() {
		stranger := id.NewUserID()
		for range 2 {
			v, err := s.service.RecalculatePoints(s.ctx, s.community, stranger)
			s.Require().NoError(err)
			s.Equal(0, v.Points)
		}
		all, err := s.views.ListAllForCommunity(s.ctx, s.community)
		s.Require().NoError(err)
		seen := 0
		for _, v := range all {
			if v.UserID == stranger {
				seen++
			}
		}
		s.Equal(1, seen)
	})
}

func (s *ServiceSuite) TestRecordShareRedeemed() {
	s.permitAll()

	s.Run("no points between two untrusted users", func() {
		awarded, err := s.service.RecordShareRedeemed(s.ctx, ShareRedemption{
			CommunityID:    s.community,
			GiverUserID:    s.alice,
			ReceiverUserID: s.bob,
			EntityID:       "share-1",
		})
		s.Require().NoError(err)
		s.False(awarded)
		s.Equal(0, s.pointsOf(s.alice))
		s.Equal(0, s.pointsOf(s.bob))

		events, err := s.events.ListByCommunity(s.ctx, s.community, 10, 0)
		s.Require().NoError(err)
		s.Empty(events)
	})

	s.Run("an admin giver earns both parties a point", func() {
		awarded, err := s.service.RecordShareRedeemed(s.ctx, ShareRedemption{
			CommunityID:    s.community,
			GiverUserID:    s.admin,
			ReceiverUserID: s.bob,
			ActorUserID:    &s.admin,
			EntityID:       "share-2",
		})
		s.Require().NoError(err)
		s.True(awarded)
		s.Equal(1, s.pointsOf(s.admin))
		s.Equal(1, s.pointsOf(s.bob))

		events, err := s.events.ListByUser(s.ctx, s.community, s.bob, 10, 0)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		e := events[0]
		s.Equal(models.EventTypeShareRedeemed, e.Type)
		s.Equal(models.EntityTypeShare, e.EntityType)
		s.Equal("share-2", e.EntityID)
		s.Equal(1, e.PointsDeltaA)
		s.Equal(1, e.PointsDeltaB)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.SharesRedeemed.WithLabelValues("awarded")))
	})

	s.Run("a user with points is trusted", func() {
		awarded, err := s.service.RecordShareRedeemed(s.ctx, ShareRedemption{
			CommunityID:    s.community,
			GiverUserID:    s.bob,
			ReceiverUserID: s.alice,
		})
		s.Require().NoError(err)
		s.True(awarded)
		s.Equal(2, s.pointsOf(s.bob))
		s.Equal(1, s.pointsOf(s.alice))
	})
}

func (s *ServiceSuite) TestIsTrusted() {
	s.permitAll()

	trusted, err := s.service.IsTrusted(s.ctx, s.community, s.admin)
	s.Require().NoError(err)
	s.True(trusted)

	trusted, err = s.service.IsTrusted(s.ctx, s.community, s.alice)
	s.Require().NoError(err)
	s.False(trusted)

	_, err = s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
	s.Require().NoError(err)
	trusted, err = s.service.IsTrusted(s.ctx, s.community, s.alice)
	s.Require().NoError(err)
	s.True(trusted)
}

func (s *ServiceSuite) seedLevelsAndRequirements() {
	for _, l := range []struct {
		name      string
		threshold int
	}{{"New", 0}, {"Stable", 10}, {"Trusted", 50}} {
		s.Require().NoError(s.levels.Create(s.ctx, &models.TrustLevel{
			ID:          id.NewTrustLevelID(),
			CommunityID: s.community,
			Name:        l.name,
			Threshold:   l.threshold,
		}))
	}
	s.Require().NoError(s.communities.SetRequirement(s.ctx, s.community, "minTrustToAwardTrust", models.Level("Stable")))
	s.Require().NoError(s.communities.SetRequirement(s.ctx, s.community, "minTrustForPolls", models.Number(25)))
}

func (s *ServiceSuite) TestGetTrustTimeline() {
	s.permitAll()
	s.seedLevelsAndRequirements()
	_, err := s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, 12)
	s.Require().NoError(err)

	tl, err := s.service.GetTrustTimeline(s.ctx, s.community, s.alice)
	s.Require().NoError(err)
	s.Equal(12, tl.UserTrustScore)
	s.Require().Len(tl.Timeline, 4)

	for i := 1; i < len(tl.Timeline); i++ {
		s.Less(tl.Timeline[i-1].Threshold, tl.Timeline[i].Threshold)
	}
	for _, e := range tl.Timeline {
		s.Equal(tl.UserTrustScore >= e.Threshold, e.Unlocked)
		s.NotNil(e.Permissions)
	}

	s.Equal(0, tl.Timeline[0].Threshold)
	s.Equal("New", tl.Timeline[0].TrustLevel.Name)
	s.Len(tl.Timeline[0].Permissions, len(models.Features)-2)

	s.Equal(10, tl.Timeline[1].Threshold)
	s.Equal("Stable", tl.Timeline[1].TrustLevel.Name)
	s.Equal([]string{"Award trust to others"}, tl.Timeline[1].Permissions)

	s.Equal(25, tl.Timeline[2].Threshold)
	s.Nil(tl.Timeline[2].TrustLevel)
	s.Equal([]string{"Create polls"}, tl.Timeline[2].Permissions)
	s.False(tl.Timeline[2].Unlocked)

	s.Equal(50, tl.Timeline[3].Threshold)
	s.Equal("Trusted", tl.Timeline[3].TrustLevel.Name)
	s.Empty(tl.Timeline[3].Permissions)

	s.Run("non-member is forbidden", func() {
		_, err := s.service.GetTrustTimeline(s.ctx, s.community, id.NewUserID())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestGetTrustMeAndCanUseFeature() {
	s.permitAll()
	s.seedLevelsAndRequirements()

	me, err := s.service.GetTrustMe(s.ctx, s.community, s.alice)
	s.Require().NoError(err)
	s.Equal(0, me.Points)
	s.False(me.IsAdmin)
	s.False(me.CanAwardTrust)
	s.Equal(10, me.Thresholds[models.FeatureTrustAward])
	s.Len(me.Thresholds, len(models.Features))

	adminMe, err := s.service.GetTrustMe(s.ctx, s.community, s.admin)
	s.Require().NoError(err)
	s.True(adminMe.IsAdmin)
	s.True(adminMe.CanAwardTrust)

	ok, err := s.service.CanUseFeature(s.ctx, s.community, s.alice, models.FeaturePollCreate)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, 25)
	s.Require().NoError(err)
	ok, err = s.service.CanUseFeature(s.ctx, s.community, s.alice, models.FeaturePollCreate)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.CanUseFeature(s.ctx, s.community, id.NewUserID(), models.FeatureTrustView)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.CanUseFeature(s.ctx, s.community, s.alice, "teleport")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestReads() {
	s.permitAll()
	_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
	s.Require().NoError(err)

	s.Run("untouched user gets a zero view", func() {
		v, err := s.service.GetTrustView(s.ctx, s.community, s.alice, s.admin)
		s.Require().NoError(err)
		s.Equal(0, v.Points)
		s.Equal(id.TrustViewID{}, v.ID)
	})

	s.Run("community listing carries the breakdown", func() {
		views, err := s.service.ListCommunityTrust(s.ctx, s.community, s.bob, models.NewPage(1, 10))
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(1, views[0].PeerAwards)
	})

	s.Run("award listings", func() {
		has, err := s.service.HasAwardedTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.True(has)

		mine, err := s.service.ListMyAwards(s.ctx, s.community, s.bob)
		s.Require().NoError(err)
		s.Len(mine, 1)

		toAlice, err := s.service.ListAwardsToUser(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.Len(toAlice, 1)
	})

	s.Run("across communities pages in memory", func() {
		views, err := s.service.ListMyTrustAcrossCommunities(s.ctx, s.alice, models.NewPage(1, 10))
		s.Require().NoError(err)
		s.Len(views, 1)

		views, err = s.service.ListMyTrustAcrossCommunities(s.ctx, s.alice, models.NewPage(3, 10))
		s.Require().NoError(err)
		s.Empty(views)
	})

	s.Run("hand-built pages are clamped", func() {
		for _, page := range []models.Page{{}, {Page: 0, Limit: 10}, {Page: -2, Limit: -1}} {
			views, err := s.service.ListMyTrustAcrossCommunities(s.ctx, s.alice, page)
			s.Require().NoError(err)
			s.Len(views, 1)

			entries, err := s.service.GetTrustHistory(s.ctx, s.community, s.alice, s.alice, page)
			s.Require().NoError(err)
			s.NotEmpty(entries)
		}
	})
}

func (s *ServiceSuite) TestGetEventTimeline() {
	s.permitAll()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, b := s.alice, s.bob
	for i, e := range []*models.TrustEvent{
		{SubjectUserIDA: &a, SubjectUserIDB: &b, PointsDeltaA: 1, PointsDeltaB: 1},
		{SubjectUserIDA: &b, SubjectUserIDB: &a, PointsDeltaA: 1, PointsDeltaB: 2},
		{SubjectUserIDA: &a, PointsDeltaA: -1},
	} {
		e.ID = id.NewTrustEventID()
		e.CommunityID = s.community
		e.Type = models.EventTypeShareRedeemed
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		s.Require().NoError(s.events.Create(s.ctx, e))
	}

	entries, err := s.service.GetEventTimeline(s.ctx, s.community, s.bob, s.alice)
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	s.Equal([]int{-1, 2, 1}, []int{entries[0].Delta, entries[1].Delta, entries[2].Delta})
	s.Equal([]int{2, 3, 1}, []int{entries[0].CumulativeTrust, entries[1].CumulativeTrust, entries[2].CumulativeTrust})
}

func (s *ServiceSuite) TestRoleSyncFailures() {
	s.oracle.EXPECT().CheckAccess(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()

	s.Run("hard failure is returned after the award commits", func() {
		s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), s.alice, s.community, 1, gomock.Any()).Return(errors.New("oracle down"))

		_, err := s.service.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		has, err := s.service.HasAwardedTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().NoError(err)
		s.True(has)
		s.Contains(s.auditActions(), string(audit.EventRoleSyncFailed))
	})

	s.Run("open breaker defers and flush replays", func() {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		breaker := circuit.New("test-sync",
			circuit.WithFailureThreshold(1),
			circuit.WithCooldown(time.Minute),
			circuit.WithClock(func() time.Time { return now }),
		)
		svc := s.newService(WithSyncBreaker(breaker))

		s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), s.admin, s.community, gomock.Any(), gomock.Any()).Return(errors.New("oracle down"))
		_, err := svc.AwardTrust(s.ctx, s.community, s.bob, s.admin)
		s.Require().NoError(err)
		s.True(breaker.IsOpen())
		s.Equal(1, svc.PendingSyncs())

		// open breaker parks without calling the oracle
		_, err = svc.AwardTrust(s.ctx, s.community, s.alice, s.bob)
		s.Require().NoError(err)
		s.Equal(2, svc.PendingSyncs())
		s.Contains(s.auditActions(), string(audit.EventRoleSyncDeferred))

		now = now.Add(2 * time.Minute)
		s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), s.admin, s.community, 1, gomock.Any()).Return(nil)
		s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), s.bob, s.community, 1, gomock.Any()).Return(nil)

		flushed, err := svc.FlushDeferredSyncs(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, flushed)
		s.Equal(0, svc.PendingSyncs())
		s.False(breaker.IsOpen())
	})
}

func (s *ServiceSuite) TestSyncRolesThresholds() {
	s.seedLevelsAndRequirements()

	s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), s.alice, s.community, 0, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ id.UserID, _ id.CommunityID, _ int, thresholds map[string]int) error {
			s.Len(thresholds, len(models.Features))
			s.Equal(10, thresholds["trust_trust_granter"])
			s.Equal(25, thresholds["trust_poll_creator"])
			s.Equal(0, thresholds["trust_forum_viewer"])
			return nil
		})
	s.Require().NoError(s.service.SyncRoles(s.ctx, s.community, s.alice))

	s.Run("dangling level fails with not found", func() {
		stable, err := s.levels.FindByName(s.ctx, s.community, "Stable")
		s.Require().NoError(err)
		s.Require().NoError(s.levels.Delete(s.ctx, stable.ID))

		err = s.service.SyncRoles(s.ctx, s.community, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestReconcileCommunity() {
	s.permitAll()
	s.seedLevelsAndRequirements()
	_, err := s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, 9)
	s.Require().NoError(err)
	_, err = s.service.SetAdminGrant(s.ctx, s.community, s.admin, s.bob, 30)
	s.Require().NoError(err)
	awarded, err := s.service.RecordShareRedeemed(s.ctx, ShareRedemption{
		CommunityID:    s.community,
		GiverUserID:    s.bob,
		ReceiverUserID: s.alice,
		EntityID:       "share-7",
	})
	s.Require().NoError(err)
	s.Require().True(awarded)

	// a fresh oracle holds no tuples, as after a restart without Redis
	svc, oracle := s.newTupleService()
	result, err := svc.ReconcileCommunity(s.ctx, s.community)
	s.Require().NoError(err)
	s.Equal(2, result.Checked)
	s.Equal(2, result.Drifted)
	s.Equal(3, result.Synced, "every member is resynced, including the admin with no view")
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.DriftDetected))

	s.Run("share points survive", func() {
		s.Equal(10, s.pointsOf(s.alice))
		s.Equal(31, s.pointsOf(s.bob))
	})

	s.Run("roles follow the stored score", func() {
		roles, err := oracle.TrustRoles(s.ctx, s.community, s.alice)
		s.Require().NoError(err)
		s.Contains(roles, "trust_trust_granter", "10 share-inclusive points meet Stable")
		s.NotContains(roles, "trust_poll_creator")

		roles, err = oracle.TrustRoles(s.ctx, s.community, s.bob)
		s.Require().NoError(err)
		s.Contains(roles, "trust_poll_creator")
	})

	s.Run("recalculation is the explicit reset", func() {
		v, err := svc.RecalculatePoints(s.ctx, s.community, s.alice)
		s.Require().NoError(err)
		s.Equal(9, v.Points)

		again, err := svc.ReconcileCommunity(s.ctx, s.community)
		s.Require().NoError(err)
		s.Equal(1, again.Drifted, "only bob still carries share points")
	})
}

func (s *ServiceSuite) TestResyncCommunityRoles() {
	s.Run("members without a view sync at zero", func() {
		svc, oracle := s.newTupleService()
		allowed, err := oracle.CheckAccess(s.ctx, s.alice, "community", s.community.String(), PermissionAwardTrust)
		s.Require().NoError(err)
		s.False(allowed)

		n, err := svc.ResyncCommunityRoles(s.ctx, s.community)
		s.Require().NoError(err)
		s.Equal(3, n)

		allowed, err = oracle.CheckAccess(s.ctx, s.alice, "community", s.community.String(), PermissionAwardTrust)
		s.Require().NoError(err)
		s.True(allowed)
	})

	s.Run("a failing member does not stop the rest", func() {
		s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), s.alice, s.community, 0, gomock.Any()).
			Return(errors.New("connection refused"))
		s.oracle.EXPECT().SyncTrustRoles(gomock.Any(), gomock.Not(s.alice), s.community, 0, gomock.Any()).
			Return(nil).Times(2)

		n, err := s.service.ResyncCommunityRoles(s.ctx, s.community)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Equal(2, n)
		s.Contains(s.auditActions(), string(audit.EventRoleSyncFailed))
	})

	s.Run("unresolvable thresholds fail before any sync", func() {
		s.Require().NoError(s.communities.SetRequirement(s.ctx, s.community, "minTrustForPolls", models.Level("Missing")))
		n, err := s.service.ResyncCommunityRoles(s.ctx, s.community)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Zero(n)
	})
}

func (s *ServiceSuite) TestUpdateTrustRequirementResyncsRoles() {
	svc, oracle := s.newTupleService()

	s.Run("fresh member can award once the requirement is zero", func() {
		_, err := svc.AwardTrust(s.ctx, s.community, s.alice, s.bob)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "no tuples synced yet")

		_, err = svc.UpdateTrustRequirement(s.ctx, s.community, s.admin, models.FeatureTrustAward, json.RawMessage(`0`))
		s.Require().NoError(err)

		_, err = svc.AwardTrust(s.ctx, s.community, s.alice, s.bob)
		s.Require().NoError(err)
		s.Equal(1, s.pointsOf(s.bob))
	})

	s.Run("raising the requirement revokes the role", func() {
		allowed, err := oracle.CheckAccess(s.ctx, s.bob, "community", s.community.String(), PermissionAwardTrust)
		s.Require().NoError(err)
		s.Require().True(allowed)

		_, err = svc.UpdateTrustRequirement(s.ctx, s.community, s.admin, models.FeatureTrustAward, json.RawMessage(`50`))
		s.Require().NoError(err)

		_, err = svc.AwardTrust(s.ctx, s.community, s.bob, s.alice)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejected writes change nothing", func() {
		_, err := svc.UpdateTrustRequirement(s.ctx, s.community, s.alice, models.FeatureTrustAward, json.RawMessage(`0`))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		roles, err := oracle.TrustRoles(s.ctx, s.community, s.bob)
		s.Require().NoError(err)
		s.NotContains(roles, "trust_trust_granter")
	})

	s.Run("writer errors skip the resync", func() {
		writer := mocks.NewMockRequirementWriter(s.ctrl)
		writer.EXPECT().UpdateTrustRequirement(gomock.Any(), s.community, s.admin, models.FeaturePollCreate, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidRequirement, "Trust requirement must be valid JSON"))
		svc := s.newService(WithRequirementWriter(writer))

		_, err := svc.UpdateTrustRequirement(s.ctx, s.community, s.admin, models.FeaturePollCreate, json.RawMessage(`{`))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequirement))
	})

	s.Run("requires a writer", func() {
		_, err := s.service.UpdateTrustRequirement(s.ctx, s.community, s.admin, models.FeatureTrustAward, json.RawMessage(`0`))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestLevelChangeResyncsRoles() {
	s.seedLevelsAndRequirements()
	svc, oracle := s.newTupleService()
	levels := NewLevelService(s.levels, s.members, s.members, WithRoleResync(svc))

	_, err := svc.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, 10)
	s.Require().NoError(err)
	allowed, err := oracle.CheckAccess(s.ctx, s.alice, "community", s.community.String(), PermissionAwardTrust)
	s.Require().NoError(err)
	s.Require().True(allowed)

	stable, err := s.levels.FindByName(s.ctx, s.community, "Stable")
	s.Require().NoError(err)

	s.Run("raising a referenced level revokes", func() {
		threshold := 20
		_, err := levels.UpdateLevel(s.ctx, stable.ID, s.admin, LevelUpdate{Threshold: &threshold})
		s.Require().NoError(err)

		allowed, err := oracle.CheckAccess(s.ctx, s.alice, "community", s.community.String(), PermissionAwardTrust)
		s.Require().NoError(err)
		s.False(allowed)
	})

	s.Run("lowering it grants again", func() {
		threshold := 5
		_, err := levels.UpdateLevel(s.ctx, stable.ID, s.admin, LevelUpdate{Threshold: &threshold})
		s.Require().NoError(err)

		allowed, err := oracle.CheckAccess(s.ctx, s.alice, "community", s.community.String(), PermissionAwardTrust)
		s.Require().NoError(err)
		s.True(allowed)
	})
}

func (s *ServiceSuite) TestSyncNewMember() {
	svc, oracle := s.newTupleService()
	carol := id.NewUserID()
	s.addMember(carol, community.RoleMember)

	s.Require().NoError(svc.SyncNewMember(s.ctx, s.community, carol))
	allowed, err := oracle.CheckAccess(s.ctx, carol, "community", s.community.String(), PermissionAwardTrust)
	s.Require().NoError(err)
	s.True(allowed)

	s.Run("non-members are rejected", func() {
		err := svc.SyncNewMember(s.ctx, s.community, id.NewUserID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// invalidatingViews records the committed score each invalidation observes.
type invalidatingViews struct {
	*view.InMemoryStore

	mu   sync.Mutex
	seen map[id.UserID]int
}

func (v *invalidatingViews) Invalidate(ctx context.Context, communityID id.CommunityID, userID id.UserID) {
	points := -1
	if cur, err := v.InMemoryStore.Get(ctx, communityID, userID); err == nil {
		points = cur.Points
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seen[userID] = points
}

func (s *ServiceSuite) TestCachedViewsInvalidatedAfterCommit() {
	s.permitAll()
	views := &invalidatingViews{InMemoryStore: s.views, seen: make(map[id.UserID]int)}
	stores := s.stores()
	stores.Views = views
	svc, err := New(stores, s.levels, s.members, s.members, s.oracle, WithMetrics(s.metrics))
	s.Require().NoError(err)

	_, err = svc.AwardTrust(s.ctx, s.community, s.alice, s.bob)
	s.Require().NoError(err)
	s.Equal(map[id.UserID]int{s.bob: 1}, views.seen)

	_, err = svc.SetAdminGrant(s.ctx, s.community, s.admin, s.alice, 7)
	s.Require().NoError(err)
	s.Equal(7, views.seen[s.alice])

	awarded, err := svc.RecordShareRedeemed(s.ctx, ShareRedemption{
		CommunityID:    s.community,
		GiverUserID:    s.alice,
		ReceiverUserID: s.bob,
		EntityID:       "share-9",
	})
	s.Require().NoError(err)
	s.Require().True(awarded)
	s.Equal(8, views.seen[s.alice])
	s.Equal(2, views.seen[s.bob])

	_, err = svc.RemoveTrust(s.ctx, s.community, s.alice, s.bob)
	s.Require().NoError(err)
	s.Equal(0, views.seen[s.bob], "removal recalculates from the ledgers")
}
