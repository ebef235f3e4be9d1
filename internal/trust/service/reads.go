package service

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/errgroup"

	"trustline/internal/community"
	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/requestcontext"
)

// GetTrustView returns the user's view. A user never touched by the engine
// gets a zero view with no ID rather than an error.
func (s *Service) GetTrustView(ctx context.Context, communityID id.CommunityID, requesterID, userID id.UserID) (*models.TrustView, error) {
	if _, err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	view, err := s.stores.Views.Get(ctx, communityID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.TrustView{
				CommunityID: communityID,
				UserID:      userID,
				UpdatedAt:   requestcontext.Now(ctx),
			}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust view")
	}
	return view, nil
}

func (s *Service) ListCommunityTrust(ctx context.Context, communityID id.CommunityID, requesterID id.UserID, page models.Page) ([]*models.TrustViewBreakdown, error) {
	if _, err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	views, err := s.stores.Views.ListByCommunity(ctx, communityID, page.Size(), page.Offset())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list community trust")
	}
	return views, nil
}

// GetTrustMe summarizes the user's own standing, with every feature threshold
// resolved. Admins can award trust regardless of score.
func (s *Service) GetTrustMe(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustMe, error) {
	var (
		roles  []string
		points int
		c      *community.Community
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		roles, err = s.members.GetUserRoles(gctx, communityID, userID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
		return nil
	})
	g.Go(func() error {
		var err error
		points, err = s.points(gctx, s.stores.Views, communityID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		c, err = s.loadCommunity(gctx, communityID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	thresholds, err := s.resolver.ResolveAll(ctx, communityID, c)
	if err != nil {
		return nil, err
	}
	isAdmin := slices.Contains(roles, community.RoleAdmin)
	return &models.TrustMe{
		CommunityID:   communityID,
		UserID:        userID,
		Points:        points,
		Roles:         roles,
		Trusted:       isAdmin || points > 0,
		IsAdmin:       isAdmin,
		CanAwardTrust: isAdmin || points >= thresholds[models.FeatureTrustAward],
		Thresholds:    thresholds,
	}, nil
}

// CanUseFeature is the local threshold check: non-members never pass,
// admins always pass, everyone else needs score >= the resolved threshold.
func (s *Service) CanUseFeature(ctx context.Context, communityID id.CommunityID, userID id.UserID, key models.FeatureKey) (bool, error) {
	feature, ok := models.LookupFeature(key)
	if !ok {
		return false, dErrors.Newf(dErrors.CodeInvalidInput, "Unknown feature %q", key)
	}
	c, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return false, err
	}
	roles, err := s.members.GetUserRoles(ctx, communityID, userID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	if len(roles) == 0 {
		return false, nil
	}
	if slices.Contains(roles, community.RoleAdmin) {
		return true, nil
	}
	threshold, err := s.resolver.Resolve(ctx, communityID, c.Requirement(feature))
	if err != nil {
		return false, err
	}
	points, err := s.points(ctx, s.stores.Views, communityID, userID)
	if err != nil {
		return false, err
	}
	return points >= threshold, nil
}

// EffectiveThreshold resolves an arbitrary requirement against the
// community's levels.
func (s *Service) EffectiveThreshold(ctx context.Context, communityID id.CommunityID, req *models.Requirement) (int, error) {
	if _, err := s.loadCommunity(ctx, communityID); err != nil {
		return 0, err
	}
	return s.resolver.Resolve(ctx, communityID, req)
}

func (s *Service) HasAwardedTrust(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (bool, error) {
	ok, err := s.stores.Awards.Exists(ctx, communityID, fromUserID, toUserID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check award")
	}
	return ok, nil
}

func (s *Service) ListMyAwards(ctx context.Context, communityID id.CommunityID, fromUserID id.UserID) ([]*models.TrustAward, error) {
	if _, err := s.requireMember(ctx, communityID, fromUserID); err != nil {
		return nil, err
	}
	awards, err := s.stores.Awards.ListFromUser(ctx, communityID, fromUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list awards")
	}
	return awards, nil
}

func (s *Service) ListAwardsToUser(ctx context.Context, communityID id.CommunityID, requesterID, toUserID id.UserID) ([]*models.TrustAward, error) {
	if _, err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	awards, err := s.stores.Awards.ListToUser(ctx, communityID, toUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list awards")
	}
	return awards, nil
}

func (s *Service) GetAdminGrants(ctx context.Context, communityID id.CommunityID, requesterID id.UserID) ([]*models.AdminTrustGrant, error) {
	if err := s.requireAdmin(ctx, communityID, requesterID, "Forbidden: only admins can view admin grants"); err != nil {
		return nil, err
	}
	grants, err := s.stores.Grants.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list admin grants")
	}
	return grants, nil
}

func (s *Service) GetTrustHistory(ctx context.Context, communityID id.CommunityID, requesterID, userID id.UserID, page models.Page) ([]*models.TrustHistoryEntry, error) {
	if _, err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	entries, err := s.stores.History.ListForUser(ctx, communityID, userID, page.Size(), page.Offset())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust history")
	}
	return entries, nil
}

// GetEventsForUser lists events where the user is either subject. Any member
// may read them.
func (s *Service) GetEventsForUser(ctx context.Context, communityID id.CommunityID, requesterID, userID id.UserID, page models.Page) ([]*models.TrustEvent, error) {
	if _, err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	events, err := s.stores.Events.ListByUser(ctx, communityID, userID, page.Size(), page.Offset())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust events")
	}
	return events, nil
}

func (s *Service) GetMyEventsAllCommunities(ctx context.Context, userID id.UserID, page models.Page) ([]*models.TrustEvent, error) {
	events, err := s.stores.Events.ListByUserAllCommunities(ctx, userID, page.Size(), page.Offset())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust events")
	}
	return events, nil
}

func (s *Service) ListMyTrustAcrossCommunities(ctx context.Context, userID id.UserID, page models.Page) ([]*models.TrustView, error) {
	views, err := s.stores.Views.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust views")
	}
	start := min(page.Offset(), len(views))
	end := min(start+page.Size(), len(views))
	return views[start:end], nil
}
