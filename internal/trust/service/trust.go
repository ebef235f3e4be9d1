package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trustline/internal/community"
	"trustline/internal/trust/models"
	"trustline/internal/trust/ports"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/requestcontext"
)

// PermissionAwardTrust is the oracle permission checked before an award.
const PermissionAwardTrust = "can_award_trust"

func startSpan(ctx context.Context, name string, communityID id.CommunityID, userID id.UserID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Trust.Service."+name, trace.WithAttributes(
		attribute.String("community_id", communityID.String()),
		attribute.String("user_id", userID.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// AwardTrust records a peer award from one member to another and gives the
// recipient one point.
func (s *Service) AwardTrust(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (_ *models.TrustAward, err error) {
	ctx, span := startSpan(ctx, "AwardTrust", communityID, toUserID)
	defer func() { endSpan(span, err) }()

	if fromUserID == toUserID {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Cannot award trust to yourself")
	}
	if _, err := s.requireMember(ctx, communityID, fromUserID); err != nil {
		return nil, err
	}
	exists, err := s.stores.Awards.Exists(ctx, communityID, fromUserID, toUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing award")
	}
	if exists {
		return nil, dErrors.New(dErrors.CodeConflict, "You have already awarded trust to this user")
	}
	allowed, err := s.oracle.CheckAccess(ctx, fromUserID, ports.ResourceCommunity, communityID.String(), PermissionAwardTrust)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check award permission")
	}
	if !allowed {
		s.logAudit(ctx, string(audit.EventTrustActionDenied),
			"community_id", communityID.String(),
			"user_id", toUserID.String(),
			"actor_id", fromUserID.String(),
			"reason", PermissionAwardTrust,
		)
		return nil, dErrors.New(dErrors.CodeForbidden, "Forbidden: you do not have permission to award trust")
	}

	award := &models.TrustAward{
		ID:          id.NewAwardID(),
		CommunityID: communityID,
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		CreatedAt:   requestcontext.Now(ctx),
	}
	var points int
	err = s.tx.RunInTx(ctx, communityID, func(ctx context.Context, st Stores) error {
		err := st.Awards.Create(ctx, award)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "You have already awarded trust to this user")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create award")
		}
		if points, err = s.recalculate(ctx, st, communityID, toUserID); err != nil {
			return err
		}
		return appendHistory(ctx, st, communityID, &fromUserID, toUserID, models.ActionAward, models.AwardPoints)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateViews(ctx, communityID, toUserID)

	s.logAudit(ctx, string(audit.EventTrustAwarded),
		"community_id", communityID.String(),
		"user_id", toUserID.String(),
		"actor_id", fromUserID.String(),
		"points_delta", models.AwardPoints,
	)
	if s.metrics != nil {
		s.metrics.IncrementAwardsCreated()
	}
	if err := s.syncRoles(ctx, communityID, toUserID, points); err != nil {
		return nil, err
	}
	return award, nil
}

// RemoveTrust withdraws an existing award. Removing an award that does not
// exist is an error, not a no-op.
func (s *Service) RemoveTrust(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (_ *models.TrustAward, err error) {
	ctx, span := startSpan(ctx, "RemoveTrust", communityID, toUserID)
	defer func() { endSpan(span, err) }()

	if _, err := s.requireMember(ctx, communityID, fromUserID); err != nil {
		return nil, err
	}
	exists, err := s.stores.Awards.Exists(ctx, communityID, fromUserID, toUserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing award")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "You have not awarded trust to this user")
	}

	var (
		removed *models.TrustAward
		points  int
	)
	err = s.tx.RunInTx(ctx, communityID, func(ctx context.Context, st Stores) error {
		var err error
		removed, err = st.Awards.Delete(ctx, communityID, fromUserID, toUserID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete award")
		}
		if removed == nil {
			return dErrors.New(dErrors.CodeInvalidInput, "You have not awarded trust to this user")
		}
		if points, err = s.recalculate(ctx, st, communityID, toUserID); err != nil {
			return err
		}
		return appendHistory(ctx, st, communityID, &fromUserID, toUserID, models.ActionRemove, -models.AwardPoints)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateViews(ctx, communityID, toUserID)

	s.logAudit(ctx, string(audit.EventTrustRemoved),
		"community_id", communityID.String(),
		"user_id", toUserID.String(),
		"actor_id", fromUserID.String(),
		"points_delta", -models.AwardPoints,
	)
	if s.metrics != nil {
		s.metrics.IncrementAwardsRemoved()
	}
	if err := s.syncRoles(ctx, communityID, toUserID, points); err != nil {
		return nil, err
	}
	return removed, nil
}

// SetAdminGrant stores an absolute admin grant. The history entry carries the
// signed change from the previous amount, not the new amount.
func (s *Service) SetAdminGrant(ctx context.Context, communityID id.CommunityID, adminUserID, toUserID id.UserID, amount int) (_ *models.AdminTrustGrant, err error) {
	ctx, span := startSpan(ctx, "SetAdminGrant", communityID, toUserID)
	defer func() { endSpan(span, err) }()

	if err := s.requireAdmin(ctx, communityID, adminUserID, "Forbidden: only admins can set admin grants"); err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Admin grant amount cannot be negative")
	}

	var (
		grant  *models.AdminTrustGrant
		delta  int
		points int
	)
	err = s.tx.RunInTx(ctx, communityID, func(ctx context.Context, st Stores) error {
		previous, err := st.Grants.GetAmount(ctx, communityID, toUserID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin grant")
		}
		delta = amount - previous
		now := requestcontext.Now(ctx)
		grant, err = st.Grants.Upsert(ctx, &models.AdminTrustGrant{
			ID:          id.NewGrantID(),
			CommunityID: communityID,
			AdminUserID: adminUserID,
			ToUserID:    toUserID,
			TrustAmount: amount,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store admin grant")
		}
		if points, err = s.recalculate(ctx, st, communityID, toUserID); err != nil {
			return err
		}
		return appendHistory(ctx, st, communityID, &adminUserID, toUserID, models.ActionAdminGrant, delta)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateViews(ctx, communityID, toUserID)

	s.logAudit(ctx, string(audit.EventAdminGrantSet),
		"community_id", communityID.String(),
		"user_id", toUserID.String(),
		"actor_id", adminUserID.String(),
		"points_delta", delta,
		"amount", amount,
	)
	if s.metrics != nil {
		s.metrics.IncrementAdminGrantsSet()
	}
	if err := s.syncRoles(ctx, communityID, toUserID, points); err != nil {
		return nil, err
	}
	return grant, nil
}

// DeleteAdminGrant removes the grant; the history delta is the negated
// previous amount.
func (s *Service) DeleteAdminGrant(ctx context.Context, communityID id.CommunityID, adminUserID, toUserID id.UserID) (_ *models.AdminTrustGrant, err error) {
	ctx, span := startSpan(ctx, "DeleteAdminGrant", communityID, toUserID)
	defer func() { endSpan(span, err) }()

	if err := s.requireAdmin(ctx, communityID, adminUserID, "Forbidden: only admins can delete admin grants"); err != nil {
		return nil, err
	}

	var (
		deleted *models.AdminTrustGrant
		points  int
	)
	err = s.tx.RunInTx(ctx, communityID, func(ctx context.Context, st Stores) error {
		existing, err := st.Grants.Get(ctx, communityID, toUserID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "Admin grant not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin grant")
		}
		if deleted, err = st.Grants.Delete(ctx, communityID, toUserID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete admin grant")
		}
		if points, err = s.recalculate(ctx, st, communityID, toUserID); err != nil {
			return err
		}
		return appendHistory(ctx, st, communityID, &adminUserID, toUserID, models.ActionAdminGrant, -existing.TrustAmount)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateViews(ctx, communityID, toUserID)

	s.logAudit(ctx, string(audit.EventAdminGrantDeleted),
		"community_id", communityID.String(),
		"user_id", toUserID.String(),
		"actor_id", adminUserID.String(),
		"points_delta", -deleted.TrustAmount,
	)
	if s.metrics != nil {
		s.metrics.IncrementAdminGrantsDeleted()
	}
	if err := s.syncRoles(ctx, communityID, toUserID, points); err != nil {
		return nil, err
	}
	return deleted, nil
}

// RecalculatePoints re-derives the view from the ledgers. It is the only
// operation guaranteed to correct drift introduced by AdjustPoints.
func (s *Service) RecalculatePoints(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	err := s.tx.RunInTx(ctx, communityID, func(ctx context.Context, st Stores) error {
		_, err := s.recalculate(ctx, st, communityID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.invalidateViews(ctx, communityID, userID)
	view, err := s.stores.Views.Get(ctx, communityID, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust view")
	}
	return view, nil
}

func (s *Service) recalculate(ctx context.Context, st Stores, communityID id.CommunityID, userID id.UserID) (int, error) {
	if s.metrics != nil {
		defer s.metrics.ObserveRecalculate(time.Now())
	}
	if _, err := st.Views.UpsertZero(ctx, communityID, userID); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialize trust view")
	}
	awards, err := st.Awards.CountToUser(ctx, communityID, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count awards")
	}
	grant, err := st.Grants.GetAmount(ctx, communityID, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin grant")
	}
	points := models.Recompute(awards, grant)
	if err := st.Views.SetPoints(ctx, communityID, userID, points); err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store trust points")
	}
	return points, nil
}

// viewInvalidator is implemented by view stores that cache reads outside
// the unit of work.
type viewInvalidator interface {
	Invalidate(ctx context.Context, communityID id.CommunityID, userID id.UserID)
}

// invalidateViews runs after commit. An invalidation issued inside the
// transaction can be refilled with the pre-commit row by a concurrent read.
func (s *Service) invalidateViews(ctx context.Context, communityID id.CommunityID, userIDs ...id.UserID) {
	inv, ok := s.stores.Views.(viewInvalidator)
	if !ok {
		return
	}
	for _, u := range userIDs {
		inv.Invalidate(ctx, communityID, u)
	}
}

func appendHistory(ctx context.Context, st Stores, communityID id.CommunityID, fromUserID *id.UserID, toUserID id.UserID, action models.HistoryAction, delta int) error {
	err := st.History.Append(ctx, &models.TrustHistoryEntry{
		ID:          id.NewHistoryEntryID(),
		CommunityID: communityID,
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		Action:      action,
		PointsDelta: delta,
		CreatedAt:   requestcontext.Now(ctx),
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append trust history")
	}
	return nil
}

// IsTrusted reports whether the user is an admin or has any points.
func (s *Service) IsTrusted(ctx context.Context, communityID id.CommunityID, userID id.UserID) (bool, error) {
	var (
		role   string
		points int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		role, err = s.members.GetUserRole(gctx, communityID, userID)
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
	if err := g.Wait(); err != nil {
		return false, err
	}
	return role == community.RoleAdmin || points > 0, nil
}

// isTrustedTx is IsTrusted for use inside a unit of work, where statements
// share one connection and must not run concurrently.
func (s *Service) isTrustedTx(ctx context.Context, views ViewStore, communityID id.CommunityID, userID id.UserID) (bool, error) {
	role, err := s.members.GetUserRole(ctx, communityID, userID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	if role == community.RoleAdmin {
		return true, nil
	}
	points, err := s.points(ctx, views, communityID, userID)
	if err != nil {
		return false, err
	}
	return points > 0, nil
}

// ShareRedemption describes a completed share between two members.
type ShareRedemption struct {
	CommunityID    id.CommunityID
	GiverUserID    id.UserID
	ReceiverUserID id.UserID
	ActorUserID    *id.UserID
	// EntityType defaults to "share".
	EntityType string
	EntityID   string
}

// RecordShareRedeemed gives both parties a point when at least one of them
// is trusted. Exchanges between two untrusted users award nothing.
func (s *Service) RecordShareRedeemed(ctx context.Context, r ShareRedemption) (awarded bool, err error) {
	ctx, span := startSpan(ctx, "RecordShareRedeemed", r.CommunityID, r.ReceiverUserID)
	defer func() { endSpan(span, err) }()

	entityType := r.EntityType
	if entityType == "" {
		entityType = models.EntityTypeShare
	}
	var giverPoints, receiverPoints int
	err = s.tx.RunInTx(ctx, r.CommunityID, func(ctx context.Context, st Stores) error {
		for _, u := range []id.UserID{r.GiverUserID, r.ReceiverUserID} {
			if _, err := st.Views.UpsertZero(ctx, r.CommunityID, u); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to initialize trust view")
			}
		}
		giverTrusted, err := s.isTrustedTx(ctx, st.Views, r.CommunityID, r.GiverUserID)
		if err != nil {
			return err
		}
		receiverTrusted, err := s.isTrustedTx(ctx, st.Views, r.CommunityID, r.ReceiverUserID)
		if err != nil {
			return err
		}
		if !giverTrusted && !receiverTrusted {
			return nil
		}
		if giverPoints, err = st.Views.AdjustPoints(ctx, r.CommunityID, r.GiverUserID, 1); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust trust points")
		}
		if receiverPoints, err = st.Views.AdjustPoints(ctx, r.CommunityID, r.ReceiverUserID, 1); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to adjust trust points")
		}
		giver, receiver := r.GiverUserID, r.ReceiverUserID
		err = st.Events.Create(ctx, &models.TrustEvent{
			ID:             id.NewTrustEventID(),
			CommunityID:    r.CommunityID,
			Type:           models.EventTypeShareRedeemed,
			EntityType:     entityType,
			EntityID:       r.EntityID,
			ActorUserID:    r.ActorUserID,
			SubjectUserIDA: &giver,
			SubjectUserIDB: &receiver,
			PointsDeltaA:   1,
			PointsDeltaB:   1,
			CreatedAt:      requestcontext.Now(ctx),
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record trust event")
		}
		awarded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	s.invalidateViews(ctx, r.CommunityID, r.GiverUserID, r.ReceiverUserID)
	if s.metrics != nil {
		s.metrics.IncrementShareRedeemed(awarded)
	}
	if !awarded {
		if s.logger != nil {
			s.logger.DebugContext(ctx, "no trusted participant in share redemption",
				"community_id", r.CommunityID.String(),
			)
		}
		return false, nil
	}

	actor := ""
	if r.ActorUserID != nil {
		actor = r.ActorUserID.String()
	}
	for _, u := range []id.UserID{r.GiverUserID, r.ReceiverUserID} {
		s.logAudit(ctx, string(audit.EventShareRedeemed),
			"community_id", r.CommunityID.String(),
			"user_id", u.String(),
			"actor_id", actor,
			"points_delta", 1,
			"reason", r.EntityID,
		)
	}
	if err := s.syncRoles(ctx, r.CommunityID, r.GiverUserID, giverPoints); err != nil {
		return true, err
	}
	if err := s.syncRoles(ctx, r.CommunityID, r.ReceiverUserID, receiverPoints); err != nil {
		return true, err
	}
	return true, nil
}
