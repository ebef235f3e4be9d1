package service

import (
	"context"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
)

// ReconcileResult summarizes one community reconciliation.
type ReconcileResult struct {
	CommunityID id.CommunityID
	Checked     int
	Drifted     int
	Synced      int
}

// ReconcileCommunity compares every view in the community with the award and
// grant ledgers, then resyncs every member's roles from the stored views.
// Drift is reported, never rewritten: share redemption points exist only in
// the view, and RecalculatePoints is the explicit way to discard them.
func (s *Service) ReconcileCommunity(ctx context.Context, communityID id.CommunityID) (_ *ReconcileResult, err error) {
	ctx, span := startSpan(ctx, "ReconcileCommunity", communityID, id.UserID{})
	defer func() { endSpan(span, err) }()

	views, err := s.stores.Views.ListAllForCommunity(ctx, communityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust views")
	}

	result := &ReconcileResult{CommunityID: communityID}
	for _, v := range views {
		if err := ctx.Err(); err != nil {
			return result, dErrors.Wrap(err, dErrors.CodeTimeout, "reconciliation aborted")
		}
		var stored, ledger int
		err := s.tx.RunInTx(ctx, communityID, func(ctx context.Context, st Stores) error {
			var err error
			if stored, err = s.points(ctx, st.Views, communityID, v.UserID); err != nil {
				return err
			}
			ledger, err = ledgerPoints(ctx, st, communityID, v.UserID)
			return err
		})
		if err != nil {
			return result, err
		}
		result.Checked++
		drifted := stored != ledger
		if drifted {
			result.Drifted++
			if s.logger != nil {
				s.logger.InfoContext(ctx, "trust view differs from ledgers",
					"community_id", communityID.String(),
					"user_id", v.UserID.String(),
					"view_points", stored,
					"ledger_points", ledger,
				)
			}
		}
		if s.metrics != nil {
			s.metrics.ObserveReconciled(drifted)
		}
	}

	result.Synced, err = s.ResyncCommunityRoles(ctx, communityID)
	return result, err
}

// ledgerPoints is the score the award and grant ledgers alone account for.
func ledgerPoints(ctx context.Context, st Stores, communityID id.CommunityID, userID id.UserID) (int, error) {
	awards, err := st.Awards.CountToUser(ctx, communityID, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count awards")
	}
	grant, err := st.Grants.GetAmount(ctx, communityID, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin grant")
	}
	return models.Recompute(awards, grant), nil
}

// ResyncCommunityRoles pushes every member's stored score to the oracle
// against the community's current thresholds. Members without a view sync at
// 0 points. A member that fails is skipped; the first error is returned once
// every member has been attempted.
func (s *Service) ResyncCommunityRoles(ctx context.Context, communityID id.CommunityID) (_ int, err error) {
	ctx, span := startSpan(ctx, "ResyncCommunityRoles", communityID, id.UserID{})
	defer func() { endSpan(span, err) }()

	memberIDs, err := s.members.ListMemberIDs(ctx, communityID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list community members")
	}
	thresholds, err := s.trustRoleThresholds(ctx, communityID)
	if err != nil {
		s.logAudit(ctx, string(audit.EventRoleSyncFailed),
			"community_id", communityID.String(),
			"reason", err.Error(),
		)
		return 0, err
	}

	var (
		synced   int
		firstErr error
	)
	for _, userID := range memberIDs {
		if err := ctx.Err(); err != nil {
			return synced, dErrors.Wrap(err, dErrors.CodeTimeout, "role resync aborted")
		}
		score, err := s.points(ctx, s.stores.Views, communityID, userID)
		if err == nil {
			err = s.syncWithThresholds(ctx, communityID, userID, score, thresholds)
		}
		if err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "trust role resync failed for member",
					"community_id", communityID.String(),
					"user_id", userID.String(),
					"error", err,
				)
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		synced++
	}
	return synced, firstErr
}
