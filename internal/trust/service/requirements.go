package service

import (
	"context"
	"encoding/json"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
)

// UpdateTrustRequirement stores a feature requirement and resyncs every
// member against the new thresholds. The write stands when the resync is
// incomplete; syncs the oracle could not take are logged and parked.
func (s *Service) UpdateTrustRequirement(ctx context.Context, communityID id.CommunityID, requesterID id.UserID, key models.FeatureKey, raw json.RawMessage) (_ *models.Requirement, err error) {
	ctx, span := startSpan(ctx, "UpdateTrustRequirement", communityID, requesterID)
	defer func() { endSpan(span, err) }()

	if s.requirements == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "requirement writer is not configured")
	}
	req, err := s.requirements.UpdateTrustRequirement(ctx, communityID, requesterID, key, raw)
	if err != nil {
		return nil, err
	}
	if n, err := s.ResyncCommunityRoles(ctx, communityID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "trust role resync after requirement change incomplete",
			"community_id", communityID.String(),
			"feature", string(key),
			"synced", n,
			"error", err,
		)
	}
	return req, nil
}
