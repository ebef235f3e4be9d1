package community

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/sentinel"
)

type Store interface {
	FindByID(ctx context.Context, communityID id.CommunityID) (*Community, error)
	ListIDs(ctx context.Context) ([]id.CommunityID, error)
	SetRequirement(ctx context.Context, communityID id.CommunityID, field string, req *models.Requirement) error
	GetMember(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*Member, error)
	ListMemberIDs(ctx context.Context, communityID id.CommunityID) ([]id.UserID, error)
}

// Service answers the membership and configuration questions the trust
// engine asks, and owns writes to a community's trust requirements.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher audit.Emitter
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) FindByID(ctx context.Context, communityID id.CommunityID) (*Community, error) {
	c, err := s.store.FindByID(ctx, communityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Community not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load community")
	}
	return c, nil
}

func (s *Service) ListIDs(ctx context.Context) ([]id.CommunityID, error) {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list communities")
	}
	return ids, nil
}

func (s *Service) ListMemberIDs(ctx context.Context, communityID id.CommunityID) ([]id.UserID, error) {
	ids, err := s.store.ListMemberIDs(ctx, communityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list community members")
	}
	return ids, nil
}

// GetUserRole returns the user's base role, or "" when they are not a member.
func (s *Service) GetUserRole(ctx context.Context, communityID id.CommunityID, userID id.UserID) (string, error) {
	m, err := s.member(ctx, communityID, userID)
	if err != nil || m == nil {
		return "", err
	}
	return m.BaseRole(), nil
}

// GetUserRoles returns every role the user holds, or nil for non-members.
func (s *Service) GetUserRoles(ctx context.Context, communityID id.CommunityID, userID id.UserID) ([]string, error) {
	m, err := s.member(ctx, communityID, userID)
	if err != nil || m == nil {
		return nil, err
	}
	return m.Roles, nil
}

func (s *Service) IsAdmin(ctx context.Context, communityID id.CommunityID, userID id.UserID) (bool, error) {
	m, err := s.member(ctx, communityID, userID)
	if err != nil || m == nil {
		return false, err
	}
	return m.HasRole(RoleAdmin), nil
}

func (s *Service) member(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*Member, error) {
	m, err := s.store.GetMember(ctx, communityID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	return m, nil
}

// UpdateTrustRequirement validates and stores the requirement for one
// feature. A JSON null clears the requirement. Only admins may write.
func (s *Service) UpdateTrustRequirement(ctx context.Context, communityID id.CommunityID, requesterID id.UserID, key models.FeatureKey, raw json.RawMessage) (*models.Requirement, error) {
	feature, ok := models.LookupFeature(key)
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "Unknown feature %q", key)
	}
	if _, err := s.FindByID(ctx, communityID); err != nil {
		return nil, err
	}
	isAdmin, err := s.IsAdmin(ctx, communityID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "Forbidden: only admins can update trust requirements")
	}
	req, err := models.ParseRequirement(raw)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRequirement(ctx, communityID, feature.ConfigField, req); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Community not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update trust requirement")
	}

	value := "none"
	if req != nil {
		value = req.String()
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(audit.EventTrustRequirementSet),
			"event", string(audit.EventTrustRequirementSet),
			"log_type", "audit",
			"community_id", communityID.String(),
			"user_id", requesterID.String(),
			"feature", string(key),
			"requirement", value,
		)
	}
	if s.auditPublisher != nil {
		_ = s.auditPublisher.Emit(ctx, audit.Event{
			CommunityID: communityID,
			UserID:      requesterID,
			ActorID:     requesterID.String(),
			Action:      string(audit.EventTrustRequirementSet),
			Reason:      string(key) + "=" + value,
		})
	}
	return req, nil
}
