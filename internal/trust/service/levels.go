package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"trustline/internal/trust/models"
	"trustline/internal/trust/ports"
	"trustline/internal/trust/resolver"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/requestcontext"
)

// LevelRegistry is the full level store surface LevelService manages.
type LevelRegistry interface {
	Create(ctx context.Context, level *models.TrustLevel) error
	FindByID(ctx context.Context, levelID id.TrustLevelID) (*models.TrustLevel, error)
	FindByCommunityID(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error)
	FindByName(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error)
	Update(ctx context.Context, level *models.TrustLevel) error
	Delete(ctx context.Context, levelID id.TrustLevelID) error
}

// DefaultLevels seed a community that has no levels yet.
var DefaultLevels = []struct {
	Name      string
	Threshold int
}{
	{"New", 0},
	{"Stable", 10},
	{"Trusted", 50},
}

// LevelUpdate carries the fields to change; nil leaves a field as is.
type LevelUpdate struct {
	Name      *string
	Threshold *int
}

// LevelService manages a community's named trust levels. Deleting a level
// does not check whether a requirement still references it; such references
// fail with NotFound when resolved.
type LevelService struct {
	levels      LevelRegistry
	communities ports.CommunityConfigStore
	members     ports.Membership
	resolver    *resolver.Resolver
	roles       RoleResyncer

	logger         *slog.Logger
	auditPublisher audit.Emitter
}

// RoleResyncer pushes every member's score to the oracle against the
// community's current thresholds.
type RoleResyncer interface {
	ResyncCommunityRoles(ctx context.Context, communityID id.CommunityID) (int, error)
}

type LevelOption func(*LevelService)

func WithLevelLogger(logger *slog.Logger) LevelOption {
	return func(s *LevelService) {
		s.logger = logger
	}
}

func WithLevelAuditPublisher(publisher audit.Emitter) LevelOption {
	return func(s *LevelService) {
		s.auditPublisher = publisher
	}
}

// WithRoleResync resyncs trust roles after every level write, since a moved
// threshold changes which roles each score unlocks.
func WithRoleResync(r RoleResyncer) LevelOption {
	return func(s *LevelService) {
		s.roles = r
	}
}

func NewLevelService(levels LevelRegistry, communities ports.CommunityConfigStore, members ports.Membership, opts ...LevelOption) *LevelService {
	s := &LevelService{
		levels:      levels,
		communities: communities,
		members:     members,
		resolver:    resolver.New(levels),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LevelService) CreateLevel(ctx context.Context, communityID id.CommunityID, requesterID id.UserID, name string, threshold int) (*models.TrustLevel, error) {
	if err := s.requireCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, communityID, requesterID, "Only admins can create trust levels"); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Trust level name is required")
	}
	if threshold < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "Threshold must be non-negative")
	}
	level, err := s.create(ctx, communityID, name, threshold)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, audit.EventTrustLevelCreated, communityID, requesterID, level.Name)
	s.resyncRoles(ctx, communityID)
	return level, nil
}

func (s *LevelService) create(ctx context.Context, communityID id.CommunityID, name string, threshold int) (*models.TrustLevel, error) {
	now := requestcontext.Now(ctx)
	level := &models.TrustLevel{
		ID:          id.NewTrustLevelID(),
		CommunityID: communityID,
		Name:        name,
		Threshold:   threshold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.levels.Create(ctx, level); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "A trust level with this name already exists in this community")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create trust level")
	}
	return level, nil
}

func (s *LevelService) GetLevel(ctx context.Context, levelID id.TrustLevelID, requesterID id.UserID) (*models.TrustLevel, error) {
	level, err := s.findLevel(ctx, levelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, level.CommunityID, requesterID); err != nil {
		return nil, err
	}
	return level, nil
}

// ListLevels returns the community's levels ascending by threshold.
func (s *LevelService) ListLevels(ctx context.Context, communityID id.CommunityID, requesterID id.UserID) ([]*models.TrustLevel, error) {
	if err := s.requireCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	levels, err := s.levels.FindByCommunityID(ctx, communityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust levels")
	}
	return levels, nil
}

func (s *LevelService) UpdateLevel(ctx context.Context, levelID id.TrustLevelID, requesterID id.UserID, update LevelUpdate) (*models.TrustLevel, error) {
	level, err := s.findLevel(ctx, levelID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, level.CommunityID, requesterID, "Only admins can update trust levels"); err != nil {
		return nil, err
	}
	if update.Threshold != nil {
		if *update.Threshold < 0 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "Threshold must be non-negative")
		}
		level.Threshold = *update.Threshold
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "Trust level name is required")
		}
		level.Name = name
	}
	level.UpdatedAt = requestcontext.Now(ctx)
	if err := s.levels.Update(ctx, level); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "A trust level with this name already exists in this community")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "Trust level not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update trust level")
	}
	s.logAudit(ctx, audit.EventTrustLevelUpdated, level.CommunityID, requesterID, level.Name)
	s.resyncRoles(ctx, level.CommunityID)
	return level, nil
}

func (s *LevelService) DeleteLevel(ctx context.Context, levelID id.TrustLevelID, requesterID id.UserID) error {
	level, err := s.findLevel(ctx, levelID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, level.CommunityID, requesterID, "Only admins can delete trust levels"); err != nil {
		return err
	}
	if err := s.levels.Delete(ctx, levelID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete trust level")
	}
	s.logAudit(ctx, audit.EventTrustLevelDeleted, level.CommunityID, requesterID, level.Name)
	s.resyncRoles(ctx, level.CommunityID)
	return nil
}

// ResolveReference resolves a level name for a member, failing NotFound when
// the community has no such level.
func (s *LevelService) ResolveReference(ctx context.Context, communityID id.CommunityID, name string, requesterID id.UserID) (*models.ResolvedRequirement, error) {
	if err := s.requireCommunity(ctx, communityID); err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	return s.resolver.ResolveDetailed(ctx, communityID, models.Level(name))
}

// CreateDefaultLevels seeds New, Stable and Trusted. A community that already
// has levels keeps them and gets them back unchanged.
func (s *LevelService) CreateDefaultLevels(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error) {
	existing, err := s.levels.FindByCommunityID(ctx, communityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust levels")
	}
	if len(existing) > 0 {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "community already has trust levels, skipping defaults",
				"community_id", communityID.String(),
				"levels", len(existing),
			)
		}
		return existing, nil
	}
	out := make([]*models.TrustLevel, 0, len(DefaultLevels))
	for _, d := range DefaultLevels {
		level, err := s.create(ctx, communityID, d.Name, d.Threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, level)
	}
	s.logAudit(ctx, audit.EventDefaultLevelsCreated, communityID, id.UserID{}, "")
	s.resyncRoles(ctx, communityID)
	return out, nil
}

// resyncRoles runs after the level write has committed, so a failure is
// logged rather than returned. Syncs the oracle refused stay parked for the
// next flush.
func (s *LevelService) resyncRoles(ctx context.Context, communityID id.CommunityID) {
	if s.roles == nil {
		return
	}
	n, err := s.roles.ResyncCommunityRoles(ctx, communityID)
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "trust role resync after level change incomplete",
			"community_id", communityID.String(),
			"synced", n,
			"error", err,
		)
	}
}

func (s *LevelService) findLevel(ctx context.Context, levelID id.TrustLevelID) (*models.TrustLevel, error) {
	level, err := s.levels.FindByID(ctx, levelID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Trust level not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust level")
	}
	return level, nil
}

func (s *LevelService) requireCommunity(ctx context.Context, communityID id.CommunityID) error {
	if _, err := s.communities.FindByID(ctx, communityID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Community not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load community")
	}
	return nil
}

func (s *LevelService) requireMember(ctx context.Context, communityID id.CommunityID, userID id.UserID) error {
	role, err := s.members.GetUserRole(ctx, communityID, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	if role == "" {
		return dErrors.New(dErrors.CodeForbidden, "Forbidden: no access to this community")
	}
	return nil
}

func (s *LevelService) requireAdmin(ctx context.Context, communityID id.CommunityID, userID id.UserID, msg string) error {
	isAdmin, err := s.members.IsAdmin(ctx, communityID, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	if !isAdmin {
		return dErrors.New(dErrors.CodeForbidden, msg)
	}
	return nil
}

func (s *LevelService) logAudit(ctx context.Context, event audit.AuditEvent, communityID id.CommunityID, actorID id.UserID, levelName string) {
	args := []any{
		"event", string(event),
		"log_type", "audit",
		"community_id", communityID.String(),
		"level", levelName,
	}
	actor := ""
	if !actorID.IsNil() {
		actor = actorID.String()
		args = append(args, "actor_id", actor)
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Category:    event.Category(),
		CommunityID: communityID,
		ActorID:     actor,
		Action:      string(event),
		Reason:      levelName,
		RequestID:   requestcontext.RequestID(ctx),
	})
}
