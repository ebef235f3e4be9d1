package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"

	"trustline/internal/community"
	"trustline/internal/trust/metrics"
	"trustline/internal/trust/models"
	"trustline/internal/trust/ports"
	"trustline/internal/trust/resolver"
	"trustline/pkg/attrs"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/circuit"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/requestcontext"
)

var tracer = otel.Tracer("trustline/trust")

type AwardStore interface {
	Create(ctx context.Context, award *models.TrustAward) error
	Exists(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (bool, error)
	Delete(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (*models.TrustAward, error)
	ListFromUser(ctx context.Context, communityID id.CommunityID, fromUserID id.UserID) ([]*models.TrustAward, error)
	ListToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) ([]*models.TrustAward, error)
	CountToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error)
}

type GrantStore interface {
	Upsert(ctx context.Context, grant *models.AdminTrustGrant) (*models.AdminTrustGrant, error)
	Get(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (*models.AdminTrustGrant, error)
	GetAmount(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error)
	ListByCommunity(ctx context.Context, communityID id.CommunityID) ([]*models.AdminTrustGrant, error)
	Delete(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (*models.AdminTrustGrant, error)
}

type HistoryStore interface {
	Append(ctx context.Context, entry *models.TrustHistoryEntry) error
	ListForUser(ctx context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustHistoryEntry, error)
}

type EventStore interface {
	Create(ctx context.Context, event *models.TrustEvent) error
	ListByUser(ctx context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error)
	ListByUserAllCommunities(ctx context.Context, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error)
}

type ViewStore interface {
	Get(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error)
	UpsertZero(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error)
	SetPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, points int) error
	AdjustPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, delta int) (int, error)
	ListByCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustViewBreakdown, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.TrustView, error)
	ListAllForCommunity(ctx context.Context, communityID id.CommunityID) ([]*models.TrustView, error)
}

// LevelStore is the read side of the level registry the service needs.
type LevelStore interface {
	FindByCommunityID(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error)
	FindByName(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error)
}

// Stores groups the ledgers, logs and view that one unit of work touches.
type Stores struct {
	Awards  AwardStore
	Grants  GrantStore
	History HistoryStore
	Events  EventStore
	Views   ViewStore
}

func (s Stores) validate() error {
	switch {
	case s.Awards == nil:
		return errors.New("award store is required")
	case s.Grants == nil:
		return errors.New("grant store is required")
	case s.History == nil:
		return errors.New("history store is required")
	case s.Events == nil:
		return errors.New("event store is required")
	case s.Views == nil:
		return errors.New("view store is required")
	}
	return nil
}

// Service orchestrates trust mutations: permission check, ledger write,
// history entry, view recalculation and authorization role sync.
type Service struct {
	stores       Stores
	levels       LevelStore
	communities  ports.CommunityConfigStore
	members      ports.Membership
	oracle       ports.AuthorizationOracle
	requirements ports.RequirementWriter
	resolver     *resolver.Resolver
	tx           TrustStoreTx
	syncer       *roleSyncer

	logger         *slog.Logger
	auditPublisher audit.Emitter
	metrics        *metrics.Metrics
	breaker        *circuit.Breaker
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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx sets the unit-of-work runner. Without it mutations are serialized
// per community in process, which is only correct for in-memory stores.
func WithTx(tx TrustStoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithSyncBreaker guards role sync calls to the authorization oracle.
func WithSyncBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

// WithRequirementWriter enables UpdateTrustRequirement, which writes through w
// and then resyncs the community's roles.
func WithRequirementWriter(w ports.RequirementWriter) Option {
	return func(s *Service) {
		s.requirements = w
	}
}

func New(stores Stores, levels LevelStore, communities ports.CommunityConfigStore, members ports.Membership, oracle ports.AuthorizationOracle, opts ...Option) (*Service, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}
	switch {
	case levels == nil:
		return nil, errors.New("level store is required")
	case communities == nil:
		return nil, errors.New("community config store is required")
	case members == nil:
		return nil, errors.New("membership is required")
	case oracle == nil:
		return nil, errors.New("authorization oracle is required")
	}

	s := &Service{
		stores:      stores,
		levels:      levels,
		communities: communities,
		members:     members,
		oracle:      oracle,
		resolver:    resolver.New(levels),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(stores)
	}
	if s.breaker == nil {
		s.breaker = circuit.New("authz-role-sync")
	}
	s.syncer = newRoleSyncer(oracle, s.breaker, s.logger, s.metrics)
	return s, nil
}

// Resolver exposes the threshold resolver the service resolves through.
func (s *Service) Resolver() *resolver.Resolver {
	return s.resolver
}

func (s *Service) requireMember(ctx context.Context, communityID id.CommunityID, userID id.UserID) (string, error) {
	role, err := s.members.GetUserRole(ctx, communityID, userID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	if role == "" {
		return "", dErrors.New(dErrors.CodeForbidden, "Forbidden: not a member of this community")
	}
	return role, nil
}

func (s *Service) requireAdmin(ctx context.Context, communityID id.CommunityID, userID id.UserID, msg string) error {
	isAdmin, err := s.members.IsAdmin(ctx, communityID, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	if !isAdmin {
		s.logAudit(ctx, string(audit.EventTrustActionDenied),
			"community_id", communityID.String(),
			"actor_id", userID.String(),
			"reason", msg,
		)
		return dErrors.New(dErrors.CodeForbidden, msg)
	}
	return nil
}

func (s *Service) loadCommunity(ctx context.Context, communityID id.CommunityID) (*community.Community, error) {
	c, err := s.communities.FindByID(ctx, communityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Community not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load community")
	}
	return c, nil
}

// points reads the cached score. A user with no view has 0 points.
func (s *Service) points(ctx context.Context, views ViewStore, communityID id.CommunityID, userID id.UserID) (int, error) {
	view, err := views.Get(ctx, communityID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return 0, nil
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust view")
	}
	return view.Points, nil
}

// trustRoleThresholds resolves every feature and keys the result by the
// feature's trust role, the shape the oracle expects.
func (s *Service) trustRoleThresholds(ctx context.Context, communityID id.CommunityID) (map[string]int, error) {
	c, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.ResolveAll(ctx, communityID, c)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(resolved))
	for _, f := range models.Features {
		out[f.TrustRole] = resolved[f.Key]
	}
	return out, nil
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
	if s.auditPublisher == nil {
		return
	}
	communityID, _ := id.ParseCommunityID(attrs.ExtractString(attributes, "community_id"))
	userID, _ := id.ParseUserID(attrs.ExtractString(attributes, "user_id"))
	_ = s.auditPublisher.Emit(ctx, audit.Event{
		Category:    audit.AuditEvent(event).Category(),
		CommunityID: communityID,
		UserID:      userID,
		ActorID:     attrs.ExtractString(attributes, "actor_id"),
		Action:      event,
		Reason:      attrs.ExtractString(attributes, "reason"),
		PointsDelta: attrs.ExtractInt(attributes, "points_delta"),
		RequestID:   attrs.ExtractString(attributes, "request_id"),
	})
}
