// Package authz is an in-process authorization oracle. It keeps, per
// (community, user), the set of trust roles the user's score has unlocked,
// and answers permission checks from those tuples plus community roles.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"trustline/internal/community"
	"trustline/internal/trust/models"
	"trustline/internal/trust/ports"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
)

const tupleKeyPrefix = "authz:trust_roles:"

// RoleSource supplies a user's community roles; the first role is the base
// role (admin or member).
type RoleSource interface {
	GetUserRoles(ctx context.Context, communityID id.CommunityID, userID id.UserID) ([]string, error)
}

type tupleKey struct {
	communityID id.CommunityID
	userID      id.UserID
}

// TupleOracle implements ports.AuthorizationOracle. Without Redis the tuples
// live only in process memory; with Redis every sync is written through and
// misses are loaded back, so tuples survive restarts.
type TupleOracle struct {
	roles  RoleSource
	client redis.Cmdable
	logger *slog.Logger

	mu     sync.RWMutex
	tuples map[tupleKey]map[string]struct{}
}

var _ ports.AuthorizationOracle = (*TupleOracle)(nil)

type Option func(*TupleOracle)

// WithRedis persists trust-role tuples in Redis sets.
func WithRedis(client redis.Cmdable) Option {
	return func(o *TupleOracle) {
		o.client = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *TupleOracle) {
		o.logger = logger
	}
}

func NewTupleOracle(roles RoleSource, opts ...Option) (*TupleOracle, error) {
	if roles == nil {
		return nil, errors.New("role source is required")
	}
	o := &TupleOracle{
		roles:  roles,
		tuples: make(map[tupleKey]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// CheckAccess allows admins everything. Other members get a feature
// permission through the feature's admin-assigned role or its trust role.
// Unknown permissions and resource types are denied.
func (o *TupleOracle) CheckAccess(ctx context.Context, userID id.UserID, resourceType, resourceID, permission string) (bool, error) {
	if resourceType != ports.ResourceCommunity {
		return false, nil
	}
	communityID, err := id.ParseCommunityID(resourceID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid community id")
	}
	roles, err := o.roles.GetUserRoles(ctx, communityID, userID)
	if err != nil {
		return false, err
	}
	if len(roles) == 0 {
		return false, nil
	}
	if slices.Contains(roles, community.RoleAdmin) {
		return true, nil
	}
	feature, ok := models.FeatureForPermission(permission)
	if !ok {
		return false, nil
	}
	if slices.Contains(roles, feature.Role) {
		return true, nil
	}
	granted, err := o.load(ctx, tupleKey{communityID, userID})
	if err != nil {
		return false, err
	}
	_, ok = granted[feature.TrustRole]
	return ok, nil
}

// SyncTrustRoles replaces the user's trust roles with every role whose
// threshold the score meets.
func (o *TupleOracle) SyncTrustRoles(ctx context.Context, userID id.UserID, communityID id.CommunityID, score int, thresholds map[string]int) error {
	granted := make(map[string]struct{}, len(thresholds))
	for role, threshold := range thresholds {
		if score >= threshold {
			granted[role] = struct{}{}
		}
	}
	key := tupleKey{communityID, userID}
	if o.client != nil {
		if err := o.persist(ctx, key, granted); err != nil {
			return err
		}
	}
	o.mu.Lock()
	o.tuples[key] = granted
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.DebugContext(ctx, "trust roles replaced",
			"community_id", communityID.String(),
			"user_id", userID.String(),
			"score", score,
			"granted", len(granted),
		)
	}
	return nil
}

// TrustRoles lists the user's current trust roles, sorted.
func (o *TupleOracle) TrustRoles(ctx context.Context, communityID id.CommunityID, userID id.UserID) ([]string, error) {
	granted, err := o.load(ctx, tupleKey{communityID, userID})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(granted))
	for r := range granted {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (o *TupleOracle) load(ctx context.Context, key tupleKey) (map[string]struct{}, error) {
	o.mu.RLock()
	granted, ok := o.tuples[key]
	o.mu.RUnlock()
	if ok || o.client == nil {
		return granted, nil
	}

	members, err := o.client.SMembers(ctx, redisKey(key)).Result()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load trust roles")
	}
	granted = make(map[string]struct{}, len(members))
	for _, m := range members {
		granted[m] = struct{}{}
	}
	o.mu.Lock()
	o.tuples[key] = granted
	o.mu.Unlock()
	return granted, nil
}

func (o *TupleOracle) persist(ctx context.Context, key tupleKey, granted map[string]struct{}) error {
	rk := redisKey(key)
	_, err := o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, rk)
		if len(granted) > 0 {
			members := make([]any, 0, len(granted))
			for r := range granted {
				members = append(members, r)
			}
			pipe.SAdd(ctx, rk, members...)
		}
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to persist trust roles")
	}
	return nil
}

func redisKey(key tupleKey) string {
	return fmt.Sprintf("%s%s:%s", tupleKeyPrefix, key.communityID, key.userID)
}
