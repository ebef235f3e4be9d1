package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"trustline/internal/trust/metrics"
	"trustline/internal/trust/ports"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/circuit"
)

const (
	syncOutcomeOK       = "ok"
	syncOutcomeFailed   = "failed"
	syncOutcomeDeferred = "deferred"
)

// SyncTarget is a (community, user) pair whose oracle roles need a resync.
type SyncTarget struct {
	CommunityID id.CommunityID
	UserID      id.UserID
}

// roleSyncer pushes trust roles to the oracle behind a circuit breaker.
// While the breaker is open, targets are parked in a deferred set and the
// caller is not failed; FlushDeferredSyncs replays them with fresh scores.
type roleSyncer struct {
	oracle  ports.AuthorizationOracle
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	deferred map[SyncTarget]struct{}
}

func newRoleSyncer(oracle ports.AuthorizationOracle, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *roleSyncer {
	return &roleSyncer{
		oracle:   oracle,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
		deferred: make(map[SyncTarget]struct{}),
	}
}

// sync returns deferred=true when the target was parked instead of synced.
func (r *roleSyncer) sync(ctx context.Context, target SyncTarget, score int, thresholds map[string]int) (deferred bool, err error) {
	if !r.breaker.Allow() {
		r.park(target)
		r.observe(syncOutcomeDeferred)
		return true, nil
	}
	if err := r.oracle.SyncTrustRoles(ctx, target.UserID, target.CommunityID, score, thresholds); err != nil {
		useFallback, change := r.breaker.RecordFailure()
		if change.Opened && r.logger != nil {
			r.logger.WarnContext(ctx, "authorization oracle circuit opened",
				"breaker", r.breaker.Name(),
				"error", err,
			)
		}
		if useFallback {
			r.park(target)
			r.observe(syncOutcomeDeferred)
			return true, nil
		}
		r.observe(syncOutcomeFailed)
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to sync trust roles")
	}
	if _, change := r.breaker.RecordSuccess(); change.Closed && r.logger != nil {
		r.logger.InfoContext(ctx, "authorization oracle circuit closed", "breaker", r.breaker.Name())
	}
	r.observe(syncOutcomeOK)
	return false, nil
}

func (r *roleSyncer) park(target SyncTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deferred[target] = struct{}{}
}

// drain removes and returns every parked target in a stable order.
func (r *roleSyncer) drain() []SyncTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SyncTarget, 0, len(r.deferred))
	for t := range r.deferred {
		out = append(out, t)
	}
	r.deferred = make(map[SyncTarget]struct{})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CommunityID != out[j].CommunityID {
			return out[i].CommunityID.String() < out[j].CommunityID.String()
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

func (r *roleSyncer) isParked(target SyncTarget) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.deferred[target]
	return ok
}

func (r *roleSyncer) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deferred)
}

func (r *roleSyncer) observe(outcome string) {
	if r.metrics != nil {
		r.metrics.IncrementRoleSync(outcome)
	}
}

// SyncRoles pushes the user's current score and the community's resolved
// trust-role thresholds to the oracle.
func (s *Service) SyncRoles(ctx context.Context, communityID id.CommunityID, userID id.UserID) error {
	score, err := s.points(ctx, s.stores.Views, communityID, userID)
	if err != nil {
		return err
	}
	return s.syncRoles(ctx, communityID, userID, score)
}

// SyncNewMember gives a member who just joined the trust roles their current
// score unlocks, which for a fresh member means every zero-threshold feature.
func (s *Service) SyncNewMember(ctx context.Context, communityID id.CommunityID, userID id.UserID) error {
	if _, err := s.requireMember(ctx, communityID, userID); err != nil {
		return err
	}
	return s.SyncRoles(ctx, communityID, userID)
}

func (s *Service) syncRoles(ctx context.Context, communityID id.CommunityID, userID id.UserID, score int) error {
	thresholds, err := s.trustRoleThresholds(ctx, communityID)
	if err != nil {
		s.logAudit(ctx, string(audit.EventRoleSyncFailed),
			"community_id", communityID.String(),
			"user_id", userID.String(),
			"reason", err.Error(),
		)
		return err
	}
	return s.syncWithThresholds(ctx, communityID, userID, score, thresholds)
}

func (s *Service) syncWithThresholds(ctx context.Context, communityID id.CommunityID, userID id.UserID, score int, thresholds map[string]int) error {
	deferred, err := s.syncer.sync(ctx, SyncTarget{CommunityID: communityID, UserID: userID}, score, thresholds)
	switch {
	case err != nil:
		s.logAudit(ctx, string(audit.EventRoleSyncFailed),
			"community_id", communityID.String(),
			"user_id", userID.String(),
			"reason", err.Error(),
		)
		return err
	case deferred:
		s.logAudit(ctx, string(audit.EventRoleSyncDeferred),
			"community_id", communityID.String(),
			"user_id", userID.String(),
		)
	default:
		if s.logger != nil {
			s.logger.DebugContext(ctx, "trust roles synced",
				"community_id", communityID.String(),
				"user_id", userID.String(),
				"score", score,
			)
		}
	}
	return nil
}

// PendingSyncs reports how many targets are waiting for the oracle.
func (s *Service) PendingSyncs() int {
	return s.syncer.pending()
}

// FlushDeferredSyncs replays parked syncs with each user's current score.
// Targets the breaker parks again are not counted as flushed. The first hard
// error is returned after every target has been attempted.
func (s *Service) FlushDeferredSyncs(ctx context.Context) (int, error) {
	var (
		flushed  int
		firstErr error
	)
	for _, t := range s.syncer.drain() {
		if err := ctx.Err(); err != nil {
			s.syncer.park(t)
			continue
		}
		if err := s.SyncRoles(ctx, t.CommunityID, t.UserID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !s.syncer.isParked(t) {
			flushed++
		}
	}
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return flushed, firstErr
}
