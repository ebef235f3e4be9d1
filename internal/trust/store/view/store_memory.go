// Package view stores the materialized TrustView per (community, user).
// Points is derived data: models.Recompute over the ledgers is the source of
// truth, and AdjustPoints increments may drift until the next recalculation.
package view

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/requestcontext"
)

// AwardCounter and GrantReader supply the ledger side of a breakdown.
type AwardCounter interface {
	CountToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error)
}

type GrantReader interface {
	GetAmount(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error)
}

type viewKey struct {
	communityID id.CommunityID
	userID      id.UserID
}

type InMemoryStore struct {
	mu     sync.RWMutex
	views  map[viewKey]*models.TrustView
	awards AwardCounter
	grants GrantReader
}

// NewInMemoryStore builds a view store. awards and grants may be nil, in which
// case breakdowns report zero ledger contributions.
func NewInMemoryStore(awards AwardCounter, grants GrantReader) *InMemoryStore {
	return &InMemoryStore{
		views:  make(map[viewKey]*models.TrustView),
		awards: awards,
		grants: grants,
	}
}

func (s *InMemoryStore) Get(_ context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[viewKey{communityID, userID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

// UpsertZero creates a zero-point view when none exists and returns the
// current view either way.
func (s *InMemoryStore) UpsertZero(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ensureLocked(ctx, communityID, userID)
	cp := *v
	return &cp, nil
}

func (s *InMemoryStore) SetPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ensureLocked(ctx, communityID, userID)
	v.Points = points
	v.UpdatedAt = requestcontext.Now(ctx)
	return nil
}

// AdjustPoints adds delta to the stored points and returns the new value.
func (s *InMemoryStore) AdjustPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.ensureLocked(ctx, communityID, userID)
	v.Points += delta
	v.UpdatedAt = requestcontext.Now(ctx)
	return v.Points, nil
}

// ListByCommunity returns views ordered by points descending with their
// ledger breakdown.
func (s *InMemoryStore) ListByCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustViewBreakdown, error) {
	views, _ := s.ListAllForCommunity(ctx, communityID)
	sort.SliceStable(views, func(i, j int) bool { return views[i].Points > views[j].Points })
	views = page(views, limit, offset)

	out := make([]*models.TrustViewBreakdown, 0, len(views))
	for _, v := range views {
		b := &models.TrustViewBreakdown{TrustView: *v}
		if s.awards != nil {
			n, err := s.awards.CountToUser(ctx, communityID, v.UserID)
			if err != nil {
				return nil, err
			}
			b.PeerAwards = n * models.AwardPoints
		}
		if s.grants != nil {
			amount, err := s.grants.GetAmount(ctx, communityID, v.UserID)
			if err != nil {
				return nil, err
			}
			b.AdminGrant = amount
		}
		out = append(out, b)
	}
	return out, nil
}

// ListByUser returns the user's views across communities, highest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]*models.TrustView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrustView, 0)
	for k, v := range s.views {
		if k.userID == userID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out, nil
}

func (s *InMemoryStore) ListAllForCommunity(_ context.Context, communityID id.CommunityID) ([]*models.TrustView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrustView, 0)
	for k, v := range s.views {
		if k.communityID == communityID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.String() < out[j].UserID.String() })
	return out, nil
}

// GetBatchForUser returns the user's views keyed by community for the
// requested communities that have one. Empty input returns an empty map.
func (s *InMemoryStore) GetBatchForUser(_ context.Context, userID id.UserID, communityIDs []id.CommunityID) (map[id.CommunityID]*models.TrustView, error) {
	out := make(map[id.CommunityID]*models.TrustView, len(communityIDs))
	if len(communityIDs) == 0 {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cid := range communityIDs {
		if v, ok := s.views[viewKey{cid, userID}]; ok {
			cp := *v
			out[cid] = &cp
		}
	}
	return out, nil
}

func (s *InMemoryStore) ensureLocked(ctx context.Context, communityID id.CommunityID, userID id.UserID) *models.TrustView {
	k := viewKey{communityID, userID}
	v, ok := s.views[k]
	if !ok {
		v = &models.TrustView{
			ID:          id.NewTrustViewID(),
			CommunityID: communityID,
			UserID:      userID,
			UpdatedAt:   requestcontext.Now(ctx),
		}
		s.views[k] = v
	}
	return v
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
