// Package award is the peer-award ledger: at most one award per
// (community, from, to), hard-deleted on removal.
package award

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
)

type pairKey struct {
	communityID id.CommunityID
	fromUserID  id.UserID
	toUserID    id.UserID
}

type InMemoryStore struct {
	mu     sync.RWMutex
	awards map[pairKey]*models.TrustAward
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{awards: make(map[pairKey]*models.TrustAward)}
}

func keyOf(a *models.TrustAward) pairKey {
	return pairKey{a.CommunityID, a.FromUserID, a.ToUserID}
}

func (s *InMemoryStore) Create(_ context.Context, award *models.TrustAward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(award)
	if _, ok := s.awards[k]; ok {
		return sentinel.ErrConflict
	}
	cp := *award
	s.awards[k] = &cp
	return nil
}

func (s *InMemoryStore) Exists(_ context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.awards[pairKey{communityID, fromUserID, toUserID}]
	return ok, nil
}

func (s *InMemoryStore) Get(_ context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (*models.TrustAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.awards[pairKey{communityID, fromUserID, toUserID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Delete removes the award and returns it, or returns nil when there was none.
func (s *InMemoryStore) Delete(_ context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (*models.TrustAward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pairKey{communityID, fromUserID, toUserID}
	a, ok := s.awards[k]
	if !ok {
		return nil, nil
	}
	delete(s.awards, k)
	return a, nil
}

func (s *InMemoryStore) ListFromUser(_ context.Context, communityID id.CommunityID, fromUserID id.UserID) ([]*models.TrustAward, error) {
	return s.filter(func(k pairKey) bool {
		return k.communityID == communityID && k.fromUserID == fromUserID
	}), nil
}

func (s *InMemoryStore) ListToUser(_ context.Context, communityID id.CommunityID, toUserID id.UserID) ([]*models.TrustAward, error) {
	return s.filter(func(k pairKey) bool {
		return k.communityID == communityID && k.toUserID == toUserID
	}), nil
}

func (s *InMemoryStore) CountToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error) {
	awards, _ := s.ListToUser(ctx, communityID, toUserID)
	return len(awards), nil
}

func (s *InMemoryStore) CountFromUser(ctx context.Context, communityID id.CommunityID, fromUserID id.UserID) (int, error) {
	awards, _ := s.ListFromUser(ctx, communityID, fromUserID)
	return len(awards), nil
}

// filter returns copies of matching awards, newest first.
func (s *InMemoryStore) filter(match func(pairKey) bool) []*models.TrustAward {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrustAward, 0)
	for k, a := range s.awards {
		if match(k) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
