// Package grant is the admin-grant ledger: one absolute override per
// (community, user).
package grant

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
)

type userKey struct {
	communityID id.CommunityID
	toUserID    id.UserID
}

type InMemoryStore struct {
	mu     sync.RWMutex
	grants map[userKey]*models.AdminTrustGrant
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{grants: make(map[userKey]*models.AdminTrustGrant)}
}

// Upsert creates the grant or overwrites amount, admin, and UpdatedAt on the
// existing one. It returns the stored row.
func (s *InMemoryStore) Upsert(_ context.Context, grant *models.AdminTrustGrant) (*models.AdminTrustGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{grant.CommunityID, grant.ToUserID}
	if existing, ok := s.grants[k]; ok {
		existing.TrustAmount = grant.TrustAmount
		existing.AdminUserID = grant.AdminUserID
		existing.UpdatedAt = grant.UpdatedAt
		cp := *existing
		return &cp, nil
	}
	stored := *grant
	s.grants[k] = &stored
	cp := stored
	return &cp, nil
}

func (s *InMemoryStore) Get(_ context.Context, communityID id.CommunityID, toUserID id.UserID) (*models.AdminTrustGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[userKey{communityID, toUserID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// GetAmount returns the grant amount, or 0 when the user has no grant.
func (s *InMemoryStore) GetAmount(_ context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if g, ok := s.grants[userKey{communityID, toUserID}]; ok {
		return g.TrustAmount, nil
	}
	return 0, nil
}

// ListByCommunity returns grants most recently updated first.
func (s *InMemoryStore) ListByCommunity(_ context.Context, communityID id.CommunityID) ([]*models.AdminTrustGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AdminTrustGrant, 0)
	for k, g := range s.grants {
		if k.communityID == communityID {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Delete removes the grant and returns it, or nil when there was none.
func (s *InMemoryStore) Delete(_ context.Context, communityID id.CommunityID, toUserID id.UserID) (*models.AdminTrustGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := userKey{communityID, toUserID}
	g, ok := s.grants[k]
	if !ok {
		return nil, nil
	}
	delete(s.grants, k)
	return g, nil
}
