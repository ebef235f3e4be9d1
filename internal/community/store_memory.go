package community

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	"trustline/pkg/requestcontext"
)

type memberKey struct {
	communityID id.CommunityID
	userID      id.UserID
}

// InMemoryStore implements the community configuration and membership
// lookups for development wiring and tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	communities map[id.CommunityID]*Community
	members     map[memberKey]*Member
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		communities: make(map[id.CommunityID]*Community),
		members:     make(map[memberKey]*Member),
	}
}

func (s *InMemoryStore) Create(ctx context.Context, c *Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.communities[c.ID]; ok {
		return sentinel.ErrConflict
	}
	now := requestcontext.Now(ctx)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.communities[c.ID] = cloneCommunity(c)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, communityID id.CommunityID) (*Community, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.communities[communityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneCommunity(c), nil
}

func (s *InMemoryStore) ListIDs(_ context.Context) ([]id.CommunityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]id.CommunityID, 0, len(s.communities))
	for cid := range s.communities {
		out = append(out, cid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// SetRequirement stores (or clears, when req is nil) one feature requirement.
func (s *InMemoryStore) SetRequirement(ctx context.Context, communityID id.CommunityID, field string, req *models.Requirement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.communities[communityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.TrustRequirements == nil {
		c.TrustRequirements = make(map[string]*models.Requirement)
	}
	if req == nil {
		delete(c.TrustRequirements, field)
	} else {
		c.TrustRequirements[field] = req
	}
	c.UpdatedAt = requestcontext.Now(ctx)
	return nil
}

// AddMember inserts or replaces a membership.
func (s *InMemoryStore) AddMember(ctx context.Context, m *Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.communities[m.CommunityID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *m
	cp.Roles = append([]string(nil), m.Roles...)
	if cp.JoinedAt.IsZero() {
		cp.JoinedAt = requestcontext.Now(ctx)
	}
	s.members[memberKey{m.CommunityID, m.UserID}] = &cp
	return nil
}

func (s *InMemoryStore) RemoveMember(_ context.Context, communityID id.CommunityID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{communityID, userID})
	return nil
}

func (s *InMemoryStore) GetMember(_ context.Context, communityID id.CommunityID, userID id.UserID) (*Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberKey{communityID, userID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	cp.Roles = append([]string(nil), m.Roles...)
	return &cp, nil
}

func (s *InMemoryStore) ListMemberIDs(_ context.Context, communityID id.CommunityID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []id.UserID
	for k := range s.members {
		if k.communityID == communityID {
			out = append(out, k.userID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func cloneCommunity(c *Community) *Community {
	cp := *c
	if c.TrustRequirements != nil {
		cp.TrustRequirements = make(map[string]*models.Requirement, len(c.TrustRequirements))
		for k, v := range c.TrustRequirements {
			cp.TrustRequirements[k] = v
		}
	}
	return &cp
}
