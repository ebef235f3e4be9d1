// Package event is the append-only narrative log of trust-relevant events,
// each with two optional subjects and a delta for each.
package event

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []models.TrustEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(_ context.Context, event *models.TrustEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// ListByUser returns events in the community where userID is either subject.
func (s *InMemoryStore) ListByUser(_ context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.newestFirst(func(e *models.TrustEvent) bool {
		return e.CommunityID == communityID && e.Touches(userID)
	}, limit, offset), nil
}

// ListByUserB returns events in the community where userID is subject B only.
func (s *InMemoryStore) ListByUserB(_ context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.newestFirst(func(e *models.TrustEvent) bool {
		return e.CommunityID == communityID && e.SubjectUserIDB != nil && *e.SubjectUserIDB == userID
	}, limit, offset), nil
}

func (s *InMemoryStore) ListByCommunity(_ context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.newestFirst(func(e *models.TrustEvent) bool {
		return e.CommunityID == communityID
	}, limit, offset), nil
}

func (s *InMemoryStore) ListByUserAllCommunities(_ context.Context, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.newestFirst(func(e *models.TrustEvent) bool {
		return e.Touches(userID)
	}, limit, offset), nil
}

func (s *InMemoryStore) newestFirst(match func(*models.TrustEvent) bool, limit, offset int) []*models.TrustEvent {
	s.mu.RLock()
	out := make([]*models.TrustEvent, 0)
	for i := len(s.events) - 1; i >= 0; i-- {
		if match(&s.events[i]) {
			cp := s.events[i]
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return out[:0]
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}
