// Package history is the append-only log of point-changing actions.
package history

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries []models.TrustHistoryEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.TrustHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *InMemoryStore) ListForUser(_ context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustHistoryEntry, error) {
	return s.newestFirst(func(e *models.TrustHistoryEntry) bool {
		return e.CommunityID == communityID && e.ToUserID == userID
	}, limit, offset), nil
}

func (s *InMemoryStore) ListForCommunity(_ context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustHistoryEntry, error) {
	return s.newestFirst(func(e *models.TrustHistoryEntry) bool {
		return e.CommunityID == communityID
	}, limit, offset), nil
}

func (s *InMemoryStore) ListForUserAllCommunities(_ context.Context, userID id.UserID, limit, offset int) ([]*models.TrustHistoryEntry, error) {
	return s.newestFirst(func(e *models.TrustHistoryEntry) bool {
		return e.ToUserID == userID
	}, limit, offset), nil
}

// ListForUserChronological returns every entry received by userID inside the
// filter, oldest first. Start is inclusive and End exclusive.
func (s *InMemoryStore) ListForUserChronological(_ context.Context, userID id.UserID, filter models.HistoryFilter) ([]*models.TrustHistoryEntry, error) {
	out := s.collect(func(e *models.TrustHistoryEntry) bool {
		if e.ToUserID != userID {
			return false
		}
		if filter.CommunityID != nil && e.CommunityID != *filter.CommunityID {
			return false
		}
		if !filter.Start.IsZero() && e.CreatedAt.Before(filter.Start) {
			return false
		}
		if !filter.End.IsZero() && !e.CreatedAt.Before(filter.End) {
			return false
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) collect(match func(*models.TrustHistoryEntry) bool) []*models.TrustHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrustHistoryEntry, 0)
	for i := range s.entries {
		if match(&s.entries[i]) {
			cp := s.entries[i]
			out = append(out, &cp)
		}
	}
	return out
}

// newestFirst orders by CreatedAt descending, falling back to reverse append
// order for equal timestamps, then applies offset and limit. A non-positive
// limit returns everything after offset.
func (s *InMemoryStore) newestFirst(match func(*models.TrustHistoryEntry) bool, limit, offset int) []*models.TrustHistoryEntry {
	out := s.collect(match)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset)
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
