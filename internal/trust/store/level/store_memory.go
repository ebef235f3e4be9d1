// Package level persists named trust thresholds per community.
package level

import (
	"context"
	"sort"
	"sync"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
)

// InMemoryStore keeps trust levels in a map for development wiring and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	levels map[id.TrustLevelID]*models.TrustLevel
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{levels: make(map[id.TrustLevelID]*models.TrustLevel)}
}

// Create inserts a level. Names are unique per community, compared exactly.
func (s *InMemoryStore) Create(_ context.Context, level *models.TrustLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTakenLocked(level.CommunityID, level.Name, level.ID) {
		return sentinel.ErrConflict
	}
	cp := *level
	s.levels[level.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, levelID id.TrustLevelID) (*models.TrustLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.levels[levelID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// FindByCommunityID lists levels ascending by threshold. Equal thresholds
// are ordered by creation time.
func (s *InMemoryStore) FindByCommunityID(_ context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrustLevel, 0)
	for _, l := range s.levels {
		if l.CommunityID == communityID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sortLevels(out)
	return out, nil
}

func (s *InMemoryStore) FindByName(_ context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.levels {
		if l.CommunityID == communityID && l.Name == name {
			cp := *l
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Update(_ context.Context, level *models.TrustLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[level.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.nameTakenLocked(level.CommunityID, level.Name, level.ID) {
		return sentinel.ErrConflict
	}
	cp := *level
	s.levels[level.ID] = &cp
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, levelID id.TrustLevelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.levels[levelID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.levels, levelID)
	return nil
}

func (s *InMemoryStore) nameTakenLocked(communityID id.CommunityID, name string, except id.TrustLevelID) bool {
	for _, l := range s.levels {
		if l.CommunityID == communityID && l.Name == name && l.ID != except {
			return true
		}
	}
	return false
}

func sortLevels(levels []*models.TrustLevel) {
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].Threshold != levels[j].Threshold {
			return levels[i].Threshold < levels[j].Threshold
		}
		return levels[i].CreatedAt.Before(levels[j].CreatedAt)
	})
}
