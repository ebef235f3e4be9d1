package service

import (
	"context"
	"sort"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
)

// recentChangesLimit caps TrustSummary.RecentChanges.
const recentChangesLimit = 10

type ChronologicalHistory interface {
	ListForUserChronological(ctx context.Context, userID id.UserID, filter models.HistoryFilter) ([]*models.TrustHistoryEntry, error)
}

type AwardCounter interface {
	CountToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error)
}

type GrantReader interface {
	GetAmount(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error)
}

// AnalyticsService answers history questions straight from the ledgers and
// the history log, bypassing the TrustView cache.
type AnalyticsService struct {
	history ChronologicalHistory
	awards  AwardCounter
	grants  GrantReader
}

func NewAnalyticsService(history ChronologicalHistory, awards AwardCounter, grants GrantReader) *AnalyticsService {
	return &AnalyticsService{history: history, awards: awards, grants: grants}
}

// Timeline returns the user's history inside the filter with a running
// total, newest first. The total starts at 0 at the beginning of the range.
func (s *AnalyticsService) Timeline(ctx context.Context, userID id.UserID, filter models.HistoryFilter) ([]models.HistoryTimelinePoint, error) {
	entries, err := s.history.ListForUserChronological(ctx, userID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust history")
	}
	return cumulative(entries), nil
}

func cumulative(entries []*models.TrustHistoryEntry) []models.HistoryTimelinePoint {
	out := make([]models.HistoryTimelinePoint, len(entries))
	total := 0
	for i, e := range entries {
		total += e.PointsDelta
		out[len(out)-1-i] = models.HistoryTimelinePoint{
			Timestamp:       e.CreatedAt,
			CommunityID:     e.CommunityID,
			FromUserID:      e.FromUserID,
			Action:          e.Action,
			PointsDelta:     e.PointsDelta,
			CumulativeTrust: total,
		}
	}
	return out
}

// Summary aggregates the user's whole history, optionally restricted to one
// community. TrustPerCommunity is ordered by descending trust.
func (s *AnalyticsService) Summary(ctx context.Context, userID id.UserID, communityID *id.CommunityID) (*models.TrustSummary, error) {
	entries, err := s.history.ListForUserChronological(ctx, userID, models.HistoryFilter{CommunityID: communityID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust history")
	}

	summary := &models.TrustSummary{}
	perCommunity := make(map[id.CommunityID]int)
	for _, e := range entries {
		summary.TotalTrust += e.PointsDelta
		perCommunity[e.CommunityID] += e.PointsDelta
		switch e.Action {
		case models.ActionAward:
			summary.AwardsReceived++
		case models.ActionRemove:
			summary.AwardsRemoved++
		}
	}

	summary.TrustPerCommunity = make([]models.CommunityTrustSummary, 0, len(perCommunity))
	for c, trust := range perCommunity {
		summary.TrustPerCommunity = append(summary.TrustPerCommunity, models.CommunityTrustSummary{CommunityID: c, Trust: trust})
	}
	sort.Slice(summary.TrustPerCommunity, func(i, j int) bool {
		a, b := summary.TrustPerCommunity[i], summary.TrustPerCommunity[j]
		if a.Trust != b.Trust {
			return a.Trust > b.Trust
		}
		return a.CommunityID.String() < b.CommunityID.String()
	})

	points := cumulative(entries)
	summary.RecentChanges = points[:min(recentChangesLimit, len(points))]
	return summary, nil
}

// CurrentScore recomputes the score from the ledgers without reading or
// writing the view.
func (s *AnalyticsService) CurrentScore(ctx context.Context, userID id.UserID, communityID id.CommunityID) (int, error) {
	awards, err := s.awards.CountToUser(ctx, communityID, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count awards")
	}
	grant, err := s.grants.GetAmount(ctx, communityID, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load admin grant")
	}
	return models.Recompute(awards, grant), nil
}
