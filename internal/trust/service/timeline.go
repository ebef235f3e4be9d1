package service

import (
	"context"
	"sort"
	"time"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	dErrors "trustline/pkg/domain-errors"
)

// GetTrustTimeline merges feature thresholds and level thresholds into one
// ascending roadmap and marks what the user has unlocked.
func (s *Service) GetTrustTimeline(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustTimeline, error) {
	if s.metrics != nil {
		defer s.metrics.ObserveTimeline(time.Now())
	}
	if _, err := s.requireMember(ctx, communityID, userID); err != nil {
		return nil, err
	}
	c, err := s.loadCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}
	score, err := s.points(ctx, s.stores.Views, communityID, userID)
	if err != nil {
		return nil, err
	}
	levels, err := s.levels.FindByCommunityID(ctx, communityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load trust levels")
	}
	resolved, err := s.resolver.ResolveAll(ctx, communityID, c)
	if err != nil {
		return nil, err
	}

	labels := make(map[int][]string)
	for _, f := range models.Features {
		t := resolved[f.Key]
		labels[t] = append(labels[t], f.Label)
	}
	// levels arrive ascending, so the first level seen at a threshold wins
	levelAt := make(map[int]*models.LevelRef)
	for _, l := range levels {
		if _, ok := levelAt[l.Threshold]; !ok {
			levelAt[l.Threshold] = &models.LevelRef{ID: l.ID, Name: l.Name}
		}
	}

	thresholds := make([]int, 0, len(labels)+len(levelAt))
	for t := range labels {
		thresholds = append(thresholds, t)
	}
	for t := range levelAt {
		if _, dup := labels[t]; !dup {
			thresholds = append(thresholds, t)
		}
	}
	sort.Ints(thresholds)

	timeline := make([]models.TimelineEntry, 0, len(thresholds))
	for _, t := range thresholds {
		perms := labels[t]
		if perms == nil {
			perms = []string{}
		}
		timeline = append(timeline, models.TimelineEntry{
			Threshold:   t,
			TrustLevel:  levelAt[t],
			Permissions: perms,
			Unlocked:    score >= t,
		})
	}
	return &models.TrustTimeline{UserTrustScore: score, Timeline: timeline}, nil
}

// GetEventTimeline lists every event touching the user, newest first, each
// with the user's running total up to and including that event.
func (s *Service) GetEventTimeline(ctx context.Context, communityID id.CommunityID, requesterID, userID id.UserID) ([]models.EventTimelineEntry, error) {
	if _, err := s.requireMember(ctx, communityID, requesterID); err != nil {
		return nil, err
	}
	events, err := s.stores.Events.ListByUser(ctx, communityID, userID, 0, 0)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trust events")
	}
	return BuildEventTimeline(events, userID), nil
}

// BuildEventTimeline accumulates deltas oldest first and returns the entries
// newest first. Events that do not touch userID are skipped.
func BuildEventTimeline(events []*models.TrustEvent, userID id.UserID) []models.EventTimelineEntry {
	chronological := make([]*models.TrustEvent, 0, len(events))
	for _, e := range events {
		if e.Touches(userID) {
			chronological = append(chronological, e)
		}
	}
	sort.SliceStable(chronological, func(i, j int) bool {
		return chronological[i].CreatedAt.Before(chronological[j].CreatedAt)
	})

	out := make([]models.EventTimelineEntry, len(chronological))
	total := 0
	for i, e := range chronological {
		delta := e.DeltaFor(userID)
		total += delta
		out[len(out)-1-i] = models.EventTimelineEntry{
			Event:           *e,
			Delta:           delta,
			CumulativeTrust: total,
		}
	}
	return out
}
