package models

import (
	"time"

	id "trustline/pkg/domain"
)

// LevelRef identifies a named level attached to a timeline threshold.
type LevelRef struct {
	ID   id.TrustLevelID
	Name string
}

// TimelineEntry is one distinct threshold in a community's trust timeline.
type TimelineEntry struct {
	Threshold   int
	TrustLevel  *LevelRef
	Permissions []string
	Unlocked    bool
}

// TrustTimeline is every distinct threshold from features and levels,
// strictly ascending.
type TrustTimeline struct {
	UserTrustScore int
	Timeline       []TimelineEntry
}

// EventTimelineEntry pairs a TrustEvent with the user's running total up to
// and including it.
type EventTimelineEntry struct {
	Event           TrustEvent
	Delta           int
	CumulativeTrust int
}

// HistoryTimelinePoint is one history entry with the running total across the
// filtered range.
type HistoryTimelinePoint struct {
	Timestamp       time.Time
	CommunityID     id.CommunityID
	FromUserID      *id.UserID
	Action          HistoryAction
	PointsDelta     int
	CumulativeTrust int
}

// HistoryFilter narrows analytics queries. Zero values mean unbounded.
type HistoryFilter struct {
	CommunityID *id.CommunityID
	Start       time.Time
	End         time.Time
}

// CommunityTrustSummary is a per-community slice of a TrustSummary.
type CommunityTrustSummary struct {
	CommunityID id.CommunityID
	Trust       int
}

// TrustSummary aggregates a user's history.
type TrustSummary struct {
	TotalTrust        int
	TrustPerCommunity []CommunityTrustSummary
	RecentChanges     []HistoryTimelinePoint
	AwardsReceived    int
	AwardsRemoved     int
}

// ResolvedRequirement is the detailed resolution result used for audit and UI.
type ResolvedRequirement struct {
	Type          RequirementKind
	Value         any
	ResolvedValue int
	LevelName     string
}

// TrustMe is a user's own view of their standing in a community.
type TrustMe struct {
	CommunityID   id.CommunityID
	UserID        id.UserID
	Points        int
	Roles         []string
	Trusted       bool
	IsAdmin       bool
	CanAwardTrust bool
	// Thresholds holds the resolved threshold of every feature.
	Thresholds map[FeatureKey]int
}

// Page is a clamped page/limit pair.
type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// NewPage clamps page to >= 1 and limit to [1, MaxPageLimit]. A non-positive
// limit falls back to DefaultPageLimit.
func NewPage(page, limit int) Page {
	return Page{Page: max(page, 1), Limit: clampLimit(limit)}
}

// Size is the clamped limit, also for a Page built without NewPage.
func (p Page) Size() int {
	return clampLimit(p.Limit)
}

// Offset is never negative, also for a Page built without NewPage.
func (p Page) Offset() int {
	return (max(p.Page, 1) - 1) * p.Size()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	return min(limit, MaxPageLimit)
}
