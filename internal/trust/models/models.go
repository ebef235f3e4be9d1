package models

import (
	"time"

	id "trustline/pkg/domain"
)

// AwardPoints is what one active peer award contributes to the recipient.
const AwardPoints = 1

// TrustAward is one user vouching for another inside a community.
// At most one exists per (community, from, to) and from never equals to.
type TrustAward struct {
	ID          id.AwardID
	CommunityID id.CommunityID
	FromUserID  id.UserID
	ToUserID    id.UserID
	CreatedAt   time.Time
}

// AdminTrustGrant is the single absolute admin override for a user in a
// community. Upserts overwrite Amount and AdminUserID.
type AdminTrustGrant struct {
	ID          id.GrantID
	CommunityID id.CommunityID
	AdminUserID id.UserID
	ToUserID    id.UserID
	TrustAmount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type HistoryAction string

const (
	ActionAward      HistoryAction = "award"
	ActionRemove     HistoryAction = "remove"
	ActionAdminGrant HistoryAction = "admin_grant"
)

func (a HistoryAction) IsValid() bool {
	switch a {
	case ActionAward, ActionRemove, ActionAdminGrant:
		return true
	}
	return false
}

// TrustHistoryEntry is an append-only record of a point-changing action.
// PointsDelta is the signed change, never an absolute value.
type TrustHistoryEntry struct {
	ID          id.HistoryEntryID
	CommunityID id.CommunityID
	FromUserID  *id.UserID
	ToUserID    id.UserID
	Action      HistoryAction
	PointsDelta int
	CreatedAt   time.Time
}

// Well-known TrustEvent types. Type is free text; these are the ones the
// engine itself writes.
const (
	EventTypeShareRedeemed     = "share_redeemed"
	EventTypePostureAdjustment = "posture_adjustment"
	EntityTypeShare            = "share"
)

// TrustEvent is an append-only narrative record with two symmetric subjects,
// each with its own delta. Only CommunityID and Type are required.
type TrustEvent struct {
	ID             id.TrustEventID
	CommunityID    id.CommunityID
	Type           string
	EntityType     string
	EntityID       string
	ActorUserID    *id.UserID
	SubjectUserIDA *id.UserID
	SubjectUserIDB *id.UserID
	PointsDeltaA   int
	PointsDeltaB   int
	CreatedAt      time.Time
}

// DeltaFor returns the points this event contributed to userID. A user who is
// both subjects receives both deltas.
func (e *TrustEvent) DeltaFor(userID id.UserID) int {
	delta := 0
	if e.SubjectUserIDA != nil && *e.SubjectUserIDA == userID {
		delta += e.PointsDeltaA
	}
	if e.SubjectUserIDB != nil && *e.SubjectUserIDB == userID {
		delta += e.PointsDeltaB
	}
	return delta
}

// Touches reports whether userID is either subject of the event.
func (e *TrustEvent) Touches(userID id.UserID) bool {
	return (e.SubjectUserIDA != nil && *e.SubjectUserIDA == userID) ||
		(e.SubjectUserIDB != nil && *e.SubjectUserIDB == userID)
}

// TrustView is the materialized current score for a (community, user).
type TrustView struct {
	ID          id.TrustViewID
	CommunityID id.CommunityID
	UserID      id.UserID
	Points      int
	UpdatedAt   time.Time
}

// TrustViewBreakdown is a view with the ledger contributions alongside it.
// PeerAwards and AdminGrant describe the ledgers, so Points may differ from
// their sum when the view has drifted through AdjustPoints.
type TrustViewBreakdown struct {
	TrustView
	PeerAwards int
	AdminGrant int
}

// TrustLevel is a named threshold inside a community.
type TrustLevel struct {
	ID          id.TrustLevelID
	CommunityID id.CommunityID
	Name        string
	Threshold   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Recompute is the canonical reconciliation formula for a TrustView:
// one point per active award plus the admin grant amount (0 when absent).
func Recompute(awardCount, grantAmount int) int {
	return awardCount*AwardPoints + grantAmount
}
