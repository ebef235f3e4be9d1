package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "trustline/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so the compiler rejects passing a
// CommunityID where a UserID is expected.
type (
	CommunityID    uuid.UUID
	UserID         uuid.UUID
	TrustLevelID   uuid.UUID
	TrustViewID    uuid.UUID
	HistoryEntryID uuid.UUID
	TrustEventID   uuid.UUID
	AwardID        uuid.UUID
	GrantID        uuid.UUID
)

func (id CommunityID) String() string    { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id TrustLevelID) String() string   { return uuid.UUID(id).String() }
func (id TrustViewID) String() string    { return uuid.UUID(id).String() }
func (id HistoryEntryID) String() string { return uuid.UUID(id).String() }
func (id TrustEventID) String() string   { return uuid.UUID(id).String() }
func (id AwardID) String() string        { return uuid.UUID(id).String() }
func (id GrantID) String() string        { return uuid.UUID(id).String() }

func (id CommunityID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id TrustLevelID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func ParseCommunityID(s string) (CommunityID, error) {
	u, err := parseUUID(s, "community_id")
	return CommunityID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user_id")
	return UserID(u), err
}

func ParseTrustLevelID(s string) (TrustLevelID, error) {
	u, err := parseUUID(s, "trust_level_id")
	return TrustLevelID(u), err
}

func ParseTrustEventID(s string) (TrustEventID, error) {
	u, err := parseUUID(s, "trust_event_id")
	return TrustEventID(u), err
}

// parseUUID is the single validation path for all typed IDs: non-empty,
// well-formed, and not the nil UUID.
func parseUUID(s, field string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be nil")
	}
	return u, nil
}

// NewCommunityID and friends mint fresh random identifiers.
func NewCommunityID() CommunityID       { return CommunityID(uuid.New()) }
func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewTrustLevelID() TrustLevelID     { return TrustLevelID(uuid.New()) }
func NewTrustViewID() TrustViewID       { return TrustViewID(uuid.New()) }
func NewHistoryEntryID() HistoryEntryID { return HistoryEntryID(uuid.New()) }
func NewTrustEventID() TrustEventID     { return TrustEventID(uuid.New()) }
func NewAwardID() AwardID               { return AwardID(uuid.New()) }
func NewGrantID() GrantID               { return GrantID(uuid.New()) }
