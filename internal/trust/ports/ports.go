// Package ports declares the collaborators the trust engine depends on but
// does not own.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks AuthorizationOracle,CommunityConfigStore,Membership,RequirementWriter

import (
	"context"
	"encoding/json"

	"trustline/internal/community"
	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
)

// ResourceCommunity is the resource type permission checks are made against.
const ResourceCommunity = "community"

// AuthorizationOracle answers permission questions and mirrors trust-derived
// roles. The engine never evaluates policy itself.
type AuthorizationOracle interface {
	// CheckAccess reports whether user holds permission on the resource.
	CheckAccess(ctx context.Context, userID id.UserID, resourceType, resourceID, permission string) (bool, error)

	// SyncTrustRoles grants every trust role whose threshold is met by score
	// and revokes the rest. thresholds is keyed by trust role name.
	SyncTrustRoles(ctx context.Context, userID id.UserID, communityID id.CommunityID, score int, thresholds map[string]int) error
}

// CommunityConfigStore exposes the per-feature trust requirements of a community.
type CommunityConfigStore interface {
	FindByID(ctx context.Context, communityID id.CommunityID) (*community.Community, error)
}

// Membership answers role questions. Non-members have role "" and no roles.
type Membership interface {
	GetUserRole(ctx context.Context, communityID id.CommunityID, userID id.UserID) (string, error)
	GetUserRoles(ctx context.Context, communityID id.CommunityID, userID id.UserID) ([]string, error)
	IsAdmin(ctx context.Context, communityID id.CommunityID, userID id.UserID) (bool, error)
	ListMemberIDs(ctx context.Context, communityID id.CommunityID) ([]id.UserID, error)
}

// RequirementWriter validates and stores one feature's trust requirement.
// A JSON null clears it.
type RequirementWriter interface {
	UpdateTrustRequirement(ctx context.Context, communityID id.CommunityID, requesterID id.UserID, key models.FeatureKey, raw json.RawMessage) (*models.Requirement, error)
}
