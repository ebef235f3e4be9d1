// Package community holds the membership and configuration facts the trust
// engine consults but does not own.
package community

import (
	"time"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Community carries the raw trust requirement for every gated feature,
// keyed by models.Feature.ConfigField. A missing key means no gating.
type Community struct {
	ID                id.CommunityID
	Name              string
	TrustRequirements map[string]*models.Requirement
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Requirement returns the configured requirement for a feature, or nil.
func (c *Community) Requirement(f models.Feature) *models.Requirement {
	if c == nil || c.TrustRequirements == nil {
		return nil
	}
	return c.TrustRequirements[f.ConfigField]
}

// Member is a user's membership row. The first role is the base role
// (admin or member); the rest are admin-assigned feature roles.
type Member struct {
	CommunityID id.CommunityID
	UserID      id.UserID
	Roles       []string
	JoinedAt    time.Time
}

func (m *Member) BaseRole() string {
	if len(m.Roles) == 0 {
		return ""
	}
	return m.Roles[0]
}

func (m *Member) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}
