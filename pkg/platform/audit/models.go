package audit

import (
	"context"
	"time"

	id "trustline/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers admin actions that change a score by fiat or
	// reshape the level ladder. These need long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected attempts (non-members, non-admins).
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine peer activity and background jobs.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from trust services to capture key actions. It stays
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	CommunityID id.CommunityID
	// UserID is the user whose trust is affected.
	UserID id.UserID
	// ActorID is the user who performed the action, when there is one.
	ActorID     string
	Action      string
	Reason      string
	PointsDelta int
	RequestID   string
}

type AuditEvent string

const (
	EventTrustAwarded      AuditEvent = "trust_awarded"
	EventTrustRemoved      AuditEvent = "trust_removed"
	EventAdminGrantSet     AuditEvent = "admin_grant_set"
	EventAdminGrantDeleted AuditEvent = "admin_grant_deleted"
	EventShareRedeemed     AuditEvent = "share_redeemed"

	EventTrustLevelCreated    AuditEvent = "trust_level_created"
	EventTrustLevelUpdated    AuditEvent = "trust_level_updated"
	EventTrustLevelDeleted    AuditEvent = "trust_level_deleted"
	EventDefaultLevelsCreated AuditEvent = "default_levels_created"
	EventTrustRequirementSet  AuditEvent = "trust_requirement_set"

	EventTrustActionDenied AuditEvent = "trust_action_denied"

	EventRoleSyncFailed          AuditEvent = "role_sync_failed"
	EventRoleSyncDeferred        AuditEvent = "role_sync_deferred"
	EventReconciliationCompleted AuditEvent = "reconciliation_completed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventAdminGrantSet:        CategoryCompliance,
	EventAdminGrantDeleted:    CategoryCompliance,
	EventTrustLevelCreated:    CategoryCompliance,
	EventTrustLevelUpdated:    CategoryCompliance,
	EventTrustLevelDeleted:    CategoryCompliance,
	EventDefaultLevelsCreated: CategoryCompliance,
	EventTrustRequirementSet:  CategoryCompliance,

	EventTrustActionDenied: CategorySecurity,
	EventRoleSyncFailed:    CategorySecurity,

	EventTrustAwarded:            CategoryOperations,
	EventTrustRemoved:            CategoryOperations,
	EventShareRedeemed:           CategoryOperations,
	EventRoleSyncDeferred:        CategoryOperations,
	EventReconciliationCompleted: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what services depend on. publisher.Publisher and the kafka
// publisher both satisfy it.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
