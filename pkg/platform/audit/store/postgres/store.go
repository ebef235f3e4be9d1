package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "trustline/pkg/domain"
	audit "trustline/pkg/platform/audit"
	txcontext "trustline/pkg/platform/tx"
)

// Store implements audit.Store on the trust_audit_events table. Appends made
// inside a RunInTx unit of work commit or roll back with the trust mutation.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}

	query := `
		INSERT INTO trust_audit_events (
			id, category, timestamp, community_id, user_id, actor_id,
			action, reason, points_delta, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		nullableUUID(uuid.UUID(event.CommunityID)),
		nullableUUID(uuid.UUID(event.UserID)),
		event.ActorID,
		event.Action,
		event.Reason,
		event.PointsDelta,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByUser returns events for a user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, community_id, user_id, actor_id,
			   action, reason, points_delta, request_id
		FROM trust_audit_events
		WHERE user_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListByCommunity returns the most recent events for a community.
func (s *Store) ListByCommunity(ctx context.Context, communityID id.CommunityID, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, community_id, user_id, actor_id,
			   action, reason, points_delta, request_id
		FROM trust_audit_events
		WHERE community_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(communityID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			category    string
			event       audit.Event
			communityID *uuid.UUID
			userID      *uuid.UUID
		)
		if err := rows.Scan(
			&category,
			&event.Timestamp,
			&communityID,
			&userID,
			&event.ActorID,
			&event.Action,
			&event.Reason,
			&event.PointsDelta,
			&event.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		if communityID != nil {
			event.CommunityID = id.CommunityID(*communityID)
		}
		if userID != nil {
			event.UserID = id.UserID(*userID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
