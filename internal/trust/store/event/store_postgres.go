package event

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	txcontext "trustline/pkg/platform/tx"
)

const eventColumns = `id, community_id, type, entity_type, entity_id, actor_user_id,
	subject_user_id_a, subject_user_id_b, points_delta_a, points_delta_b, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, event *models.TrustEvent) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(event.ID),
		uuid.UUID(event.CommunityID),
		event.Type,
		nullString(event.EntityType),
		nullString(event.EntityID),
		nullUser(event.ActorUserID),
		nullUser(event.SubjectUserIDA),
		nullUser(event.SubjectUserIDB),
		event.PointsDeltaA,
		event.PointsDeltaB,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trust event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.list(ctx, `WHERE community_id = $1 AND (subject_user_id_a = $2 OR subject_user_id_b = $2)`,
		limit, offset, uuid.UUID(communityID), uuid.UUID(userID))
}

func (s *PostgresStore) ListByUserB(ctx context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.list(ctx, `WHERE community_id = $1 AND subject_user_id_b = $2`,
		limit, offset, uuid.UUID(communityID), uuid.UUID(userID))
}

func (s *PostgresStore) ListByCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.list(ctx, `WHERE community_id = $1`, limit, offset, uuid.UUID(communityID))
}

func (s *PostgresStore) ListByUserAllCommunities(ctx context.Context, userID id.UserID, limit, offset int) ([]*models.TrustEvent, error) {
	return s.list(ctx, `WHERE subject_user_id_a = $1 OR subject_user_id_b = $1`, limit, offset, uuid.UUID(userID))
}

func (s *PostgresStore) list(ctx context.Context, where string, limit, offset int, args ...any) ([]*models.TrustEvent, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + eventColumns + ` FROM trust_events ` + where + ` ORDER BY created_at DESC`
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trust events: %w", err)
	}
	defer rows.Close()
	out := make([]*models.TrustEvent, 0)
	for rows.Next() {
		var (
			e                  models.TrustEvent
			eid, cid           uuid.UUID
			entityType, entity sql.NullString
			actor, subA, subB  uuid.NullUUID
		)
		if err := rows.Scan(&eid, &cid, &e.Type, &entityType, &entity, &actor, &subA, &subB,
			&e.PointsDeltaA, &e.PointsDeltaB, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trust event: %w", err)
		}
		e.ID = id.TrustEventID(eid)
		e.CommunityID = id.CommunityID(cid)
		e.EntityType = entityType.String
		e.EntityID = entity.String
		e.ActorUserID = userPtr(actor)
		e.SubjectUserIDA = userPtr(subA)
		e.SubjectUserIDB = userPtr(subB)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUser(u *id.UserID) uuid.NullUUID {
	if u == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*u), Valid: true}
}

func userPtr(n uuid.NullUUID) *id.UserID {
	if !n.Valid {
		return nil
	}
	u := id.UserID(n.UUID)
	return &u
}
