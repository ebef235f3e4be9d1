package view

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	txcontext "trustline/pkg/platform/tx"
	"trustline/pkg/requestcontext"
)

const viewColumns = `id, community_id, user_id, points, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	v, err := scanView(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+viewColumns+` FROM trust_views WHERE community_id = $1 AND user_id = $2
	`, uuid.UUID(communityID), uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get trust view: %w", err)
	}
	return v, nil
}

// UpsertZero inserts a zero view if missing. The no-op update makes
// RETURNING yield the existing row on conflict.
func (s *PostgresStore) UpsertZero(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*models.TrustView, error) {
	v, err := scanView(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO trust_views (id, community_id, user_id, points, updated_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (community_id, user_id) DO UPDATE SET points = trust_views.points
		RETURNING `+viewColumns,
		uuid.New(), uuid.UUID(communityID), uuid.UUID(userID), requestcontext.Now(ctx)))
	if err != nil {
		return nil, fmt.Errorf("upsert trust view: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) SetPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, points int) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_views (id, community_id, user_id, points, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (community_id, user_id) DO UPDATE SET
			points = EXCLUDED.points,
			updated_at = EXCLUDED.updated_at
	`, uuid.New(), uuid.UUID(communityID), uuid.UUID(userID), points, requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("set trust view points: %w", err)
	}
	return nil
}

func (s *PostgresStore) AdjustPoints(ctx context.Context, communityID id.CommunityID, userID id.UserID, delta int) (int, error) {
	var points int
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO trust_views (id, community_id, user_id, points, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (community_id, user_id) DO UPDATE SET
			points = trust_views.points + EXCLUDED.points,
			updated_at = EXCLUDED.updated_at
		RETURNING points
	`, uuid.New(), uuid.UUID(communityID), uuid.UUID(userID), delta, requestcontext.Now(ctx)).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("adjust trust view points: %w", err)
	}
	return points, nil
}

func (s *PostgresStore) ListByCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustViewBreakdown, error) {
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT v.id, v.community_id, v.user_id, v.points, v.updated_at,
			(SELECT COUNT(*) FROM trust_awards a
				WHERE a.community_id = v.community_id AND a.to_user_id = v.user_id) AS peer_awards,
			COALESCE((SELECT g.trust_amount FROM admin_trust_grants g
				WHERE g.community_id = v.community_id AND g.to_user_id = v.user_id), 0) AS admin_grant
		FROM trust_views v
		WHERE v.community_id = $1
		ORDER BY v.points DESC, v.user_id
		OFFSET $2`
	args := []any{uuid.UUID(communityID), offset}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list community trust: %w", err)
	}
	defer rows.Close()
	out := make([]*models.TrustViewBreakdown, 0)
	for rows.Next() {
		var (
			b             models.TrustViewBreakdown
			vid, cid, uid uuid.UUID
			awards        int
		)
		if err := rows.Scan(&vid, &cid, &uid, &b.Points, &b.UpdatedAt, &awards, &b.AdminGrant); err != nil {
			return nil, fmt.Errorf("scan community trust: %w", err)
		}
		b.ID = id.TrustViewID(vid)
		b.CommunityID = id.CommunityID(cid)
		b.UserID = id.UserID(uid)
		b.PeerAwards = awards * models.AwardPoints
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.TrustView, error) {
	return s.list(ctx, `SELECT `+viewColumns+` FROM trust_views WHERE user_id = $1 ORDER BY points DESC`,
		uuid.UUID(userID))
}

func (s *PostgresStore) ListAllForCommunity(ctx context.Context, communityID id.CommunityID) ([]*models.TrustView, error) {
	return s.list(ctx, `SELECT `+viewColumns+` FROM trust_views WHERE community_id = $1 ORDER BY user_id`,
		uuid.UUID(communityID))
}

func (s *PostgresStore) GetBatchForUser(ctx context.Context, userID id.UserID, communityIDs []id.CommunityID) (map[id.CommunityID]*models.TrustView, error) {
	out := make(map[id.CommunityID]*models.TrustView, len(communityIDs))
	if len(communityIDs) == 0 {
		return out, nil
	}
	ids := make([]string, len(communityIDs))
	for i, cid := range communityIDs {
		ids[i] = cid.String()
	}
	views, err := s.list(ctx, `
		SELECT `+viewColumns+` FROM trust_views
		WHERE user_id = $1 AND community_id = ANY($2::uuid[])
	`, uuid.UUID(userID), pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		out[v.CommunityID] = v
	}
	return out, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.TrustView, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trust views: %w", err)
	}
	defer rows.Close()
	out := make([]*models.TrustView, 0)
	for rows.Next() {
		v, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trust view: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanView(row scanner) (*models.TrustView, error) {
	var (
		v             models.TrustView
		vid, cid, uid uuid.UUID
	)
	if err := row.Scan(&vid, &cid, &uid, &v.Points, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.ID = id.TrustViewID(vid)
	v.CommunityID = id.CommunityID(cid)
	v.UserID = id.UserID(uid)
	return &v, nil
}
