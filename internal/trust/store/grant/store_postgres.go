package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	txcontext "trustline/pkg/platform/tx"
)

const grantColumns = `id, community_id, admin_user_id, to_user_id, trust_amount, created_at, updated_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, grant *models.AdminTrustGrant) (*models.AdminTrustGrant, error) {
	g, err := scanGrant(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		INSERT INTO admin_trust_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (community_id, to_user_id) DO UPDATE SET
			trust_amount = EXCLUDED.trust_amount,
			admin_user_id = EXCLUDED.admin_user_id,
			updated_at = EXCLUDED.updated_at
		RETURNING `+grantColumns,
		uuid.UUID(grant.ID), uuid.UUID(grant.CommunityID), uuid.UUID(grant.AdminUserID), uuid.UUID(grant.ToUserID),
		grant.TrustAmount, grant.CreatedAt, grant.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert admin grant: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) Get(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (*models.AdminTrustGrant, error) {
	g, err := scanGrant(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+grantColumns+` FROM admin_trust_grants
		WHERE community_id = $1 AND to_user_id = $2
	`, uuid.UUID(communityID), uuid.UUID(toUserID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get admin grant: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) GetAmount(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error) {
	var amount int
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT COALESCE((
			SELECT trust_amount FROM admin_trust_grants
			WHERE community_id = $1 AND to_user_id = $2
		), 0)
	`, uuid.UUID(communityID), uuid.UUID(toUserID)).Scan(&amount)
	if err != nil {
		return 0, fmt.Errorf("get admin grant amount: %w", err)
	}
	return amount, nil
}

func (s *PostgresStore) ListByCommunity(ctx context.Context, communityID id.CommunityID) ([]*models.AdminTrustGrant, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+grantColumns+` FROM admin_trust_grants
		WHERE community_id = $1
		ORDER BY updated_at DESC
	`, uuid.UUID(communityID))
	if err != nil {
		return nil, fmt.Errorf("list admin grants: %w", err)
	}
	defer rows.Close()
	out := make([]*models.AdminTrustGrant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (*models.AdminTrustGrant, error) {
	g, err := scanGrant(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		DELETE FROM admin_trust_grants
		WHERE community_id = $1 AND to_user_id = $2
		RETURNING `+grantColumns,
		uuid.UUID(communityID), uuid.UUID(toUserID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delete admin grant: %w", err)
	}
	return g, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(row scanner) (*models.AdminTrustGrant, error) {
	var (
		g                  models.AdminTrustGrant
		gid, cid, adm, uid uuid.UUID
	)
	if err := row.Scan(&gid, &cid, &adm, &uid, &g.TrustAmount, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.ID = id.GrantID(gid)
	g.CommunityID = id.CommunityID(cid)
	g.AdminUserID = id.UserID(adm)
	g.ToUserID = id.UserID(uid)
	return &g, nil
}
