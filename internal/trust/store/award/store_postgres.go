package award

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"trustline/internal/platform/postgres"
	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	txcontext "trustline/pkg/platform/tx"
)

const awardColumns = `id, community_id, from_user_id, to_user_id, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, award *models.TrustAward) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_awards (`+awardColumns+`)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(award.ID), uuid.UUID(award.CommunityID), uuid.UUID(award.FromUserID), uuid.UUID(award.ToUserID), award.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert trust award: %w", err)
	}
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (bool, error) {
	var exists bool
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM trust_awards
			WHERE community_id = $1 AND from_user_id = $2 AND to_user_id = $3
		)
	`, uuid.UUID(communityID), uuid.UUID(fromUserID), uuid.UUID(toUserID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check trust award: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (*models.TrustAward, error) {
	a, err := scanAward(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+awardColumns+` FROM trust_awards
		WHERE community_id = $1 AND from_user_id = $2 AND to_user_id = $3
	`, uuid.UUID(communityID), uuid.UUID(fromUserID), uuid.UUID(toUserID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get trust award: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Delete(ctx context.Context, communityID id.CommunityID, fromUserID, toUserID id.UserID) (*models.TrustAward, error) {
	a, err := scanAward(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		DELETE FROM trust_awards
		WHERE community_id = $1 AND from_user_id = $2 AND to_user_id = $3
		RETURNING `+awardColumns,
		uuid.UUID(communityID), uuid.UUID(fromUserID), uuid.UUID(toUserID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("delete trust award: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListFromUser(ctx context.Context, communityID id.CommunityID, fromUserID id.UserID) ([]*models.TrustAward, error) {
	return s.list(ctx, `
		SELECT `+awardColumns+` FROM trust_awards
		WHERE community_id = $1 AND from_user_id = $2
		ORDER BY created_at DESC
	`, uuid.UUID(communityID), uuid.UUID(fromUserID))
}

func (s *PostgresStore) ListToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) ([]*models.TrustAward, error) {
	return s.list(ctx, `
		SELECT `+awardColumns+` FROM trust_awards
		WHERE community_id = $1 AND to_user_id = $2
		ORDER BY created_at DESC
	`, uuid.UUID(communityID), uuid.UUID(toUserID))
}

func (s *PostgresStore) CountToUser(ctx context.Context, communityID id.CommunityID, toUserID id.UserID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM trust_awards WHERE community_id = $1 AND to_user_id = $2`,
		uuid.UUID(communityID), uuid.UUID(toUserID))
}

func (s *PostgresStore) CountFromUser(ctx context.Context, communityID id.CommunityID, fromUserID id.UserID) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM trust_awards WHERE community_id = $1 AND from_user_id = $2`,
		uuid.UUID(communityID), uuid.UUID(fromUserID))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.TrustAward, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trust awards: %w", err)
	}
	defer rows.Close()
	out := make([]*models.TrustAward, 0)
	for rows.Next() {
		a, err := scanAward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trust award: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trust awards: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAward(row scanner) (*models.TrustAward, error) {
	var (
		a                  models.TrustAward
		aid, cid, from, to uuid.UUID
	)
	if err := row.Scan(&aid, &cid, &from, &to, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AwardID(aid)
	a.CommunityID = id.CommunityID(cid)
	a.FromUserID = id.UserID(from)
	a.ToUserID = id.UserID(to)
	return &a, nil
}
