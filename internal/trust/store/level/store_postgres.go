package level

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

const levelColumns = `id, community_id, name, threshold, created_at, updated_at`

// PostgresStore persists trust levels in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, level *models.TrustLevel) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_levels (`+levelColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(level.ID), uuid.UUID(level.CommunityID), level.Name, level.Threshold, level.CreatedAt, level.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert trust level: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, levelID id.TrustLevelID) (*models.TrustLevel, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+levelColumns+` FROM trust_levels WHERE id = $1`, uuid.UUID(levelID))
	return scanOne(row)
}

func (s *PostgresStore) FindByCommunityID(ctx context.Context, communityID id.CommunityID) ([]*models.TrustLevel, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT `+levelColumns+` FROM trust_levels
		WHERE community_id = $1
		ORDER BY threshold ASC, created_at ASC
	`, uuid.UUID(communityID))
	if err != nil {
		return nil, fmt.Errorf("list trust levels: %w", err)
	}
	defer rows.Close()
	out := make([]*models.TrustLevel, 0)
	for rows.Next() {
		l, err := scanLevel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trust level: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindByName(ctx context.Context, communityID id.CommunityID, name string) (*models.TrustLevel, error) {
	row := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+levelColumns+` FROM trust_levels WHERE community_id = $1 AND name = $2`,
		uuid.UUID(communityID), name)
	return scanOne(row)
}

func (s *PostgresStore) Update(ctx context.Context, level *models.TrustLevel) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE trust_levels SET name = $2, threshold = $3, updated_at = $4
		WHERE id = $1
	`, uuid.UUID(level.ID), level.Name, level.Threshold, level.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update trust level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, levelID id.TrustLevelID) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM trust_levels WHERE id = $1`, uuid.UUID(levelID))
	if err != nil {
		return fmt.Errorf("delete trust level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLevel(row scanner) (*models.TrustLevel, error) {
	var (
		l        models.TrustLevel
		lid, cid uuid.UUID
	)
	if err := row.Scan(&lid, &cid, &l.Name, &l.Threshold, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.ID = id.TrustLevelID(lid)
	l.CommunityID = id.CommunityID(cid)
	return &l, nil
}

func scanOne(row *sql.Row) (*models.TrustLevel, error) {
	l, err := scanLevel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find trust level: %w", err)
	}
	return l, nil
}
