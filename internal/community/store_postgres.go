package community

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trustline/internal/platform/postgres"
	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/sentinel"
	txcontext "trustline/pkg/platform/tx"
	"trustline/pkg/requestcontext"
)

// PostgresStore persists communities and memberships. Requirements live in a
// JSONB object keyed by feature config field; member roles in a TEXT[] column.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *Community) error {
	reqs, err := json.Marshal(requirementsOrEmpty(c.TrustRequirements))
	if err != nil {
		return fmt.Errorf("marshal trust requirements: %w", err)
	}
	now := requestcontext.Now(ctx)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO communities (id, name, trust_requirements, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.UUID(c.ID), c.Name, reqs, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert community: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, communityID id.CommunityID) (*Community, error) {
	var (
		c   Community
		raw []byte
		cid uuid.UUID
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, name, trust_requirements, created_at, updated_at
		FROM communities WHERE id = $1
	`, uuid.UUID(communityID)).Scan(&cid, &c.Name, &raw, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find community: %w", err)
	}
	c.ID = id.CommunityID(cid)
	if err := json.Unmarshal(raw, &c.TrustRequirements); err != nil {
		return nil, fmt.Errorf("decode trust requirements: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListIDs(ctx context.Context) ([]id.CommunityID, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `SELECT id FROM communities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()
	var out []id.CommunityID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan community id: %w", err)
		}
		out = append(out, id.CommunityID(u))
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetRequirement(ctx context.Context, communityID id.CommunityID, field string, req *models.Requirement) error {
	var (
		res sql.Result
		err error
	)
	now := requestcontext.Now(ctx)
	if req == nil {
		res, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, `
			UPDATE communities SET trust_requirements = trust_requirements - $2, updated_at = $3
			WHERE id = $1
		`, uuid.UUID(communityID), field, now)
	} else {
		var value []byte
		value, err = json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal trust requirement: %w", err)
		}
		res, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, `
			UPDATE communities
			SET trust_requirements = jsonb_set(trust_requirements, ARRAY[$2::text], $3::jsonb, true),
			    updated_at = $4
			WHERE id = $1
		`, uuid.UUID(communityID), field, value, now)
	}
	if err != nil {
		return fmt.Errorf("update trust requirement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddMember(ctx context.Context, m *Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = requestcontext.Now(ctx)
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO community_members (community_id, user_id, roles, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (community_id, user_id) DO UPDATE SET roles = EXCLUDED.roles
	`, uuid.UUID(m.CommunityID), uuid.UUID(m.UserID), pq.Array(m.Roles), m.JoinedAt)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, communityID id.CommunityID, userID id.UserID) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM community_members WHERE community_id = $1 AND user_id = $2`,
		uuid.UUID(communityID), uuid.UUID(userID))
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMember(ctx context.Context, communityID id.CommunityID, userID id.UserID) (*Member, error) {
	m := Member{CommunityID: communityID, UserID: userID}
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx, `
		SELECT roles, joined_at FROM community_members
		WHERE community_id = $1 AND user_id = $2
	`, uuid.UUID(communityID), uuid.UUID(userID)).Scan(pq.Array(&m.Roles), &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

func (s *PostgresStore) ListMemberIDs(ctx context.Context, communityID id.CommunityID) ([]id.UserID, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT user_id FROM community_members WHERE community_id = $1 ORDER BY user_id`,
		uuid.UUID(communityID))
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var out []id.UserID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		out = append(out, id.UserID(u))
	}
	return out, rows.Err()
}

func requirementsOrEmpty(m map[string]*models.Requirement) map[string]*models.Requirement {
	if m == nil {
		return map[string]*models.Requirement{}
	}
	return m
}
