package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trustline/internal/trust/models"
	id "trustline/pkg/domain"
	txcontext "trustline/pkg/platform/tx"
)

const historyColumns = `id, community_id, from_user_id, to_user_id, action, points_delta, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.TrustHistoryEntry) error {
	var from uuid.NullUUID
	if entry.FromUserID != nil {
		from = uuid.NullUUID{UUID: uuid.UUID(*entry.FromUserID), Valid: true}
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(entry.ID), uuid.UUID(entry.CommunityID), from, uuid.UUID(entry.ToUserID),
		string(entry.Action), entry.PointsDelta, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append trust history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListForUser(ctx context.Context, communityID id.CommunityID, userID id.UserID, limit, offset int) ([]*models.TrustHistoryEntry, error) {
	return s.list(ctx, `WHERE community_id = $1 AND to_user_id = $2`, limit, offset,
		uuid.UUID(communityID), uuid.UUID(userID))
}

func (s *PostgresStore) ListForCommunity(ctx context.Context, communityID id.CommunityID, limit, offset int) ([]*models.TrustHistoryEntry, error) {
	return s.list(ctx, `WHERE community_id = $1`, limit, offset, uuid.UUID(communityID))
}

func (s *PostgresStore) ListForUserAllCommunities(ctx context.Context, userID id.UserID, limit, offset int) ([]*models.TrustHistoryEntry, error) {
	return s.list(ctx, `WHERE to_user_id = $1`, limit, offset, uuid.UUID(userID))
}

func (s *PostgresStore) ListForUserChronological(ctx context.Context, userID id.UserID, filter models.HistoryFilter) ([]*models.TrustHistoryEntry, error) {
	where := []string{"to_user_id = $1"}
	args := []any{uuid.UUID(userID)}
	if filter.CommunityID != nil {
		args = append(args, uuid.UUID(*filter.CommunityID))
		where = append(where, fmt.Sprintf("community_id = $%d", len(args)))
	}
	if !filter.Start.IsZero() {
		args = append(args, filter.Start)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	query := `SELECT ` + historyColumns + ` FROM trust_history WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at ASC, id ASC`
	return s.query(ctx, query, args...)
}

// list applies newest-first ordering and paging. A non-positive limit means
// no limit.
func (s *PostgresStore) list(ctx context.Context, where string, limit, offset int, args ...any) ([]*models.TrustHistoryEntry, error) {
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + historyColumns + ` FROM trust_history ` + where + ` ORDER BY created_at DESC`
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.query(ctx, query, args...)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.TrustHistoryEntry, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list trust history: %w", err)
	}
	defer rows.Close()
	out := make([]*models.TrustHistoryEntry, 0)
	for rows.Next() {
		var (
			e             models.TrustHistoryEntry
			eid, cid, uid uuid.UUID
			from          uuid.NullUUID
			action        string
		)
		if err := rows.Scan(&eid, &cid, &from, &uid, &action, &e.PointsDelta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trust history: %w", err)
		}
		e.ID = id.HistoryEntryID(eid)
		e.CommunityID = id.CommunityID(cid)
		e.ToUserID = id.UserID(uid)
		e.Action = models.HistoryAction(action)
		if from.Valid {
			f := id.UserID(from.UUID)
			e.FromUserID = &f
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
