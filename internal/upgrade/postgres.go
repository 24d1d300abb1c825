package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"atlaskg.org/internal/account"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL. The schema carries a partial
// unique index on (user_id) where status in ('PENDING','ACCEPTED'); a
// concurrent insert that slips past the service-level check violates it
// and is reported as ErrDuplicateRequest.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, req *Request) error {
	_, err := s.db.ExecContext(ctx, `
		insert into upgrade_requests (id, user_id, reason, status, created_at)
		values ($1, $2, $3, $4, $5)
	`, req.ID, req.UserID, req.Reason, req.Status, req.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrDuplicateRequest
		}
		return err
	}
	return nil
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		select r.id, r.user_id, u.username, r.reason, r.status, coalesce(r.message, ''), r.created_at, r.reviewed_at
		from upgrade_requests r
		join users u on u.id = r.user_id
		where r.id = $1
	`, id)
	return scanRequest(row)
}

func (s *PGStore) MostRecentForUser(ctx context.Context, userID string, statuses ...Status) (*Request, error) {
	query := `
		select r.id, r.user_id, u.username, r.reason, r.status, coalesce(r.message, ''), r.created_at, r.reviewed_at
		from upgrade_requests r
		join users u on u.id = r.user_id
		where r.user_id = $1`
	if len(statuses) > 0 {
		query += " and r.status in (" + statusList(statuses) + ")"
	}
	query += " order by r.created_at desc limit 1"

	req, err := scanRequest(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, ErrRequestNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Finalize commits the review outcome. Both writes happen in one
// transaction: the status update is conditioned on the row still being
// PENDING, so a concurrent review loses with ErrInvalidTransition rather
// than double-applying.
func (s *PGStore) Finalize(ctx context.Context, req *Request, promote bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update upgrade_requests
		set status = $2, message = nullif($3, ''), reviewed_at = $4
		where id = $1 and status = $5
	`, req.ID, req.Status, req.Message, req.ReviewedAt, StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidTransition
	}

	if promote {
		res, err := tx.ExecContext(ctx, `
			update users set role = $2, updated_at = now() where id = $1
		`, req.UserID, account.RoleEditor)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrPrincipalNotFound
		}
	}
	return tx.Commit()
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.user_id, u.username, r.reason, r.status, coalesce(r.message, ''), r.created_at, r.reviewed_at
		from upgrade_requests r
		join users u on u.id = r.user_id
		where r.status = $1
		order by r.created_at asc
		limit $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Request
	for rows.Next() {
		var (
			req        Request
			reviewedAt sql.NullTime
		)
		if err := rows.Scan(&req.ID, &req.UserID, &req.Username, &req.Reason, &req.Status, &req.Message, &req.CreatedAt, &reviewedAt); err != nil {
			return nil, err
		}
		if reviewedAt.Valid {
			req.ReviewedAt = &reviewedAt.Time
		}
		result = append(result, &req)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var (
		req        Request
		reviewedAt sql.NullTime
	)
	err := row.Scan(&req.ID, &req.UserID, &req.Username, &req.Reason, &req.Status, &req.Message, &req.CreatedAt, &reviewedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if reviewedAt.Valid {
		req.ReviewedAt = &reviewedAt.Time
	}
	return &req, nil
}

// statusList renders enum values for an IN clause. Statuses come from our
// own constants, never from user input.
func statusList(statuses []Status) string {
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		parts = append(parts, fmt.Sprintf("'%s'", st))
	}
	return strings.Join(parts, ", ")
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
