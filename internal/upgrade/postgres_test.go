package upgrade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"atlaskg.org/internal/account"
)

func TestPGStoreCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into upgrade_requests").
		WithArgs("req-1", "u-alice", "let me in", StatusPending, sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	store := NewPGStore(db)
	err = store.Create(context.Background(), &Request{
		ID:        "req-1",
		UserID:    "u-alice",
		Reason:    "let me in",
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFinalizeAcceptPromotesInOneTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	reviewedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update upgrade_requests").
		WithArgs("req-1", StatusAccepted, "approved", sqlmock.AnyArg(), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set role").
		WithArgs("u-alice", account.RoleEditor).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	err = store.Finalize(context.Background(), &Request{
		ID:         "req-1",
		UserID:     "u-alice",
		Status:     StatusAccepted,
		Message:    "approved",
		ReviewedAt: &reviewedAt,
	}, true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFinalizeDeclineSkipsPromotion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	reviewedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update upgrade_requests").
		WithArgs("req-1", StatusDeclined, "not yet", sqlmock.AnyArg(), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := NewPGStore(db)
	err = store.Finalize(context.Background(), &Request{
		ID:         "req-1",
		UserID:     "u-alice",
		Status:     StatusDeclined,
		Message:    "not yet",
		ReviewedAt: &reviewedAt,
	}, false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// A concurrent review that lands second sees zero affected rows and must
// report the transition failure instead of committing.
func TestPGStoreFinalizeLostRace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	reviewedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("update upgrade_requests").
		WithArgs("req-1", StatusAccepted, "", sqlmock.AnyArg(), StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	store := NewPGStore(db)
	err = store.Finalize(context.Background(), &Request{
		ID:         "req-1",
		UserID:     "u-alice",
		Status:     StatusAccepted,
		ReviewedAt: &reviewedAt,
	}, true)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreMostRecentForUserNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select r.id, r.user_id, u.username").
		WithArgs("u-alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "username", "reason", "status", "message", "created_at", "reviewed_at"}))

	store := NewPGStore(db)
	req, err := store.MostRecentForUser(context.Background(), "u-alice", StatusPending, StatusAccepted)
	if err != nil {
		t.Fatalf("most recent: %v", err)
	}
	if req != nil {
		t.Fatalf("expected nil request, got %+v", req)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindByIDScansRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "user_id", "username", "reason", "status", "message", "created_at", "reviewed_at"}).
		AddRow("req-1", "u-alice", "alice", "let me in", "PENDING", "", created, nil)
	mock.ExpectQuery("select r.id, r.user_id, u.username").
		WithArgs("req-1").
		WillReturnRows(rows)

	store := NewPGStore(db)
	req, err := store.FindByID(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if req.Username != "alice" || req.Status != StatusPending {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.ReviewedAt != nil {
		t.Fatalf("expected nil reviewed_at for a pending request")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
