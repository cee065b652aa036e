package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGGatewayCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("insert into identities").
		WithArgs("u-1", "a@example.com", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow("u-1", "a@example.com", "hash", now, now))

	g := NewPGGateway(db)
	ident, err := g.Create(context.Background(), "u-1", "a@example.com", "hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ident.ID != "u-1" || ident.Email != "a@example.com" {
		t.Fatalf("unexpected identity: %+v", ident)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGGatewayCreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("insert into identities").
		WithArgs("u-1", "a@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_key"})

	g := NewPGGateway(db)
	_, err = g.Create(context.Background(), "u-1", "a@example.com", "hash")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGGatewayFindByEmailMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, email, password_hash, created_at, updated_at.*from identities").
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}))

	g := NewPGGateway(db)
	_, err = g.FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGGatewayDeleteMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from identities").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	g := NewPGGateway(db)
	if err := g.Delete(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGGatewayConsumeResetToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("delete from password_resets").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).
			AddRow("u-1", time.Now().UTC().Add(time.Hour)))

	g := NewPGGateway(db)
	userID, err := g.ConsumeResetToken(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("ConsumeResetToken: %v", err)
	}
	if userID != "u-1" {
		t.Fatalf("unexpected user id: %s", userID)
	}

	mock.ExpectQuery("delete from password_resets").
		WithArgs("tok-2").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at"}).
			AddRow("u-1", time.Now().UTC().Add(-time.Minute)))

	if _, err := g.ConsumeResetToken(context.Background(), "tok-2"); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestMemoryGatewayRoundTrip(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()

	if _, err := g.Create(ctx, "u-1", "a@example.com", "hash"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := g.Create(ctx, "u-2", "a@example.com", "hash"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	ident, err := g.FindByEmail(ctx, "a@example.com")
	if err != nil || ident.ID != "u-1" {
		t.Fatalf("FindByEmail: %v %+v", err, ident)
	}

	if err := g.UpdateEmail(ctx, "u-1", "b@example.com"); err != nil {
		t.Fatalf("UpdateEmail: %v", err)
	}
	if _, err := g.FindByEmail(ctx, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old email should be released, got %v", err)
	}

	rt, err := g.CreateResetToken(ctx, "u-1", time.Hour)
	if err != nil {
		t.Fatalf("CreateResetToken: %v", err)
	}
	userID, err := g.ConsumeResetToken(ctx, rt.Token)
	if err != nil || userID != "u-1" {
		t.Fatalf("ConsumeResetToken: %v %s", err, userID)
	}
	if _, err := g.ConsumeResetToken(ctx, rt.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("token should be single use, got %v", err)
	}

	if err := g.Delete(ctx, "u-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := g.Find(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
