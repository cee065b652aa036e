package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrUniqueViolation = "23505"

var _ Gateway = (*PGGateway)(nil)

// PGGateway implements Gateway on PostgreSQL.
type PGGateway struct {
	db *sql.DB
}

func NewPGGateway(db *sql.DB) *PGGateway {
	return &PGGateway{db: db}
}

func (g *PGGateway) Create(ctx context.Context, id, email, passwordHash string) (*Identity, error) {
	var ident Identity
	row := g.db.QueryRowContext(ctx, `
		insert into identities (id, email, password_hash)
		values ($1, $2, $3)
		returning id, email, password_hash, created_at, updated_at
	`, id, email, passwordHash)
	if err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return &ident, nil
}

func (g *PGGateway) Find(ctx context.Context, id string) (*Identity, error) {
	row := g.db.QueryRowContext(ctx, `
		select id, email, password_hash, created_at, updated_at
		from identities where id = $1
	`, id)
	return scanIdentity(row)
}

func (g *PGGateway) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := g.db.QueryRowContext(ctx, `
		select id, email, password_hash, created_at, updated_at
		from identities where email = $1
	`, email)
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var ident Identity
	if err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

func (g *PGGateway) UpdateEmail(ctx context.Context, id, email string) error {
	res, err := g.db.ExecContext(ctx,
		`update identities set email = $1, updated_at = now() where id = $2`, email, id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return requireRow(res)
}

func (g *PGGateway) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := g.db.ExecContext(ctx,
		`update identities set password_hash = $1, updated_at = now() where id = $2`, passwordHash, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (g *PGGateway) Delete(ctx context.Context, id string) error {
	res, err := g.db.ExecContext(ctx, `delete from identities where id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (g *PGGateway) CreateResetToken(ctx context.Context, userID string, ttl time.Duration) (*ResetToken, error) {
	token := newResetToken()
	expires := time.Now().UTC().Add(ttl)
	_, err := g.db.ExecContext(ctx, `
		insert into password_resets (token, user_id, expires_at)
		values ($1, $2, $3)
	`, token, userID, expires)
	if err != nil {
		return nil, err
	}
	return &ResetToken{Token: token, UserID: userID, ExpiresAt: expires}, nil
}

func (g *PGGateway) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	var (
		userID  string
		expires time.Time
	)
	row := g.db.QueryRowContext(ctx, `
		delete from password_resets where token = $1
		returning user_id, expires_at
	`, token)
	if err := row.Scan(&userID, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if time.Now().UTC().After(expires) {
		return "", ErrTokenExpired
	}
	return userID, nil
}

func requireRow(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound
	}
	return nil
}

func newResetToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
