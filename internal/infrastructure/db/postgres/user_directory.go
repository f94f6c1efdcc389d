package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/milsabores/identity-service/internal/core/domain"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL DEFAULT '',
	email                TEXT NOT NULL UNIQUE,
	password_hash        TEXT NOT NULL,
	role_id              INTEGER NOT NULL,
	external_identity_id TEXT,
	profile_image        BYTEA,
	birth_date           DATE,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_external_identity ON users (external_identity_id);`

const userColumns = `id, name, email, password_hash, role_id, external_identity_id, profile_image, birth_date, created_at, updated_at`

// UserDirectory stores users in a PostgreSQL table whose email column
// carries a unique constraint.
type UserDirectory struct {
	pool *pgxpool.Pool
}

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

// EnsureSchema creates the users table when missing.
func (r *UserDirectory) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserDirectory) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			password_hash = EXCLUDED.password_hash,
			role_id = EXCLUDED.role_id,
			external_identity_id = EXCLUDED.external_identity_id,
			profile_image = EXCLUDED.profile_image,
			birth_date = EXCLUDED.birth_date,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`

	var birthDate *time.Time
	if user.BirthDate != nil {
		t := user.BirthDate.Time()
		birthDate = &t
	}

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.DisplayName, user.Email, user.PasswordHash, user.RoleID,
		user.ExternalIdentityID, user.ProfileImage, birthDate, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("save user: %w", err)
	}

	saved := *user
	return &saved, nil
}

func (r *UserDirectory) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (r *UserDirectory) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

func (r *UserDirectory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)", email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

func (r *UserDirectory) FindByExternalIdentityID(ctx context.Context, externalID string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE external_identity_id = $1 LIMIT 1", externalID)
}

func (r *UserDirectory) scanUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		u         domain.User
		birthDate *time.Time
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.RoleID,
		&u.ExternalIdentityID, &u.ProfileImage, &birthDate, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if birthDate != nil {
		d := domain.DateFromTime(*birthDate)
		u.BirthDate = &d
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
