package repo

import (
	"context"

	dom "github.com/Oliver-Leonor/taskmaster-enterprise/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepo provides user persistence.
type UserRepo interface {
	GetByEmail(ctx context.Context, email string) (dom.User, error)
	GetByID(ctx context.Context, id int64) (dom.User, error)
	Create(ctx context.Context, email, passwordHash string, role dom.Role) (dom.User, error)
	// SetRefreshTokenHash stores the sha256 of the current refresh token;
	// empty string revokes it (logout / rotation).
	SetRefreshTokenHash(ctx context.Context, id int64, hash string) error
}

// PGUserRepo implements UserRepo with Postgres.
type PGUserRepo struct {
	db *pgxpool.Pool
}

// NewPGUserRepo returns a new PGUserRepo.
func NewPGUserRepo(db *pgxpool.Pool) *PGUserRepo {
	return &PGUserRepo{db: db}
}

const userColumns = "id, email, password_hash, role, COALESCE(refresh_token_hash, ''), created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (dom.User, error) {
	var u dom.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role,
		&u.RefreshTokenHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByEmail returns the user by email (stored lowercased).
func (r *PGUserRepo) GetByEmail(ctx context.Context, email string) (dom.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

// GetByID returns the user by id.
func (r *PGUserRepo) GetByID(ctx context.Context, id int64) (dom.User, error) {
	return scanUser(r.db.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// Create inserts a new user and returns it.
func (r *PGUserRepo) Create(ctx context.Context, email, passwordHash string, role dom.Role) (dom.User, error) {
	query := `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING ` + userColumns
	return scanUser(r.db.QueryRow(ctx, query, email, passwordHash, role))
}

func (r *PGUserRepo) SetRefreshTokenHash(ctx context.Context, id int64, hash string) error {
	_, err := r.db.Exec(ctx,
		"UPDATE users SET refresh_token_hash = NULLIF($2, ''), updated_at = now() WHERE id = $1",
		id, hash)
	return err
}
