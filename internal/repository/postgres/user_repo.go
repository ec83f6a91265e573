// internal/repository/postgres/user_repository.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"vaspay-service/internal/domain/user"
	xerrors "vaspay-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads the identity projection this service keeps locally.
// Writes happen upstream in the identity service.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, phone_number, display_name, tier, created_at`

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByEmail matches case-insensitively; webhook payloads carry emails in
// whatever casing the customer typed at the payment gateway.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (r *UserRepository) scanOne(row pgx.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.PhoneNumber, &u.DisplayName, &u.Tier, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}
