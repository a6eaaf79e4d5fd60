package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

// RoleRepository stores administrator role overrides keyed by user id.
type RoleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) SetRole(ctx context.Context, userID string, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO user_roles (user_id, role, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at
`, userID, string(role), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert user role: %w", err)
	}
	return nil
}

func (r *RoleRepository) GetRole(ctx context.Context, userID string) (domain.Role, bool, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select user role: %w", err)
	}
	return domain.Role(role), true, nil
}
