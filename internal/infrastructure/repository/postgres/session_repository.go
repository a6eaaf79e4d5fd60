package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, role, location, last_seen_at
FROM sessions
ORDER BY last_seen_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var (
			s    domain.Session
			role string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &role, &s.Location, &s.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Role = domain.Role(role)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Touch upserts the session. A session id already owned by another user is left
// untouched and reported as ErrForbidden.
func (r *SessionRepository) Touch(ctx context.Context, s domain.Session) error {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (id, user_id, role, location, last_seen_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET role = EXCLUDED.role, location = EXCLUDED.location, last_seen_at = EXCLUDED.last_seen_at
WHERE sessions.user_id = EXCLUDED.user_id
`, s.ID, s.UserID, string(s.Role), s.Location, s.LastSeenAt.UTC())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrForbidden, "touch session", fmt.Errorf("session %s belongs to another user", s.ID))
	}
	return nil
}
