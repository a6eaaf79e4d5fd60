package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

type PresenceUseCase struct {
	sessions ports.SessionStore
	window   time.Duration
	now      func() time.Time
}

func NewPresenceUseCase(sessions ports.SessionStore, window time.Duration) *PresenceUseCase {
	if window <= 0 {
		window = domain.DefaultPresenceWindow
	}
	return &PresenceUseCase{
		sessions: sessions,
		window:   window,
		now:      time.Now,
	}
}

// ListActive returns every session seen within the presence window, most recent first.
func (uc *PresenceUseCase) ListActive(ctx context.Context, caller domain.Identity) ([]domain.Session, error) {
	if err := authz.Require(caller, authz.OpViewPresence, "", authz.RelationNone); err != nil {
		return nil, err
	}
	return uc.active(ctx)
}

func (uc *PresenceUseCase) active(ctx context.Context) ([]domain.Session, error) {
	sessions, err := uc.sessions.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	now := uc.now()
	active := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsActive(now, uc.window) {
			active = append(active, s)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].LastSeenAt.After(active[j].LastSeenAt)
	})
	return active, nil
}
