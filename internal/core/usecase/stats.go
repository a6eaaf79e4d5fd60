package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

type StatsUseCase struct {
	repo     ports.DocumentRepository
	presence *PresenceUseCase
}

func NewStatsUseCase(repo ports.DocumentRepository, presence *PresenceUseCase) *StatsUseCase {
	return &StatsUseCase{repo: repo, presence: presence}
}

// Compute reads the counters independently; they are not a consistent snapshot.
func (uc *StatsUseCase) Compute(ctx context.Context, caller domain.Identity) (domain.DashboardStats, error) {
	if err := authz.Require(caller, authz.OpViewStats, "", authz.RelationNone); err != nil {
		return domain.DashboardStats{}, err
	}

	sessions, err := uc.presence.active(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	counts, err := uc.repo.CountByStatus(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("count documents: %w", err)
	}

	doctors := make(map[string]struct{})
	for _, s := range sessions {
		if s.Role == domain.RoleDoctor {
			doctors[s.UserID] = struct{}{}
		}
	}

	return domain.DashboardStats{
		OnlineUsers:         len(sessions),
		TotalDocuments:      counts.Total,
		ProcessingDocuments: counts.InFlight(),
		ActiveDoctors:       len(doctors),
	}, nil
}
