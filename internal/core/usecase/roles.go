package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

type RoleUseCase struct {
	roles  ports.UserRoleStore
	logger *slog.Logger
}

func NewRoleUseCase(roles ports.UserRoleStore, logger *slog.Logger) *RoleUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleUseCase{roles: roles, logger: logger}
}

func (uc *RoleUseCase) ChangeRole(ctx context.Context, caller domain.Identity, userID string, role domain.Role) error {
	if err := authz.Require(caller, authz.OpChangeRole, "", authz.RelationNone); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "change role", errors.New("user id is required"))
	}
	if !role.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "change role", fmt.Errorf("unknown role %q", role))
	}

	if err := uc.roles.SetRole(ctx, userID, role); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	uc.logger.Info("user_role_changed", "user_id", userID, "role", string(role), "changed_by", caller.UserID)
	return nil
}
