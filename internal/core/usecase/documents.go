package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

type DocumentQueryUseCase struct {
	repo ports.DocumentRepository
}

func NewDocumentQueryUseCase(repo ports.DocumentRepository) *DocumentQueryUseCase {
	return &DocumentQueryUseCase{repo: repo}
}

// ListByType returns every document of docType the caller may see. Patients
// are narrowed to their own records instead of being refused.
func (uc *DocumentQueryUseCase) ListByType(ctx context.Context, caller domain.Identity, docType domain.DocumentType) ([]domain.Document, error) {
	if !docType.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown document type %q", docType))
	}

	rel := authz.RelationNone
	if caller.Role == domain.RolePatient {
		rel = authz.RelationOwner
	}
	if err := authz.Require(caller, authz.OpListByType, docType, rel); err != nil {
		return nil, err
	}

	var (
		docs []domain.Document
		err  error
	)
	if rel == authz.RelationOwner {
		docs, err = uc.repo.ListByPatient(ctx, caller.UserID)
	} else {
		docs, err = uc.repo.ListByType(ctx, docType)
	}
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if docs == nil {
		docs = []domain.Document{}
	}
	return docs, nil
}

func (uc *DocumentQueryUseCase) GetByID(ctx context.Context, caller domain.Identity, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(caller, authz.OpViewDetail, doc.Type, authz.RelationTo(caller, *doc)); err != nil {
		return nil, err
	}
	return doc, nil
}
