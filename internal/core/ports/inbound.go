package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

// UploadRequest describes one uploaded file as seen by the ingestion engine.
type UploadRequest struct {
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, caller domain.Identity, req UploadRequest, docType domain.DocumentType, patientID string) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	ListByType(ctx context.Context, caller domain.Identity, docType domain.DocumentType) ([]domain.Document, error)
	GetByID(ctx context.Context, caller domain.Identity, id string) (*domain.Document, error)
}

// DocumentProcessor advances one document through its analysis phases.
type DocumentProcessor interface {
	Run(ctx context.Context, documentID string) error
}

type PresenceReader interface {
	ListActive(ctx context.Context, caller domain.Identity) ([]domain.Session, error)
}

type StatsReader interface {
	Compute(ctx context.Context, caller domain.Identity) (domain.DashboardStats, error)
}

type RoleManager interface {
	ChangeRole(ctx context.Context, caller domain.Identity, userID string, role domain.Role) error
}
