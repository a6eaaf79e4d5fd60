package ports

import (
	"context"
	"io"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

// DocumentRepository persists and reads document state.
// Patch is a compare-and-set on the current status: it fails with
// domain.ErrConflict when the row is no longer in expected.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	// Delete removes a row that never left uploading; used to undo a failed hand-off.
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	Patch(ctx context.Context, id string, expected domain.DocumentStatus, patch domain.DocumentPatch) error
	ListByType(ctx context.Context, docType domain.DocumentType) ([]domain.Document, error)
	ListByPatient(ctx context.Context, patientID string) ([]domain.Document, error)
	CountByStatus(ctx context.Context) (domain.DocumentCounts, error)
}

// ObjectStorage stores uploaded file bodies.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// PhaseScheduler hands a freshly created document over to background analysis.
// Schedule must not block on any phase transition.
type PhaseScheduler interface {
	Schedule(ctx context.Context, documentID string) error
}

// AnalysisProvider produces the analysis payload attached at indexing time.
type AnalysisProvider interface {
	Analyze(ctx context.Context, doc *domain.Document) (domain.Analysis, error)
}

// SessionStore exposes presence sessions. Touch is called by the transport
// layer on each authenticated request; the core only lists.
type SessionStore interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	Touch(ctx context.Context, session domain.Session) error
}

// IdentityResolver turns an opaque caller token into an identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (domain.Identity, error)
}

// UserRoleStore keeps administrator-assigned role overrides.
type UserRoleStore interface {
	SetRole(ctx context.Context, userID string, role domain.Role) error
	GetRole(ctx context.Context, userID string) (domain.Role, bool, error)
}
