package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/medical-portal/internal/core/authz"
	"github.com/kirillkom/medical-portal/internal/core/domain"
	"github.com/kirillkom/medical-portal/internal/core/ports"
)

const mebibyte = 1 << 20

// UploadLimits are the per-type size ceilings, in bytes.
type UploadLimits struct {
	ReferenceBytes int64
	PatientBytes   int64
}

func DefaultUploadLimits() UploadLimits {
	return UploadLimits{
		ReferenceBytes: 200 * mebibyte,
		PatientBytes:   50 * mebibyte,
	}
}

func (l UploadLimits) For(docType domain.DocumentType) (int64, bool) {
	switch docType {
	case domain.TypeReference:
		return l.ReferenceBytes, true
	case domain.TypePatient:
		return l.PatientBytes, true
	default:
		return 0, false
	}
}

type IngestDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	scheduler ports.PhaseScheduler
	limits    UploadLimits
	logger    *slog.Logger
	now       func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	scheduler ports.PhaseScheduler,
	limits UploadLimits,
	logger *slog.Logger,
) *IngestDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestDocumentUseCase{
		repo:      repo,
		storage:   storage,
		scheduler: scheduler,
		limits:    limits,
		logger:    logger,
		now:       time.Now,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	caller domain.Identity,
	req ports.UploadRequest,
	docType domain.DocumentType,
	patientID string,
) (*domain.Document, error) {
	limit, ok := uc.limits.For(docType)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", fmt.Errorf("unknown document type %q", docType))
	}
	if req.Size > limit {
		return nil, domain.WrapError(domain.ErrPayloadTooLarge, "upload", fmt.Errorf("%d bytes exceeds %s ceiling of %d", req.Size, docType, limit))
	}
	if err := authz.Require(caller, authz.OpUpload, docType, authz.RelationNone); err != nil {
		return nil, err
	}

	patientID = strings.TrimSpace(patientID)
	switch {
	case docType == domain.TypePatient && patientID == "":
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("patient id is required for patient documents"))
	case docType == domain.TypeReference:
		patientID = ""
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("file body is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))

	body := &countingReader{r: io.LimitReader(req.Body, limit+1)}
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if body.n > limit {
		uc.discard(ctx, storageKey)
		return nil, domain.WrapError(domain.ErrPayloadTooLarge, "upload", fmt.Errorf("body exceeds %s ceiling of %d", docType, limit))
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		ID:           id,
		Name:         req.Filename,
		StorageRef:   storageKey,
		MimeType:     req.MimeType,
		Size:         body.n,
		Type:         docType,
		UploadedByID: caller.UserID,
		PatientID:    patientID,
		Status:       domain.StatusUploading,
		Progress:     domain.ProgressStart,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.scheduler.Schedule(ctx, doc.ID); err != nil {
		if delErr := uc.repo.Delete(ctx, doc.ID); delErr != nil {
			uc.logger.Error("discard_document_failed", "document_id", doc.ID, "error", delErr)
		}
		uc.discard(ctx, storageKey)
		return nil, fmt.Errorf("schedule analysis: %w", err)
	}

	uc.logger.Info("document_uploaded",
		"document_id", doc.ID,
		"type", string(doc.Type),
		"size", doc.Size,
		"uploaded_by", caller.UserID,
	)
	return doc, nil
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(ctx, key); err != nil {
		uc.logger.Warn("discard_upload_failed", "storage_ref", key, "error", err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.bin"
	}
	return base
}
