package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewDocumentRepository(db), mock, func() { _ = db.Close() }
}

var documentColumnNames = []string{
	"id", "name", "storage_ref", "mime_type", "size_bytes", "doc_type", "uploaded_by_id",
	"patient_id", "status", "progress", "analysis", "error_message", "created_at", "updated_at",
}

func TestCreateStoresNullPatientForReference(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs("doc-1", "guide.pdf", "doc-1_guide.pdf", "application/pdf", int64(12), "reference", "a-1",
			sql.NullString{}, "uploading", 0, nil, "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Document{
		ID: "doc-1", Name: "guide.pdf", StorageRef: "doc-1_guide.pdf", MimeType: "application/pdf", Size: 12,
		Type: domain.TypeReference, UploadedByID: "a-1", Status: domain.StatusUploading, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, storage_ref").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesAnalysis(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(documentColumnNames).AddRow(
		"doc-1", "scan.pdf", "doc-1_scan.pdf", "application/pdf", int64(99), "patient", "d-1",
		"p-1", "indexed", 100, []byte(`{"summary":"stable","key_findings":["a"]}`), "", now, now,
	)
	mock.ExpectQuery("SELECT id, name, storage_ref").WithArgs("doc-1").WillReturnRows(rows)

	doc, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.PatientID != "p-1" || doc.Analysis == nil || doc.Analysis.Summary != "stable" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("decoded document invalid: %v", err)
	}
}

func TestPatchIsConditionalOnExpectedStatus(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	progress := 50
	mock.ExpectExec(`UPDATE documents SET status = \$3, updated_at = \$4, progress = \$5 WHERE id = \$1 AND status = \$2`).
		WithArgs("doc-1", "uploading", "processing", sqlmock.AnyArg(), 50).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Patch(context.Background(), "doc-1", domain.StatusUploading, domain.DocumentPatch{
		Status:   domain.StatusProcessing,
		Progress: &progress,
	})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPatchReturnsConflictWhenStatusMoved(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM documents").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("error"))

	msg := "boom"
	err := repo.Patch(context.Background(), "doc-1", domain.StatusProcessing, domain.DocumentPatch{
		Status: domain.StatusError,
		Error:  &msg,
	})
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPatchReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM documents").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.Patch(context.Background(), "missing", domain.StatusUploading, domain.DocumentPatch{Status: domain.StatusProcessing})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPatchRequiresTargetStatus(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	if err := repo.Patch(context.Background(), "doc-1", domain.StatusUploading, domain.DocumentPatch{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListByPatientFiltersOnPatientID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(documentColumnNames).
		AddRow("doc-1", "a.pdf", "doc-1_a.pdf", "application/pdf", int64(1), "patient", "d-1", "p-1", "uploading", 0, nil, "", now, now).
		AddRow("doc-2", "b.pdf", "doc-2_b.pdf", "application/pdf", int64(2), "patient", "d-2", "p-1", "error", 50, nil, "model down", now, now)
	mock.ExpectQuery("WHERE patient_id = ").WithArgs("p-1").WillReturnRows(rows)

	docs, err := repo.ListByPatient(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("ListByPatient() error = %v", err)
	}
	if len(docs) != 2 || docs[1].Error != "model down" || docs[0].Analysis != nil {
		t.Fatalf("unexpected documents: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("uploading", 1).
			AddRow("processing", 2).
			AddRow("indexed", 4))

	counts, err := repo.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts.Total != 7 || counts.InFlight() != 3 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestDeleteRemovesRow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM documents WHERE id").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
