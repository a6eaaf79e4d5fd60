package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

func seededDocuments() *memoryRepo {
	return newMemoryRepo(
		domain.Document{ID: "doc-1", Type: domain.TypePatient, PatientID: "p-1", Status: domain.StatusUploading},
		domain.Document{ID: "doc-2", Type: domain.TypePatient, PatientID: "p-2", Status: domain.StatusUploading},
		domain.Document{ID: "doc-3", Type: domain.TypePatient, PatientID: "p-1", Status: domain.StatusUploading},
		domain.Document{ID: "doc-4", Type: domain.TypeReference, Status: domain.StatusUploading},
	)
}

func TestListPatientDocumentsNarrowsPatientsToOwnRecords(t *testing.T) {
	uc := NewDocumentQueryUseCase(seededDocuments())

	docs, err := uc.ListByType(context.Background(), patientCaller, domain.TypePatient)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 own documents, got %d", len(docs))
	}
	for _, d := range docs {
		if d.PatientID != "p-1" {
			t.Fatalf("patient received another patient's document: %+v", d)
		}
	}
}

func TestListPatientDocumentsUnfilteredForStaff(t *testing.T) {
	uc := NewDocumentQueryUseCase(seededDocuments())

	for _, caller := range []domain.Identity{adminCaller, doctorCaller} {
		docs, err := uc.ListByType(context.Background(), caller, domain.TypePatient)
		if err != nil {
			t.Fatalf("ListByType(%s) error = %v", caller.Role, err)
		}
		if len(docs) != 3 {
			t.Fatalf("expected 3 patient documents for %s, got %d", caller.Role, len(docs))
		}
	}
}

func TestListReferenceDocumentsAdminOnly(t *testing.T) {
	uc := NewDocumentQueryUseCase(seededDocuments())

	docs, err := uc.ListByType(context.Background(), adminCaller, domain.TypeReference)
	if err != nil || len(docs) != 1 {
		t.Fatalf("expected 1 reference document for admin, got %d (%v)", len(docs), err)
	}
	for _, caller := range []domain.Identity{doctorCaller, patientCaller} {
		if _, err := uc.ListByType(context.Background(), caller, domain.TypeReference); !domain.IsKind(err, domain.ErrForbidden) {
			t.Fatalf("expected ErrForbidden for %s, got %v", caller.Role, err)
		}
	}
}

func TestListRejectsUnknownType(t *testing.T) {
	uc := NewDocumentQueryUseCase(seededDocuments())
	if _, err := uc.ListByType(context.Background(), adminCaller, domain.DocumentType("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListReturnsEmptySlice(t *testing.T) {
	uc := NewDocumentQueryUseCase(newMemoryRepo())
	docs, err := uc.ListByType(context.Background(), doctorCaller, domain.TypePatient)
	if err != nil {
		t.Fatalf("ListByType() error = %v", err)
	}
	if docs == nil {
		t.Fatalf("expected non-nil empty slice")
	}
}

func TestGetByIDAppliesDetailRules(t *testing.T) {
	uc := NewDocumentQueryUseCase(seededDocuments())
	ctx := context.Background()

	if _, err := uc.GetByID(ctx, patientCaller, "doc-1"); err != nil {
		t.Fatalf("expected owner to view own document, got %v", err)
	}
	if _, err := uc.GetByID(ctx, patientCaller, "doc-2"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another patient's document, got %v", err)
	}
	if _, err := uc.GetByID(ctx, doctorCaller, "doc-2"); err != nil {
		t.Fatalf("expected doctor to view patient document, got %v", err)
	}
	if _, err := uc.GetByID(ctx, doctorCaller, "doc-4"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for doctor on reference document, got %v", err)
	}
	if _, err := uc.GetByID(ctx, adminCaller, "missing"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
