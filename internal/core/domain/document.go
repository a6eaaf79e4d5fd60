package domain

import (
	"fmt"
	"time"
)

type DocumentType string

const (
	TypeReference DocumentType = "reference"
	TypePatient   DocumentType = "patient"
)

func (t DocumentType) Valid() bool {
	return t == TypeReference || t == TypePatient
}

type DocumentStatus string

const (
	StatusUploading  DocumentStatus = "uploading"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusError      DocumentStatus = "error"
)

// Terminal reports whether no further transition may leave the status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusIndexed || s == StatusError
}

// InFlight reports whether the document is still moving through analysis.
func (s DocumentStatus) InFlight() bool {
	return s == StatusUploading || s == StatusProcessing
}

const (
	ProgressStart      = 0
	ProgressProcessing = 50
	ProgressIndexed    = 100
)

type Document struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	StorageRef   string         `json:"storage_ref"`
	MimeType     string         `json:"mime_type"`
	Size         int64          `json:"size"`
	Type         DocumentType   `json:"type"`
	UploadedByID string         `json:"uploaded_by_id"`
	PatientID    string         `json:"patient_id,omitempty"`
	Status       DocumentStatus `json:"status"`
	Progress     int            `json:"progress"`
	Analysis     *Analysis      `json:"analysis,omitempty"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Analysis is the opaque payload produced by the analysis provider.
type Analysis struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	RiskAssessment  string   `json:"risk_assessment"`
	Recommendations []string `json:"recommendations"`
}

// DocumentPatch carries the mutable fields of a single phase transition.
// Nil fields are left untouched by the store.
type DocumentPatch struct {
	Status   DocumentStatus
	Progress *int
	Analysis *Analysis
	Error    *string
}

// Apply returns a copy of doc with the patch applied.
func (p DocumentPatch) Apply(doc Document) Document {
	if p.Status != "" {
		doc.Status = p.Status
	}
	if p.Progress != nil {
		doc.Progress = *p.Progress
	}
	if p.Analysis != nil {
		analysis := *p.Analysis
		doc.Analysis = &analysis
	}
	if p.Error != nil {
		doc.Error = *p.Error
	}
	return doc
}

// Validate checks the cross-field invariants every stored document must hold.
func (d Document) Validate() error {
	if !d.Type.Valid() {
		return fmt.Errorf("unknown document type %q", d.Type)
	}
	if (d.PatientID != "") != (d.Type == TypePatient) {
		return fmt.Errorf("patient id must be set only for patient documents")
	}
	if d.Progress < ProgressStart || d.Progress > ProgressIndexed {
		return fmt.Errorf("progress %d out of range", d.Progress)
	}
	if (d.Progress == ProgressIndexed) != (d.Status == StatusIndexed) {
		return fmt.Errorf("progress %d inconsistent with status %s", d.Progress, d.Status)
	}
	if (d.Analysis != nil) != (d.Status == StatusIndexed) {
		return fmt.Errorf("analysis presence inconsistent with status %s", d.Status)
	}
	return nil
}

type DocumentCounts struct {
	Total    int
	ByStatus map[DocumentStatus]int
}

func (c DocumentCounts) InFlight() int {
	return c.ByStatus[StatusUploading] + c.ByStatus[StatusProcessing]
}
