package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, name, storage_ref, mime_type, size_bytes, doc_type, uploaded_by_id, patient_id, status, progress, analysis, error_message, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	analysisJSON, err := marshalAnalysis(doc.Analysis)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.Name, doc.StorageRef, doc.MimeType, doc.Size, string(doc.Type), doc.UploadedByID,
		nullString(doc.PatientID), string(doc.Status), doc.Progress, analysisJSON, doc.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

// Patch applies one transition atomically, but only while the row is still in expected.
func (r *DocumentRepository) Patch(ctx context.Context, id string, expected domain.DocumentStatus, patch domain.DocumentPatch) error {
	if patch.Status == "" {
		return domain.WrapError(domain.ErrInvalidInput, "patch document", errors.New("target status is required"))
	}

	args := []any{id, string(expected), string(patch.Status), time.Now().UTC()}
	sets := []string{"status = $3", "updated_at = $4"}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Progress != nil {
		add("progress", *patch.Progress)
	}
	if patch.Analysis != nil {
		analysisJSON, err := marshalAnalysis(patch.Analysis)
		if err != nil {
			return err
		}
		add("analysis", analysisJSON)
	}
	if patch.Error != nil {
		add("error_message", *patch.Error)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = $1 AND status = $2`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("patch document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("patch document rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.WrapError(domain.ErrDocumentNotFound, "patch document", fmt.Errorf("id=%s", id))
	case err != nil:
		return fmt.Errorf("read document status: %w", err)
	default:
		return domain.WrapError(domain.ErrConflict, "patch document",
			fmt.Errorf("id=%s status=%s expected=%s", id, current, expected))
	}
}

func (r *DocumentRepository) ListByType(ctx context.Context, docType domain.DocumentType) ([]domain.Document, error) {
	return r.list(ctx, `WHERE doc_type = $1`, string(docType))
}

func (r *DocumentRepository) ListByPatient(ctx context.Context, patientID string) ([]domain.Document, error) {
	return r.list(ctx, `WHERE patient_id = $1`, patientID)
}

func (r *DocumentRepository) list(ctx context.Context, where string, arg any) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
`+where+`
ORDER BY created_at DESC
`, arg)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) CountByStatus(ctx context.Context) (domain.DocumentCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return domain.DocumentCounts{}, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	counts := domain.DocumentCounts{ByStatus: map[domain.DocumentStatus]int{}}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return domain.DocumentCounts{}, fmt.Errorf("scan document count: %w", err)
		}
		counts.ByStatus[domain.DocumentStatus(status)] = n
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return domain.DocumentCounts{}, fmt.Errorf("iterate document counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var (
		doc         domain.Document
		docType     string
		status      string
		patientID   sql.NullString
		analysisRaw []byte
	)
	err := row.Scan(
		&doc.ID, &doc.Name, &doc.StorageRef, &doc.MimeType, &doc.Size, &docType, &doc.UploadedByID,
		&patientID, &status, &doc.Progress, &analysisRaw, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}

	doc.Type = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)
	doc.PatientID = patientID.String
	if len(analysisRaw) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(analysisRaw, &analysis); err != nil {
			return domain.Document{}, fmt.Errorf("unmarshal analysis: %w", err)
		}
		doc.Analysis = &analysis
	}
	return doc, nil
}

// marshalAnalysis returns an untyped nil for a missing analysis so the column stays NULL.
func marshalAnalysis(analysis *domain.Analysis) (any, error) {
	if analysis == nil {
		return nil, nil
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	return raw, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
