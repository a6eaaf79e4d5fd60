package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kirillkom/medical-portal/internal/core/domain"
)

// memoryRepo enforces the compare-and-set contract and checks document
// invariants after every write.
type memoryRepo struct {
	mu          sync.Mutex
	docs        map[string]domain.Document
	transitions []domain.DocumentStatus
	violations  []error
	createErr   error
}

func newMemoryRepo(docs ...domain.Document) *memoryRepo {
	repo := &memoryRepo{docs: map[string]domain.Document{}}
	for _, doc := range docs {
		repo.docs[doc.ID] = doc
	}
	return repo
}

func (r *memoryRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if err := doc.Validate(); err != nil {
		r.violations = append(r.violations, err)
	}
	r.docs[doc.ID] = *doc
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return &doc, nil
}

func (r *memoryRepo) Patch(_ context.Context, id string, expected domain.DocumentStatus, patch domain.DocumentPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "patch document", fmt.Errorf("id=%s", id))
	}
	if doc.Status != expected {
		return domain.WrapError(domain.ErrConflict, "patch document", fmt.Errorf("status=%s expected=%s", doc.Status, expected))
	}
	next := patch.Apply(doc)
	if next.Progress < doc.Progress {
		r.violations = append(r.violations, fmt.Errorf("progress decreased %d -> %d", doc.Progress, next.Progress))
	}
	if err := next.Validate(); err != nil {
		r.violations = append(r.violations, err)
	}
	r.docs[id] = next
	r.transitions = append(r.transitions, patch.Status)
	return nil
}

func (r *memoryRepo) ListByType(_ context.Context, docType domain.DocumentType) ([]domain.Document, error) {
	return r.filter(func(d domain.Document) bool { return d.Type == docType }), nil
}

func (r *memoryRepo) ListByPatient(_ context.Context, patientCaller string) ([]domain.Document, error) {
	return r.filter(func(d domain.Document) bool { return d.PatientID == patientCaller }), nil
}

func (r *memoryRepo) CountByStatus(context.Context) (domain.DocumentCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := domain.DocumentCounts{ByStatus: map[domain.DocumentStatus]int{}}
	for _, d := range r.docs {
		counts.Total++
		counts.ByStatus[d.Status]++
	}
	return counts, nil
}

func (r *memoryRepo) filter(keep func(domain.Document) bool) []domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Document
	for _, d := range r.docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) get(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.docs[id]
}

func (r *memoryRepo) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type storageFake struct {
	saved   map[string]string
	deleted []string
	err     error
}

func newStorageFake() *storageFake {
	return &storageFake{saved: map[string]string{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	delete(f.saved, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type schedulerFake struct {
	scheduled []string
	err       error
}

func (f *schedulerFake) Schedule(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, documentID)
	return nil
}

type analyzerFake struct {
	analysis domain.Analysis
	err      error
	calls    int
}

func (f *analyzerFake) Analyze(context.Context, *domain.Document) (domain.Analysis, error) {
	f.calls++
	if f.err != nil {
		return domain.Analysis{}, f.err
	}
	return f.analysis, nil
}

type sessionStoreFake struct {
	sessions []domain.Session
	err      error
}

func (f *sessionStoreFake) ListSessions(context.Context) ([]domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Session, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *sessionStoreFake) Touch(context.Context, domain.Session) error { return nil }

var (
	adminCaller   = domain.Identity{UserID: "a-1", Role: domain.RoleAdmin}
	doctorCaller  = domain.Identity{UserID: "d-1", Role: domain.RoleDoctor}
	patientCaller = domain.Identity{UserID: "p-1", Role: domain.RolePatient}
)
