// Package memory provides a thread-safe in-memory implementation of
// storage.CertificateRepository and storage.TemplateStore.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jmcleod/ironcert/storage"
)

// Repository is a thread-safe in-memory certificate and template store.
// Suitable for testing, demos, and single-process use cases.
type Repository struct {
	mu        sync.RWMutex
	certs     map[int64]*storage.CertificateRecord
	byUnique  map[string]int64
	templates map[int64]*storage.TemplateRecord
	nextCert  int64
	nextTmpl  int64
}

var (
	_ storage.CertificateRepository = (*Repository)(nil)
	_ storage.TemplateStore         = (*Repository)(nil)
)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{
		certs:     make(map[int64]*storage.CertificateRecord),
		byUnique:  make(map[string]int64),
		templates: make(map[int64]*storage.TemplateRecord),
	}
}

func (r *Repository) Load(ctx context.Context, id int64) (*storage.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.certs[id]
	if !ok {
		return nil, fmt.Errorf("certificate %d: %w", id, storage.ErrNotFound)
	}
	return rec.Clone(), nil
}

func (r *Repository) LoadByUniqueID(ctx context.Context, uniqueID string) (*storage.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byUnique[uniqueID]
	if !ok {
		return nil, fmt.Errorf("certificate %s: %w", uniqueID, storage.ErrNotFound)
	}
	return r.certs[id].Clone(), nil
}

func (r *Repository) Exists(ctx context.Context, uniqueID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUnique[uniqueID]
	return ok, nil
}

// Insert stores rec under a fresh id. The unique certificate id is checked
// under the write lock, so concurrent inserts of the same id cannot both
// succeed.
func (r *Repository) Insert(ctx context.Context, rec *storage.CertificateRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUnique[rec.UniqueCertificateID]; ok {
		return 0, storage.ErrDuplicateKey
	}
	r.nextCert++
	stored := rec.Clone()
	stored.ID = r.nextCert
	r.certs[stored.ID] = stored
	r.byUnique[stored.UniqueCertificateID] = stored.ID
	return stored.ID, nil
}

func (r *Repository) SetState(ctx context.Context, id int64, state int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.certs[id]
	if !ok {
		return fmt.Errorf("certificate %d: %w", id, storage.ErrNotFound)
	}
	rec.State = state
	return nil
}

// List returns matching certificates ordered by id.
func (r *Repository) List(ctx context.Context, filter storage.CertificateFilter) ([]*storage.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*storage.CertificateRecord
	for _, rec := range r.certs {
		if filter.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Repository) GetTemplate(ctx context.Context, id int64) (*storage.TemplateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

// PutTemplate stores t. A zero ID allocates a new one; a non-zero ID
// replaces the existing template.
func (r *Repository) PutTemplate(ctx context.Context, t *storage.TemplateRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	if cp.ID == 0 {
		r.nextTmpl++
		cp.ID = r.nextTmpl
	} else if cp.ID > r.nextTmpl {
		r.nextTmpl = cp.ID
	}
	r.templates[cp.ID] = &cp
	return cp.ID, nil
}
