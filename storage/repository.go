// Package storage provides the persistence contract for issued certificates
// and their templates.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned by Insert when another certificate already
	// holds the same unique certificate id. Backends must enforce this at
	// write time; it is the authoritative uniqueness guard.
	ErrDuplicateKey = errors.New("duplicate unique certificate id")
)

// CertificateRepository stores issued certificates. Records are keyed by an
// internal id assigned on Insert, with a unique secondary index on
// UniqueCertificateID.
type CertificateRepository interface {
	Load(ctx context.Context, id int64) (*CertificateRecord, error)
	LoadByUniqueID(ctx context.Context, uniqueID string) (*CertificateRecord, error)
	Exists(ctx context.Context, uniqueID string) (bool, error)
	Insert(ctx context.Context, rec *CertificateRecord) (int64, error)
	SetState(ctx context.Context, id int64, state int) error
	List(ctx context.Context, filter CertificateFilter) ([]*CertificateRecord, error)
}

// TemplateStore supplies certificate templates by id.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id int64) (*TemplateRecord, error)
	PutTemplate(ctx context.Context, rec *TemplateRecord) (int64, error)
}
