// Package certificate issues, validates and exports certificates rendered
// from templates.
//
// Issuance merges a payload into a template body, mints a collision-free
// public identifier, normalises the expiry and persists the result through a
// storage.CertificateRepository. Validation re-evaluates a stored certificate
// against its state and expiry on every call.
package certificate

import (
	"time"

	"github.com/jmcleod/ironcert/storage"
)

const (
	// StateInactive marks a deactivated certificate.
	StateInactive = 0
	// StateActive marks a usable certificate.
	StateActive = 1
)

// Certificate is one issued certificate.
type Certificate struct {
	ID            int64     `json:"id"`
	UniqueID      string    `json:"unique_certificate_id"`
	TemplateID    int64     `json:"certificate_template_id"`
	UserID        int64     `json:"user_id"`
	Client        string    `json:"client,omitempty"`
	ClientID      int64     `json:"client_id,omitempty"`
	GeneratedBody string    `json:"generated_body"`
	State         int       `json:"state"`
	IssuedOn      time.Time `json:"issued_on"`
	ExpiredOn     Expiry    `json:"expired_on"`
	Comment       string    `json:"comment,omitempty"`
}

// Active reports whether the certificate has not been deactivated.
func (c *Certificate) Active() bool {
	return c.State == StateActive
}

func (c *Certificate) toRecord() *storage.CertificateRecord {
	return &storage.CertificateRecord{
		ID:                  c.ID,
		UniqueCertificateID: c.UniqueID,
		TemplateID:          c.TemplateID,
		GeneratedBody:       c.GeneratedBody,
		Client:              c.Client,
		ClientID:            c.ClientID,
		UserID:              c.UserID,
		State:               c.State,
		IssuedOn:            c.IssuedOn,
		ExpiredOn:           c.ExpiredOn.pointer(),
		Comment:             c.Comment,
	}
}

func fromRecord(rec *storage.CertificateRecord) *Certificate {
	return &Certificate{
		ID:            rec.ID,
		UniqueID:      rec.UniqueCertificateID,
		TemplateID:    rec.TemplateID,
		UserID:        rec.UserID,
		Client:        rec.Client,
		ClientID:      rec.ClientID,
		GeneratedBody: rec.GeneratedBody,
		State:         rec.State,
		IssuedOn:      rec.IssuedOn.UTC(),
		ExpiredOn:     expiryFromPointer(rec.ExpiredOn),
		Comment:       rec.Comment,
	}
}

func (c *Certificate) clone() *Certificate {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
