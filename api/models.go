package api

import (
	"time"

	"github.com/jmcleod/ironcert/certificate"
)

// CreateTemplateRequest is the body of POST /templates.
type CreateTemplateRequest struct {
	Title        string  `json:"title"`
	Body         string  `json:"body"`
	TemplateCSS  string  `json:"template_css,omitempty"`
	PageSize     string  `json:"page_size,omitempty"`
	Orientation  string  `json:"orientation,omitempty"`
	Font         string  `json:"font,omitempty"`
	CustomWidth  float64 `json:"custom_width,omitempty"`
	CustomHeight float64 `json:"custom_height,omitempty"`
	CustomFont   string  `json:"custom_font,omitempty"`
}

// TemplateResponse describes a stored template.
type TemplateResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	TemplateCSS  string    `json:"template_css,omitempty"`
	PageSize     string    `json:"page_size"`
	Orientation  string    `json:"orientation"`
	Font         string    `json:"font"`
	CustomWidth  float64   `json:"custom_width,omitempty"`
	CustomHeight float64   `json:"custom_height,omitempty"`
	CustomFont   string    `json:"custom_font,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// IssueCertificateRequest is the body of POST /certificates. Optional
// fields left unset fall back to the server's issue defaults.
type IssueCertificateRequest struct {
	UserID       int64               `json:"user_id"`
	TemplateID   int64               `json:"template_id"`
	Payload      certificate.Payload `json:"payload"`
	Prefix       string              `json:"prefix,omitempty"`
	RandomLength int                 `json:"random_length,omitempty"`
	FixedLength  *bool               `json:"fixed_length,omitempty"`
	Expiry       string              `json:"expiry,omitempty"`
	Comment      string              `json:"comment,omitempty"`
	Client       string              `json:"client,omitempty"`
	ClientID     int64               `json:"client_id,omitempty"`
}

// SetStateRequest is the body of PUT /certificates/{certificateID}/state.
type SetStateRequest struct {
	State *int `json:"state"`
}

// CertificateResponse describes an issued certificate.
type CertificateResponse struct {
	ID            int64              `json:"id"`
	UniqueID      string             `json:"unique_certificate_id"`
	TemplateID    int64              `json:"certificate_template_id"`
	UserID        int64              `json:"user_id"`
	Client        string             `json:"client,omitempty"`
	ClientID      int64              `json:"client_id,omitempty"`
	GeneratedBody string             `json:"generated_body"`
	State         int                `json:"state"`
	IssuedOn      time.Time          `json:"issued_on"`
	ExpiredOn     certificate.Expiry `json:"expired_on"`
	Comment       string             `json:"comment,omitempty"`
	Fingerprint   string             `json:"fingerprint"`
	ViewURL       string             `json:"view_url"`
	DownloadURL   string             `json:"download_url"`
}

// ListCertificatesResponse is a page of issued certificates.
type ListCertificatesResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
	PaginationMeta
}

// VerifyResponse is returned by GET /verify/{uniqueID}. Certificate is only
// present when Valid is true.
type VerifyResponse struct {
	UniqueID    string               `json:"unique_certificate_id"`
	Valid       bool                 `json:"valid"`
	Outcome     string               `json:"outcome"`
	Certificate *CertificateResponse `json:"certificate,omitempty"`
}

// ErrorResponse is returned for all error cases.
type ErrorResponse struct {
	Error string `json:"error"`
}
