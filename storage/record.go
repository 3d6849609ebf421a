package storage

import "time"

// CertificateRecord is the persisted row of an issued certificate.
// ExpiredOn is nil when the certificate never expires.
type CertificateRecord struct {
	ID                  int64      `json:"id"`
	UniqueCertificateID string     `json:"unique_certificate_id"`
	TemplateID          int64      `json:"certificate_template_id"`
	GeneratedBody       string     `json:"generated_body"`
	Client              string     `json:"client,omitempty"`
	ClientID            int64      `json:"client_id,omitempty"`
	UserID              int64      `json:"user_id"`
	State               int        `json:"state"`
	IssuedOn            time.Time  `json:"issued_on"`
	ExpiredOn           *time.Time `json:"expired_on,omitempty"`
	Comment             string     `json:"comment,omitempty"`
}

// Clone returns a deep copy of r.
func (r *CertificateRecord) Clone() *CertificateRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.ExpiredOn != nil {
		t := *r.ExpiredOn
		cp.ExpiredOn = &t
	}
	return &cp
}

// TemplateRecord is a stored certificate template. Page and font settings
// are the rendering parameters handed to the export collaborator.
type TemplateRecord struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	TemplateCSS  string    `json:"template_css,omitempty"`
	PageSize     string    `json:"page_size,omitempty"`
	Orientation  string    `json:"orientation,omitempty"`
	Font         string    `json:"font,omitempty"`
	CustomWidth  float64   `json:"custom_width,omitempty"`
	CustomHeight float64   `json:"custom_height,omitempty"`
	CustomFont   string    `json:"custom_font,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CertificateFilter selects certificates for List. Zero-valued fields do not
// constrain the result. When ExpiredOnly is set, only certificates with a
// real expiry strictly before Now are returned.
type CertificateFilter struct {
	Client      string
	ClientID    int64
	UserID      int64
	ExpiredOnly bool
	Now         time.Time
}

// Match reports whether rec satisfies f.
func (f CertificateFilter) Match(rec *CertificateRecord) bool {
	if f.Client != "" && rec.Client != f.Client {
		return false
	}
	if f.ClientID != 0 && rec.ClientID != f.ClientID {
		return false
	}
	if f.UserID != 0 && rec.UserID != f.UserID {
		return false
	}
	if f.ExpiredOnly {
		if rec.ExpiredOn == nil || !f.Now.After(*rec.ExpiredOn) {
			return false
		}
	}
	return true
}
