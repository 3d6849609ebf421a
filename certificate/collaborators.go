package certificate

import (
	"context"
	"time"
)

// CSSInliner merges a stylesheet into HTML markup.
type CSSInliner interface {
	Inline(html, css string) (string, error)
}

// EventCertificateIssued is the event type emitted after a successful issuance.
const EventCertificateIssued = "CertificateIssued"

// Event is a post-issuance notification.
type Event struct {
	Type        string       `json:"type"`
	IsNew       bool         `json:"is_new"`
	Certificate *Certificate `json:"certificate"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Notifier receives issuance events. Delivery is best-effort; a returned
// error is logged and never undoes the issuance.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Document is a finalized certificate body with its page parameters.
type Document struct {
	HTML        string
	PageSize    string
	Orientation string
	// PageWidth and PageHeight are in centimetres and only set for the
	// custom page size.
	PageWidth  float64
	PageHeight float64
	Font       string
}

// Renderer turns a Document into a binary file, typically PDF.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// Cache memoises certificates loaded by internal id. Implementations must
// be safe for concurrent use; a miss is reported as (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, id int64) (*Certificate, bool, error)
	Put(ctx context.Context, c *Certificate) error
	Invalidate(ctx context.Context, id int64) error
}
