package certificate

import (
	"context"
	"errors"
	"fmt"
	"html"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcleod/ironcert/internal/util"
	"github.com/jmcleod/ironcert/storage"
)

const (
	DefaultPageSize    = "A4"
	DefaultOrientation = "portrait"
	DefaultFont        = "DeJaVu Sans"

	// PageSizeCustom and FontCustom select the template's custom overrides.
	PageSizeCustom = "custom"
	FontCustom     = "custom"

	// DefaultCustomDimension is the custom page width and height in centimetres.
	DefaultCustomDimension = 80.0
)

// Export is a rendered certificate file.
type Export struct {
	FileName    string
	Content     []byte
	Certificate *Certificate
}

// Exporter renders valid certificates for their owners.
type Exporter struct {
	validator *Validator
	templates storage.TemplateStore
	renderer  Renderer
}

// NewExporter returns an Exporter. A nil renderer makes every export fail
// with ErrExportUnavailable.
func NewExporter(validator *Validator, templates storage.TemplateStore, renderer Renderer) *Exporter {
	return &Exporter{validator: validator, templates: templates, renderer: renderer}
}

// Export validates uniqueID, checks that userID owns the certificate and
// renders it with its template's page settings.
func (e *Exporter) Export(ctx context.Context, uniqueID string, userID int64) (*Export, error) {
	ctx, span := tracer().Start(ctx, "certificate.Export", trace.WithAttributes(
		attribute.String("certificate.unique_id", uniqueID),
		attribute.Int64("certificate.user_id", userID),
	))
	defer span.End()

	out, err := e.export(ctx, uniqueID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		return nil, err
	}
	return out, nil
}

func (e *Exporter) export(ctx context.Context, uniqueID string, userID int64) (*Export, error) {
	res, err := e.validator.Validate(ctx, uniqueID)
	if err != nil {
		return nil, err
	}
	if !res.Valid() {
		return nil, fmt.Errorf("certificate %s: %w", uniqueID, res.Outcome.Err())
	}
	cert := res.Certificate
	if userID == 0 || cert.UserID != userID {
		return nil, fmt.Errorf("certificate %s: %w", uniqueID, ErrNotOwner)
	}
	if e.renderer == nil {
		return nil, ErrExportUnavailable
	}

	doc, err := e.document(ctx, cert)
	if err != nil {
		return nil, err
	}
	content, err := e.renderer.Render(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("rendering certificate %s: %w", uniqueID, err)
	}
	return &Export{
		FileName:    util.SafeFilename("Certificate_" + cert.UniqueID + ".pdf"),
		Content:     content,
		Certificate: cert,
	}, nil
}

func (e *Exporter) document(ctx context.Context, cert *Certificate) (Document, error) {
	var tmpl storage.TemplateRecord
	if e.templates != nil {
		t, err := e.templates.GetTemplate(ctx, cert.TemplateID)
		switch {
		case err == nil:
			tmpl = *t
		case errors.Is(err, storage.ErrNotFound):
			// render with defaults when the template has since been removed
		default:
			return Document{}, fmt.Errorf("loading template %d: %w", cert.TemplateID, err)
		}
	}
	doc := PageSettings(&tmpl)
	doc.HTML = wrapHTML(cert.GeneratedBody, doc.Font)
	return doc, nil
}

// PageSettings resolves the page size, orientation and font of tmpl,
// applying defaults and the custom overrides.
func PageSettings(tmpl *storage.TemplateRecord) Document {
	doc := Document{
		PageSize:    orDefault(tmpl.PageSize, DefaultPageSize),
		Orientation: orDefault(tmpl.Orientation, DefaultOrientation),
		Font:        orDefault(tmpl.Font, DefaultFont),
	}
	if doc.PageSize == PageSizeCustom {
		doc.PageWidth = positiveOr(tmpl.CustomWidth, DefaultCustomDimension)
		doc.PageHeight = positiveOr(tmpl.CustomHeight, DefaultCustomDimension)
	}
	if doc.Font == FontCustom {
		doc.Font = orDefault(tmpl.CustomFont, DefaultFont)
	}
	return doc
}

func wrapHTML(body, font string) string {
	return `<html><head><meta http-equiv="Content-Type" content="text/html; charset=utf-8"/>` +
		`<style>body { font-family: "` + html.EscapeString(font) + `"; }</style></head><body>` +
		body + `</body></html>`
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func positiveOr(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
