package render

import (
	"context"
	"fmt"
	"math"
	"strings"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"

	"github.com/jmcleod/ironcert/certificate"
)

// PDFRenderer renders certificate documents with the wkhtmltopdf binary.
type PDFRenderer struct {
	dpi uint
}

var _ certificate.Renderer = (*PDFRenderer)(nil)

// PDFOption configures a PDFRenderer.
type PDFOption func(*PDFRenderer)

// WithDPI sets the output resolution. Default: 96.
func WithDPI(dpi uint) PDFOption {
	return func(r *PDFRenderer) {
		if dpi > 0 {
			r.dpi = dpi
		}
	}
}

// WithBinaryPath points wkhtmltopdf at an explicit executable. The path is
// process-wide.
func WithBinaryPath(path string) PDFOption {
	return func(*PDFRenderer) {
		if path != "" {
			wkhtmltopdf.SetPath(path)
		}
	}
}

// NewPDFRenderer returns a renderer. The binary is located on each render,
// so a missing installation surfaces as certificate.ErrExportUnavailable.
func NewPDFRenderer(opts ...PDFOption) *PDFRenderer {
	r := &PDFRenderer{dpi: 96}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Available reports whether the wkhtmltopdf binary can be found.
func (r *PDFRenderer) Available() bool {
	_, err := wkhtmltopdf.NewPDFGenerator()
	return err == nil
}

func (r *PDFRenderer) Render(ctx context.Context, doc certificate.Document) ([]byte, error) {
	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", certificate.ErrExportUnavailable, err)
	}
	pdfg.Dpi.Set(r.dpi)
	pdfg.Orientation.Set(orientation(doc.Orientation))
	if doc.PageSize == certificate.PageSizeCustom {
		pdfg.PageWidth.Set(cmToMM(doc.PageWidth))
		pdfg.PageHeight.Set(cmToMM(doc.PageHeight))
	} else {
		pdfg.PageSize.Set(strings.ToUpper(doc.PageSize))
	}

	page := wkhtmltopdf.NewPageReader(strings.NewReader(doc.HTML))
	page.Encoding.Set("utf-8")
	pdfg.AddPage(page)

	if err := pdfg.CreateContext(ctx); err != nil {
		return nil, fmt.Errorf("rendering pdf: %w", err)
	}
	return pdfg.Bytes(), nil
}

func orientation(o string) string {
	if strings.EqualFold(o, "landscape") {
		return wkhtmltopdf.OrientationLandscape
	}
	return wkhtmltopdf.OrientationPortrait
}

func cmToMM(cm float64) uint {
	return uint(math.Round(cm * 10))
}
