package render

import (
	"bytes"
	"context"
	"errors"
	"testing"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/ironcert/certificate"
)

func TestPremailerInliner(t *testing.T) {
	in := NewPremailerInliner()
	out, err := in.Inline(`<p class="name">Ann</p>`, `.name { color: red; }`)
	require.NoError(t, err)
	assert.Regexp(t, `style="color:\s*red;?"`, out)
	assert.Contains(t, out, "Ann")
	assert.NotContains(t, out, "<body>")
	assert.NotContains(t, out, "<style>")
}

func TestPremailerInliner_EmptyCSS(t *testing.T) {
	out, err := NewPremailerInliner().Inline("<p>x</p>", "  ")
	require.NoError(t, err)
	assert.Equal(t, "<p>x</p>", out)
}

func TestOrientationAndUnits(t *testing.T) {
	assert.Equal(t, wkhtmltopdf.OrientationLandscape, orientation("Landscape"))
	assert.Equal(t, wkhtmltopdf.OrientationPortrait, orientation("portrait"))
	assert.Equal(t, wkhtmltopdf.OrientationPortrait, orientation(""))
	assert.Equal(t, uint(800), cmToMM(80))
	assert.Equal(t, uint(297), cmToMM(29.7))
}

func TestPDFRenderer(t *testing.T) {
	r := NewPDFRenderer()
	doc := certificate.Document{
		HTML:        "<html><body><h1>Ann</h1></body></html>",
		PageSize:    "A4",
		Orientation: "portrait",
		Font:        certificate.DefaultFont,
	}
	if !r.Available() {
		_, err := r.Render(context.Background(), doc)
		assert.True(t, errors.Is(err, certificate.ErrExportUnavailable))
		t.Skip("wkhtmltopdf not installed")
	}

	out, err := r.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	doc.PageSize = certificate.PageSizeCustom
	doc.PageWidth, doc.PageHeight = 20, 10
	out, err = r.Render(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
