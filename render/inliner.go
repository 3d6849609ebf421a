// Package render provides the CSS inlining and PDF rendering collaborators
// used by certificate issuance and export.
package render

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vanng822/go-premailer/premailer"

	"github.com/jmcleod/ironcert/certificate"
)

// PremailerInliner moves stylesheet rules into style attributes so the
// stored body renders the same without its template CSS.
type PremailerInliner struct {
	opts *premailer.Options
}

var _ certificate.CSSInliner = (*PremailerInliner)(nil)

// NewPremailerInliner returns an inliner that keeps classes and does not
// copy CSS into legacy HTML attributes.
func NewPremailerInliner() *PremailerInliner {
	opts := premailer.NewOptions()
	opts.RemoveClasses = false
	opts.CssToAttributes = false
	return &PremailerInliner{opts: opts}
}

// Inline returns the body fragment of html with css applied inline.
func (p *PremailerInliner) Inline(html, css string) (string, error) {
	if strings.TrimSpace(css) == "" {
		return html, nil
	}
	doc := "<html><head><style>" + css + "</style></head><body>" + html + "</body></html>"
	prem, err := premailer.NewPremailerFromString(doc, p.opts)
	if err != nil {
		return "", fmt.Errorf("parsing certificate body: %w", err)
	}
	out, err := prem.Transform()
	if err != nil {
		return "", fmt.Errorf("inlining css: %w", err)
	}
	return bodyFragment(out)
}

func bodyFragment(doc string) (string, error) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parsing inlined document: %w", err)
	}
	body, err := parsed.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("extracting body: %w", err)
	}
	return body, nil
}
