package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcleod/ironcert/storage"
)

const tracerName = "github.com/jmcleod/ironcert/certificate"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// Issuer creates certificates from templates.
type Issuer struct {
	certs     storage.CertificateRepository
	templates storage.TemplateStore
	opts      options
}

// NewIssuer returns an Issuer persisting to certs and reading templates from templates.
func NewIssuer(certs storage.CertificateRepository, templates storage.TemplateStore, opts ...Option) *Issuer {
	return &Issuer{
		certs:     certs,
		templates: templates,
		opts:      newOptions(opts),
	}
}

// Issue renders the template for userID and stores exactly one new
// certificate. Every precondition is checked before the first write; a
// failed precondition is returned as an *IssuanceError.
func (i *Issuer) Issue(ctx context.Context, userID, templateID int64, payload Payload, opts ...IssueOption) (*Certificate, error) {
	ctx, span := tracer().Start(ctx, "certificate.Issue", trace.WithAttributes(
		attribute.Int64("certificate.user_id", userID),
		attribute.Int64("certificate.template_id", templateID),
	))
	defer span.End()

	cert, err := i.issue(ctx, userID, templateID, payload, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issuance failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("certificate.unique_id", cert.UniqueID))
	return cert, nil
}

func (i *Issuer) issue(ctx context.Context, userID, templateID int64, payload Payload, opts []IssueOption) (*Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params := issueParams{
		prefix:      i.opts.defaults.Prefix,
		length:      i.opts.defaults.Length,
		fixedLength: i.opts.defaults.FixedLength,
	}
	for _, opt := range opts {
		opt(&params)
	}

	if userID == 0 {
		return nil, issuanceErrorf(ErrEmptyRequiredField, "user_id", nil)
	}
	if templateID == 0 {
		return nil, issuanceErrorf(ErrEmptyRequiredField, "template_id", nil)
	}

	tmpl, err := i.templates.GetTemplate(ctx, templateID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, issuanceErrorf(ErrTemplateNotFound, "template_id", err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading template %d: %w", templateID, err)
	}

	body := i.mergeCSS(RenderBody(tmpl.Body, payload), tmpl.TemplateCSS, templateID)

	expiry, err := NormalizeExpiry(params.expiry)
	if err != nil {
		return nil, issuanceErrorf(ErrInvalidExpiry, "expiry", err)
	}

	cert := &Certificate{
		TemplateID:    templateID,
		UserID:        userID,
		Client:        params.client,
		ClientID:      params.clientID,
		GeneratedBody: body,
		State:         StateActive,
		ExpiredOn:     expiry,
		Comment:       params.comment,
	}
	if err := i.store(ctx, cert, params); err != nil {
		return nil, err
	}

	i.notify(ctx, cert)
	return cert, nil
}

// store inserts cert under a freshly generated identifier. A duplicate-key
// rejection means another issuer took the identifier between the existence
// check and the insert, so a new one is generated.
func (i *Issuer) store(ctx context.Context, cert *Certificate, params issueParams) error {
	for attempt := 1; attempt <= i.opts.maxInsertAttempts; attempt++ {
		uid, err := i.opts.generator.Generate(ctx, params.prefix, params.length, params.fixedLength, i.certs.Exists)
		if errors.Is(err, ErrDuplicateIdentifier) {
			return issuanceErrorf(ErrDuplicateIdentifier, "unique_certificate_id", err)
		}
		if err != nil {
			return fmt.Errorf("generating identifier: %w", err)
		}

		cert.UniqueID = uid
		cert.IssuedOn = i.opts.now().UTC()
		id, err := i.certs.Insert(ctx, cert.toRecord())
		if errors.Is(err, storage.ErrDuplicateKey) {
			i.opts.logger.Warn("identifier collided on insert, regenerating",
				slog.String("unique_id", uid),
				slog.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return fmt.Errorf("storing certificate %s: %w", uid, err)
		}
		cert.ID = id
		return nil
	}
	return issuanceErrorf(ErrDuplicateIdentifier, "unique_certificate_id",
		fmt.Errorf("%d insert attempts rejected", i.opts.maxInsertAttempts))
}

func (i *Issuer) mergeCSS(body, css string, templateID int64) string {
	if css == "" || i.opts.inliner == nil {
		return body
	}
	merged, err := i.opts.inliner.Inline(body, css)
	if err != nil {
		i.opts.logger.Warn("css inlining failed, keeping unmerged body",
			slog.Int64("template_id", templateID),
			slog.String("error", err.Error()),
		)
		return body
	}
	return merged
}

func (i *Issuer) notify(ctx context.Context, cert *Certificate) {
	if i.opts.notifier == nil {
		return
	}
	ev := Event{
		Type:        EventCertificateIssued,
		IsNew:       true,
		Certificate: cert.clone(),
		Timestamp:   i.opts.now().UTC(),
	}
	if err := i.opts.notifier.Notify(ctx, ev); err != nil {
		i.opts.logger.Warn("issuance notification failed",
			slog.String("unique_id", cert.UniqueID),
			slog.String("error", err.Error()),
		)
	}
}
