package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmcleod/ironcert/storage"
)

// Outcome is the result of validating a certificate identifier.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeInactive
	OutcomeExpired
	OutcomeValid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeExpired:
		return "expired"
	case OutcomeInactive:
		return "inactive"
	default:
		return "not_found"
	}
}

// Err returns the sentinel matching o, or nil when o is OutcomeValid.
func (o Outcome) Err() error {
	switch o {
	case OutcomeValid:
		return nil
	case OutcomeExpired:
		return ErrExpired
	case OutcomeInactive:
		return ErrInactive
	default:
		return ErrNotFound
	}
}

// Result is a validation outcome. Certificate is set for every outcome
// except OutcomeNotFound, so callers can explain why a certificate is not
// usable; only OutcomeValid means it may be shown or exported.
type Result struct {
	Outcome     Outcome
	Certificate *Certificate
}

// Valid reports whether the certificate is usable.
func (r Result) Valid() bool {
	return r.Outcome == OutcomeValid
}

// Validator resolves identifiers to usable certificates. It holds no state
// between calls and never consults a cache.
type Validator struct {
	certs storage.CertificateRepository
	now   func() time.Time
}

// NewValidator returns a Validator reading from certs. Only WithClock applies.
func NewValidator(certs storage.CertificateRepository, opts ...Option) *Validator {
	o := newOptions(opts)
	return &Validator{certs: certs, now: o.now}
}

// Validate loads the certificate with the given public identifier and
// checks its state and expiry against the current UTC time. The error is
// non-nil only when storage fails.
func (v *Validator) Validate(ctx context.Context, uniqueID string) (Result, error) {
	ctx, span := tracer().Start(ctx, "certificate.Validate", trace.WithAttributes(
		attribute.String("certificate.unique_id", uniqueID),
	))
	defer span.End()

	if uniqueID == "" {
		return Result{Outcome: OutcomeNotFound}, nil
	}
	rec, err := v.certs.LoadByUniqueID(ctx, uniqueID)
	if errors.Is(err, storage.ErrNotFound) {
		span.SetAttributes(attribute.String("certificate.outcome", OutcomeNotFound.String()))
		return Result{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading certificate")
		return Result{}, fmt.Errorf("loading certificate %s: %w", uniqueID, err)
	}

	cert := fromRecord(rec)
	res := Result{Outcome: v.evaluate(cert), Certificate: cert}
	span.SetAttributes(attribute.String("certificate.outcome", res.Outcome.String()))
	return res, nil
}

func (v *Validator) evaluate(c *Certificate) Outcome {
	switch {
	case !c.Active():
		return OutcomeInactive
	case c.ExpiredOn.PassedAt(v.now()):
		return OutcomeExpired
	default:
		return OutcomeValid
	}
}
