package certificate

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRequiredField indicates a required issuance input was zero.
	ErrEmptyRequiredField = errors.New("empty required field")
	// ErrTemplateNotFound indicates the requested template does not exist.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrInvalidExpiry indicates the expiry value is neither a date nor a date-time.
	ErrInvalidExpiry = errors.New("invalid expiry")
	// ErrDuplicateIdentifier indicates every insert attempt collided with an existing identifier.
	ErrDuplicateIdentifier = errors.New("duplicate certificate identifier")

	// ErrNotFound indicates no certificate matches the given identifier.
	ErrNotFound = errors.New("certificate not found")
	// ErrInactive indicates the certificate has been deactivated.
	ErrInactive = errors.New("certificate inactive")
	// ErrExpired indicates the certificate expiry has passed.
	ErrExpired = errors.New("certificate expired")
	// ErrNotOwner indicates the caller does not own the certificate.
	ErrNotOwner = errors.New("not certificate owner")
	// ErrExportUnavailable indicates no document renderer is available.
	ErrExportUnavailable = errors.New("export unavailable")
	// ErrInvalidState indicates a state value other than active or inactive.
	ErrInvalidState = errors.New("invalid certificate state")
)

// IssuanceError reports which issuance precondition failed. Kind is one of
// the Err* sentinels above; Err is the underlying cause, if any.
type IssuanceError struct {
	Kind  error
	Field string
	Err   error
}

func (e *IssuanceError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "issuance failed: " + msg
}

// Unwrap exposes both Kind and Err to errors.Is and errors.As.
func (e *IssuanceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func issuanceErrorf(kind error, field string, err error) *IssuanceError {
	return &IssuanceError{Kind: kind, Field: field, Err: err}
}
