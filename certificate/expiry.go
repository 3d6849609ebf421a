package certificate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// NullDate is the text form of an expiry that never passes.
	NullDate = "0000-00-00 00:00:00"

	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

var (
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Expiry is a certificate expiry instant. The zero value means the
// certificate never expires and is distinct from every real timestamp,
// including the zero time.
type Expiry struct {
	at  time.Time
	set bool
}

// NoExpiry returns the never-expires value.
func NoExpiry() Expiry {
	return Expiry{}
}

// ExpiresAt returns an expiry at t, normalised to UTC.
func ExpiresAt(t time.Time) Expiry {
	return Expiry{at: t.UTC(), set: true}
}

// NormalizeExpiry parses a user supplied expiry. An empty value means no
// expiry. A date-time "YYYY-MM-DD HH:MM:SS" is taken as UTC; a date
// "YYYY-MM-DD" expires at 23:59:59 UTC that day.
func NormalizeExpiry(raw string) (Expiry, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == NullDate:
		return NoExpiry(), nil
	case dateTimePattern.MatchString(raw):
		t, err := time.ParseInLocation(dateTimeLayout, raw, time.UTC)
		if err != nil {
			return Expiry{}, fmt.Errorf("%q: %w", raw, ErrInvalidExpiry)
		}
		return ExpiresAt(t), nil
	case datePattern.MatchString(raw):
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return Expiry{}, fmt.Errorf("%q: %w", raw, ErrInvalidExpiry)
		}
		return ExpiresAt(t.Add(23*time.Hour + 59*time.Minute + 59*time.Second)), nil
	default:
		return Expiry{}, fmt.Errorf("%q: %w", raw, ErrInvalidExpiry)
	}
}

// Never reports whether e is the no-expiry value.
func (e Expiry) Never() bool {
	return !e.set
}

// Time returns the expiry instant and whether one is set.
func (e Expiry) Time() (time.Time, bool) {
	return e.at, e.set
}

// PassedAt reports whether now is strictly after the expiry.
func (e Expiry) PassedAt(now time.Time) bool {
	return e.set && now.UTC().After(e.at)
}

// String returns the canonical text form, NullDate for no expiry.
func (e Expiry) String() string {
	if !e.set {
		return NullDate
	}
	return e.at.Format(dateTimeLayout)
}

func (e Expiry) MarshalJSON() ([]byte, error) {
	if !e.set {
		return []byte("null"), nil
	}
	return json.Marshal(e.String())
}

func (e *Expiry) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*e = NoExpiry()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding expiry: %w", err)
	}
	parsed, err := NormalizeExpiry(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e Expiry) pointer() *time.Time {
	if !e.set {
		return nil
	}
	t := e.at
	return &t
}

func expiryFromPointer(t *time.Time) Expiry {
	if t == nil {
		return NoExpiry()
	}
	return ExpiresAt(*t)
}
