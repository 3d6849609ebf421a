package certificate

import (
	"context"
	"fmt"

	"github.com/jmcleod/ironcert/internal/util"
)

const (
	// DefaultPrefix is used when no identifier prefix is configured.
	DefaultPrefix = "CERT"
	// MaxIdentifierLength is the longest digit suffix a caller may request.
	MaxIdentifierLength = 30
	// MinRandomLength is the shortest suffix chosen when the length is random.
	MinRandomLength = 5
)

// ExistsFunc reports whether a candidate identifier is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// IdentifierGenerator mints identifiers of the form PREFIX-DIGITS that do not
// collide with existing records.
type IdentifierGenerator struct {
	maxAttempts int
	intRange    func(lo, hi int) (int, error)
	digits      func(n int) (string, error)
}

// GeneratorOption configures an IdentifierGenerator.
type GeneratorOption func(*IdentifierGenerator)

// WithMaxAttempts bounds the number of candidates tried. Zero, the default,
// retries until a free identifier is found or the context is done.
func WithMaxAttempts(n int) GeneratorOption {
	return func(g *IdentifierGenerator) {
		g.maxAttempts = n
	}
}

// NewIdentifierGenerator returns a generator drawing from crypto/rand.
func NewIdentifierGenerator(opts ...GeneratorOption) *IdentifierGenerator {
	g := &IdentifierGenerator{
		intRange: util.RandomIntRange,
		digits:   util.RandomDigits,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the first candidate for which exists reports false.
// Both the suffix length and the digits are redrawn on every attempt.
// An empty prefix falls back to DefaultPrefix.
func (g *IdentifierGenerator) Generate(ctx context.Context, prefix string, length int, fixed bool, exists ExistsFunc) (string, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	for attempt := 1; g.maxAttempts == 0 || attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := g.candidate(prefix, length, fixed)
		if err != nil {
			return "", err
		}
		if exists == nil {
			return candidate, nil
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking identifier %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free identifier after %d attempts: %w", g.maxAttempts, ErrDuplicateIdentifier)
}

func (g *IdentifierGenerator) candidate(prefix string, length int, fixed bool) (string, error) {
	n, err := g.resolveLength(length, fixed)
	if err != nil {
		return "", err
	}
	digits, err := g.digits(n)
	if err != nil {
		return "", err
	}
	return prefix + "-" + digits, nil
}

// resolveLength picks the suffix length. An out-of-range length is replaced
// by a random one in [MinRandomLength, MaxIdentifierLength]. A non-fixed
// length below MinRandomLength draws from [length, MinRandomLength].
func (g *IdentifierGenerator) resolveLength(length int, fixed bool) (int, error) {
	switch {
	case length < 1 || length > MaxIdentifierLength:
		return g.intRange(MinRandomLength, MaxIdentifierLength)
	case fixed:
		return length, nil
	default:
		return g.intRange(MinRandomLength, length)
	}
}
