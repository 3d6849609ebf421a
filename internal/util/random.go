package util

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const digits = "0123456789"

// RandomIntn returns a uniform random integer in [0, max).
func RandomIntn(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("random bound must be positive, got %d", max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("generating random number: %w", err)
	}
	return int(n.Int64()), nil
}

// RandomIntRange returns a uniform random integer in [lo, hi]. The bounds are
// swapped when lo > hi.
func RandomIntRange(lo, hi int) (int, error) {
	if lo > hi {
		lo, hi = hi, lo
	}
	n, err := RandomIntn(hi - lo + 1)
	if err != nil {
		return 0, err
	}
	return lo + n, nil
}

// RandomDigits returns n independently drawn decimal digits.
func RandomDigits(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := RandomIntn(len(digits))
		if err != nil {
			return "", fmt.Errorf("generating random digit: %w", err)
		}
		sb.WriteByte(digits[idx])
	}
	return sb.String(), nil
}
