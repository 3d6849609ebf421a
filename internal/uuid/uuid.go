// Package uuid wraps github.com/google/uuid for event identifiers.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}
