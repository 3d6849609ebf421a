package certificate

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint returns a hex BLAKE2b-256 digest over the identifier, issue
// time and generated body. Holders can compare it against a rendering to
// detect tampering.
func Fingerprint(c *Certificate) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	h.Write([]byte(c.UniqueID))
	h.Write([]byte{0})
	h.Write([]byte(c.IssuedOn.UTC().Format(time.RFC3339)))
	h.Write([]byte{0})
	h.Write([]byte(c.GeneratedBody))
	return hex.EncodeToString(h.Sum(nil))
}
