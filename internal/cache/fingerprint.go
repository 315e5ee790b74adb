package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint derives the cache key from the canonical rendering of a
// request. Canonicalization is the caller's job (calc.Request.Canonical);
// hashing here guarantees identical canonical forms always collapse to the
// same key and distinct ones collide only with negligible probability.
func Fingerprint(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
