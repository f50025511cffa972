package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ETag returns a strong entity tag for a generated document (PDF, iCal).
func ETag(content []byte) string {
	sum := sha256.Sum256(content)
	return `"` + hex.EncodeToString(sum[:12]) + `"`
}
