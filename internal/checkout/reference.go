package checkout

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// referenceCharset omits I, O, 0 and 1. Its length divides 256, so a byte
// modulo len is unbiased.
const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReferenceLength is the length of an order reference.
const ReferenceLength = 8

// NewReference returns a random order reference such as "K7QX2MPA".
func NewReference() (string, error) {
	b := make([]byte, ReferenceLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i := range b {
		b[i] = referenceCharset[int(b[i])%len(referenceCharset)]
	}
	return string(b), nil
}

// ValidReference reports whether s could have come from NewReference.
func ValidReference(s string) bool {
	if len(s) != ReferenceLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(referenceCharset, s[i]) < 0 {
			return false
		}
	}
	return true
}
