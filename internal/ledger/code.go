package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GeneratedCodeLength is the length of codes produced by GenerateCode.
const GeneratedCodeLength = 8

// MaxCodeLength mirrors the codes.code column width.
const MaxCodeLength = 100

// NormalizeCode returns the canonical stored form of a code: trimmed and upper-cased.
func NormalizeCode(text string) string {
	return strings.ToUpper(strings.TrimSpace(text))
}

// newCodeText hashes fresh random bytes with SHA-256 and keeps the first
// GeneratedCodeLength hex digits.
func newCodeText() (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	sum := sha256.Sum256(seed)
	return NormalizeCode(hex.EncodeToString(sum[:])[:GeneratedCodeLength]), nil
}
