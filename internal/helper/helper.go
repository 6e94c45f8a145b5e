package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash8 is a short stable fingerprint for putting emails in logs. Input is
// normalized the same way the auth service stores emails.
func Hash8(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:8])
}
