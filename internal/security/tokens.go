package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// NewVerificationCode returns a 6-digit numeric code the user types in.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// NewResetToken returns 160 random bits, hex encoded, for use in a link.
func NewResetToken() (string, error) {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
