package security

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// KeyRing holds the RS256 key sessions are signed with plus public keys that
// are only accepted, such as the upcoming key during a rotation. Every key in
// the ring is published in the JWKS.
type KeyRing struct {
	kid    string
	signer *rsa.PrivateKey
	kids   []string
	pub    map[string]*rsa.PublicKey
}

func NewKeyRing(kid string, signer *rsa.PrivateKey) *KeyRing {
	r := &KeyRing{kid: kid, signer: signer, pub: map[string]*rsa.PublicKey{}}
	r.Accept(kid, &signer.PublicKey)
	return r
}

// Accept adds a verification-only key. Re-adding a kid replaces its key.
func (r *KeyRing) Accept(kid string, pub *rsa.PublicKey) {
	if _, seen := r.pub[kid]; !seen {
		r.kids = append(r.kids, kid)
	}
	r.pub[kid] = pub
}

// LoadKeyRing reads the signing key and, when nextKid is set, the next key
// from PEM files (PKCS#1 or PKCS#8).
func LoadKeyRing(kid, path, nextKid, nextPath string) (*KeyRing, error) {
	signer, err := ReadRSAKey(path)
	if err != nil {
		return nil, err
	}
	r := NewKeyRing(kid, signer)
	if nextKid != "" && nextPath != "" {
		next, err := ReadRSAKey(nextPath)
		if err != nil {
			return nil, err
		}
		r.Accept(nextKid, &next.PublicKey)
	}
	return r, nil
}

func ReadRSAKey(path string) (*rsa.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	k, err := jwt.ParseRSAPrivateKeyFromPEM(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

func (r *KeyRing) Lookup(kid string) (*rsa.PublicKey, bool) {
	pk, ok := r.pub[kid]
	return pk, ok
}

// JWK is the RFC 7517 subset needed for RSA signature keys.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

func (r *KeyRing) JWKS() JWKS {
	set := JWKS{Keys: make([]JWK, 0, len(r.kids))}
	for _, kid := range r.kids {
		pk := r.pub[kid]
		set.Keys = append(set.Keys, JWK{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: jwt.SigningMethodRS256.Alg(),
			N:   base64.RawURLEncoding.EncodeToString(pk.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pk.E)).Bytes()),
		})
	}
	return set
}
