package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session token")

type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Sessions issues and verifies the signed session credential carried in the
// "token" cookie. The only application claim is the user id.
type Sessions struct {
	ttl    time.Duration
	secret []byte
	keys   *KeyRing
	now    func() time.Time
}

func NewHMACSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, secret: []byte(secret), now: time.Now}
}

func NewRSASessions(ring *KeyRing, ttl time.Duration) *Sessions {
	return &Sessions{ttl: ttl, keys: ring, now: time.Now}
}

func (s *Sessions) TTL() time.Duration { return s.ttl }

func (s *Sessions) Issue(userID string) (string, error) {
	now := s.now()
	c := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			Subject:   userID,
		},
	}
	if s.keys != nil {
		t := jwt.NewWithClaims(jwt.SigningMethodRS256, c)
		t.Header["kid"] = s.keys.kid
		return t.SignedString(s.keys.signer)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Sessions) Parse(token string) (*Claims, error) {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if s.keys != nil {
		methods = []string{jwt.SigningMethodRS256.Alg()}
	}
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods(methods), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidSession, err)
	}
	if !t.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

func (s *Sessions) keyFunc(t *jwt.Token) (interface{}, error) {
	if s.keys == nil {
		return s.secret, nil
	}
	kid, _ := t.Header["kid"].(string)
	if pk, ok := s.keys.Lookup(kid); ok {
		return pk, nil
	}
	return nil, errors.New("no key by kid")
}

// JWKS returns the published key set; ok is false for HMAC sessions.
func (s *Sessions) JWKS() (JWKS, bool) {
	if s.keys == nil {
		return JWKS{}, false
	}
	return s.keys.JWKS(), true
}
