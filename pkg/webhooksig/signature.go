// Package webhooksig signs and verifies delayed-delivery webhook requests.
//
// A signature is an HS256 JWT whose "body" claim is the base64url SHA-256 of
// the exact request body. Receivers accept tokens signed with either the
// current or the next key so keys can be rotated without dropping deliveries.
package webhooksig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	HeaderName = "Signature"
	Issuer     = "physiopost-relay"

	defaultTTL = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrBodyMismatch     = errors.New("signature does not match body")
	ErrNoSigningKey     = errors.New("no signing key configured")
)

type Claims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key), ttl: defaultTTL, now: time.Now}
}

// Sign returns the signature header value for body addressed to url.
func (s *Signer) Sign(body []byte, url string) (string, error) {
	if len(s.key) == 0 {
		return "", ErrNoSigningKey
	}

	now := s.now()
	claims := Claims{
		Body: bodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   url,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign delivery: %w", err)
	}
	return signed, nil
}

type Verifier struct {
	keys      [][]byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier accepts signatures from currentKey or nextKey. An empty nextKey
// is ignored.
func NewVerifier(currentKey, nextKey string, tolerance time.Duration) *Verifier {
	var keys [][]byte
	for _, k := range []string{currentKey, nextKey} {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	return &Verifier{keys: keys, tolerance: tolerance, now: time.Now}
}

func (v *Verifier) Verify(signature string, body []byte) error {
	if signature == "" {
		return ErrMissingSignature
	}
	if len(v.keys) == 0 {
		return ErrNoSigningKey
	}

	var lastErr error
	for _, key := range v.keys {
		claims, err := v.parse(signature, key)
		if err != nil {
			lastErr = err
			continue
		}
		if !hmac.Equal([]byte(claims.Body), []byte(bodyHash(body))) {
			return ErrBodyMismatch
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func (v *Verifier) parse(signature string, key []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signature, claims,
		func(token *jwt.Token) (interface{}, error) {
			return key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithLeeway(v.tolerance),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
