package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignatureHeader carries the delivery signature.
const SignatureHeader = "Upstash-Signature"

const issuer = "Upstash"

// ErrInvalidSignature is returned when a delivery signature does not verify.
var ErrInvalidSignature = errors.New("invalid delivery signature")

type deliveryClaims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verifier checks delivery signatures against the current signing key and,
// during key rotation, the next one.
type Verifier struct {
	keys   [][]byte
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier returns a Verifier. Empty keys are skipped; at least one key
// is required.
func NewVerifier(currentKey, nextKey string) (*Verifier, error) {
	var keys [][]byte
	for _, k := range []string{currentKey, nextKey} {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("at least one signing key is required")
	}
	return &Verifier{keys: keys, leeway: 5 * time.Second, now: time.Now}, nil
}

// Verify checks that signature was issued for body. When destination is not
// empty it must match the token subject.
func (v *Verifier) Verify(signature string, body []byte, destination string) error {
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	var lastErr error
	for _, key := range v.keys {
		err := v.verifyWithKey(key, signature, body, destination)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrInvalidSignature, lastErr)
}

func (v *Verifier) verifyWithKey(key []byte, signature string, body []byte, destination string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if destination != "" {
		opts = append(opts, jwt.WithSubject(destination))
	}

	var claims deliveryClaims
	if _, err := jwt.ParseWithClaims(signature, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, opts...); err != nil {
		return err
	}

	if strings.TrimRight(claims.Body, "=") != BodyHash(body) {
		return errors.New("body hash mismatch")
	}
	return nil
}

// BodyHash is the unpadded base64url SHA-256 of body, as carried in the
// body claim.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
