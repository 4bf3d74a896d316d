package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const destination = "https://app.example/api/worker/generate"

func sign(t *testing.T, key string, body []byte, mutate func(*deliveryClaims)) string {
	t.Helper()

	sum := sha256.Sum256(body)
	now := time.Now()
	claims := deliveryClaims{
		Body: base64.URLEncoding.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "Upstash",
			Subject:   destination,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		},
	}
	if mutate != nil {
		mutate(&claims)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func TestNewVerifier(t *testing.T) {
	t.Parallel()

	_, err := NewVerifier("", "")
	assert.Error(t, err)

	v, err := NewVerifier("current", "")
	require.NoError(t, err)
	assert.Len(t, v.keys, 1)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	body := []byte(`{"taskId":"0b6f3c1e-0000-4000-8000-000000000001"}`)
	v, err := NewVerifier("current-key", "next-key")
	require.NoError(t, err)

	tests := []struct {
		name        string
		signature   string
		body        []byte
		destination string
		wantErr     bool
	}{
		{"current key", sign(t, "current-key", body, nil), body, destination, false},
		{"next key during rotation", sign(t, "next-key", body, nil), body, destination, false},
		{"destination not checked when empty", sign(t, "current-key", body, nil), body, "", false},
		{"unknown key", sign(t, "other-key", body, nil), body, destination, true},
		{"tampered body", sign(t, "current-key", body, nil), []byte(`{"taskId":"x"}`), destination, true},
		{"wrong destination", sign(t, "current-key", body, nil), body, "https://evil/api", true},
		{"wrong issuer", sign(t, "current-key", body, func(c *deliveryClaims) { c.Issuer = "someone" }), body, destination, true},
		{"expired", sign(t, "current-key", body, func(c *deliveryClaims) {
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		}), body, destination, true},
		{"missing expiry", sign(t, "current-key", body, func(c *deliveryClaims) { c.ExpiresAt = nil }), body, destination, true},
		{"empty", "", body, destination, true},
		{"garbage", "not.a.jwt", body, destination, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(tc.signature, tc.body, tc.destination)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestVerifier_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	body := []byte("{}")
	v, err := NewVerifier("k", "")
	require.NoError(t, err)

	claims := deliveryClaims{
		Body: BodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "Upstash",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("k"))
	require.NoError(t, err)

	assert.ErrorIs(t, v.Verify(token, body, ""), ErrInvalidSignature)
}
