/*
Package token verifies the compact signed session tokens issued by the web tier.

A token is two dot-separated segments: a base64url-encoded JSON payload and a
base64url-encoded HMAC-SHA256 signature of the encoded payload. The realtime
server only verifies tokens, it never issues them.
*/
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates a structurally broken token or a signature mismatch.
	ErrInvalidToken = errors.New("invalid session token")

	// ErrTokenExpired indicates a well-signed token whose expiry is in the past.
	ErrTokenExpired = errors.New("session token expired")

	// ErrNoSecret indicates the verifier has no usable secret configured.
	ErrNoSecret = errors.New("no signing secret configured")
)

// Payload is the identity carried by a verified session token.
type Payload struct {
	// UserID is the unique identifier of the authenticated user.
	UserID string `json:"userId"`

	// Nickname is the display name shown in the presence roster and messages.
	Nickname string `json:"nickname"`

	// Exp is the expiry timestamp in unix seconds.
	Exp int64 `json:"exp"`
}

// Verifier validates session tokens against a shared HMAC secret.
// It performs no I/O; verification is a pure function of (token, time, secret).
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier for the given secret. An empty secret
// yields a verifier that rejects every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify validates the token against the current time. See VerifyAt.
func (v *Verifier) Verify(tokenString string) (*Payload, error) {
	return v.VerifyAt(tokenString, time.Now())
}

// VerifyAt validates the token at the given instant. The signature is checked
// with a constant-time comparison before the payload is decoded; a token with
// a missing userId or exp, or an exp in the past, is rejected.
func (v *Verifier) VerifyAt(tokenString string, now time.Time) (*Payload, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}

	encodedPayload, encodedSig, ok := strings.Cut(tokenString, ".")
	if !ok || encodedPayload == "" || strings.Contains(encodedSig, ".") {
		return nil, ErrInvalidToken
	}

	sig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return nil, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(encodedPayload))
	expected := mac.Sum(nil)

	if len(sig) != len(expected) {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal(sig, expected) {
		return nil, ErrInvalidToken
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, ErrInvalidToken
	}

	if payload.UserID == "" || payload.Exp == 0 {
		return nil, ErrInvalidToken
	}

	if payload.Exp < now.Unix() {
		return nil, ErrTokenExpired
	}

	return &payload, nil
}
