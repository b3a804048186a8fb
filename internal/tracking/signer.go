// Package tracking provides HMAC-signed open/click tracking: token
// generation, click-URL signing, and HTML rewriting for outbound email.
package tracking

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// MinSecretLen is the minimum signing secret length in bytes. Construction
// with a shorter secret fails so a misconfigured process never serves
// forgeable URLs.
const MinSecretLen = 32

// TokenLen is the length of a tracking token in hex characters.
const TokenLen = 64

// Signer generates tracking tokens and signs (token, url) pairs so
// click-redirect URLs cannot be forged or replayed against a different
// token/URL combination.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer. The secret must be at least MinSecretLen bytes.
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("tracking: signing secret must be at least %d bytes, got %d", MinSecretLen, len(secret))
	}
	return &Signer{secret: []byte(secret)}, nil
}

// GenerateToken returns a fresh 32-byte random token, hex-encoded.
func (s *Signer) GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("tracking: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Sign computes the HMAC-SHA256 signature over a (token, url) pair.
// Deterministic: the same inputs and secret always yield the same signature.
func (s *Signer) Sign(token, url string) string {
	return hex.EncodeToString(s.mac(token, url))
}

// Verify reports whether sig is the valid signature for (token, url).
// Comparison is constant-time; malformed input returns false, never an error.
func (s *Signer) Verify(token, url, sig string) bool {
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(raw, s.mac(token, url))
}

// SignUnsubscribe signs an (email, emailType) pair for one-click unsubscribe
// links. The domain prefix keeps these tokens distinct from click signatures.
func (s *Signer) SignUnsubscribe(email, emailType string) string {
	return hex.EncodeToString(s.mac("unsubscribe\n"+email, emailType))
}

// VerifyUnsubscribe reports whether sig is a valid unsubscribe token for
// (email, emailType).
func (s *Signer) VerifyUnsubscribe(email, emailType, sig string) bool {
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(raw, s.mac("unsubscribe\n"+email, emailType))
}

// mac computes HMAC-SHA256 over a\n b. The separator makes the encoding
// unambiguous: tokens are hex and never contain newlines.
func (s *Signer) mac(a, b string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(a))
	h.Write([]byte{'\n'})
	h.Write([]byte(b))
	return h.Sum(nil)
}
